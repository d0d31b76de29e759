// Package composer assembles the grounded prompt for a question, invokes
// the chat model, and shapes the result into an Answer with citations.
package composer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/ttyv/internal/provider"
	"github.com/kalambet/ttyv/internal/retrieval"
)

const defaultMaxChunks = 5

// historyLimit caps how many prior turns are replayed into the prompt.
const historyLimit = 6

const systemPrompt = `Eres un asistente de IA especializado en el contenido de Luisito Comunica.
Responde las preguntas de los usuarios basándote ÚNICAMENTE en el siguiente contexto de sus videos.
Si la información no está en el contexto, di amablemente que no tienes esa información.

Mantén un tono conversacional y amigable, como si fueras Luisito Comunica.`

const degradedResponse = "Lo siento, hubo un error generando la respuesta. Por favor inténtalo de nuevo en un momento."

// ChatTurn is one prior message in the conversation, supplied by the caller.
// The composer keeps no session state of its own.
type ChatTurn struct {
	Role    string
	Content string
}

// Source cites the video a context chunk came from. One entry per retrieved
// chunk position; repeated videos are NOT deduplicated.
type Source struct {
	Title   string
	VideoID string
	URL     string
}

// Answer is the structured result for a single question.
type Answer struct {
	ResponseText string
	Sources      []Source
	ChunksUsed   int
}

// Composer builds the context block and turns model output into Answers.
type Composer struct {
	model     provider.ChatModel
	maxChunks int
	logger    *slog.Logger
}

// New creates a Composer over the given chat model. maxChunks bounds the
// context block; values <= 0 use the default (5).
func New(model provider.ChatModel, maxChunks int) *Composer {
	if maxChunks <= 0 {
		maxChunks = defaultMaxChunks
	}
	return &Composer{model: model, maxChunks: maxChunks, logger: slog.Default()}
}

// Compose answers query from the retrieved chunks. A model failure never
// escapes: the returned Answer carries an apologetic message instead, so
// callers always get a well-formed Answer.
func (c *Composer) Compose(ctx context.Context, query string, chunks []retrieval.ContextChunk, history []ChatTurn) Answer {
	used := chunks
	if len(used) > c.maxChunks {
		used = used[:c.maxChunks]
	}

	userPrompt := c.buildUserPrompt(query, used, history)

	text, err := c.model.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		c.logger.Warn("generation failed, returning degraded answer", "error", err)
		return Answer{
			ResponseText: degradedResponse,
			ChunksUsed:   len(used),
		}
	}

	return Answer{
		ResponseText: text,
		Sources:      buildSources(used),
		ChunksUsed:   len(used),
	}
}

// buildUserPrompt concatenates the tagged chunk texts, optional recent
// history, and the question into a single user turn.
func (c *Composer) buildUserPrompt(query string, chunks []retrieval.ContextChunk, history []ChatTurn) string {
	var sb strings.Builder

	sb.WriteString("Contexto:\n")
	if len(chunks) == 0 {
		sb.WriteString("(sin contexto disponible)\n")
	}
	for i, ch := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[Video: %s]\n%s", ch.Title, ch.Text)
	}

	if len(history) > 0 {
		turns := history
		if len(turns) > historyLimit {
			turns = turns[len(turns)-historyLimit:]
		}
		sb.WriteString("\n\nConversación previa:\n")
		for _, turn := range turns {
			label := "Asistente"
			if turn.Role == "user" {
				label = "Usuario"
			}
			fmt.Fprintf(&sb, "%s: %s\n", label, turn.Content)
		}
	}

	fmt.Fprintf(&sb, "\n\nPregunta del usuario: %s\n\nResponde de manera natural y conversacional:", query)
	return sb.String()
}

func buildSources(chunks []retrieval.ContextChunk) []Source {
	if len(chunks) == 0 {
		return nil
	}
	sources := make([]Source, len(chunks))
	for i, ch := range chunks {
		sources[i] = Source{
			Title:   ch.Title,
			VideoID: ch.VideoID,
			URL:     videoURL(ch.VideoID),
		}
	}
	return sources
}

func videoURL(videoID string) string {
	if videoID == "" {
		return ""
	}
	return "https://www.youtube.com/watch?v=" + videoID
}
