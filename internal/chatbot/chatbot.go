// Package chatbot ties retrieval and answer composition into a single
// question-answering surface with an explicit initialization lifecycle.
package chatbot

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/kalambet/ttyv/internal/composer"
	"github.com/kalambet/ttyv/internal/retrieval"
)

// ErrInvalidInput is returned for blank questions, before any provider call.
var ErrInvalidInput = errors.New("message is empty")

// ErrNotReady is returned while the chatbot has not finished initializing
// or after shutdown.
var ErrNotReady = errors.New("chatbot is not ready")

// Retriever finds context chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ContextChunk, error)
	Ready() bool
}

// AnswerComposer produces an Answer from a question and its context.
type AnswerComposer interface {
	Compose(ctx context.Context, query string, chunks []retrieval.ContextChunk, history []composer.ChatTurn) composer.Answer
}

// Chatbot answers questions over the indexed transcripts. It is stateless
// across calls apart from the ready flag; conversation history is supplied
// by the caller on each Ask.
type Chatbot struct {
	retriever Retriever
	composer  AnswerComposer
	topK      int

	ready atomic.Bool
}

// New wires a Chatbot. It starts in the uninitialized state; call
// MarkReady once startup wiring (storage, providers, index) has completed.
func New(retriever Retriever, comp AnswerComposer, topK int) *Chatbot {
	if topK <= 0 {
		topK = 5
	}
	return &Chatbot{retriever: retriever, composer: comp, topK: topK}
}

// MarkReady transitions the chatbot into the serving state.
func (c *Chatbot) MarkReady() {
	c.ready.Store(true)
}

// Shutdown takes the chatbot out of service. In-flight Asks complete.
func (c *Chatbot) Shutdown() {
	c.ready.Store(false)
}

// Ready reports whether the chatbot is initialized AND has an index to
// search. Safe for concurrent use.
func (c *Chatbot) Ready() bool {
	return c.ready.Load() && c.retriever.Ready()
}

// Ask answers message using the indexed transcripts. Blank input fails
// fast with ErrInvalidInput before any embedding work. index.ErrEmptyIndex
// propagates so the API layer can report "not ready" instead of a hollow
// answer; generation failures are absorbed into a degraded Answer by the
// composer.
func (c *Chatbot) Ask(ctx context.Context, message string, history []composer.ChatTurn) (composer.Answer, error) {
	if strings.TrimSpace(message) == "" {
		return composer.Answer{}, ErrInvalidInput
	}
	if !c.ready.Load() {
		return composer.Answer{}, ErrNotReady
	}

	chunks, err := c.retriever.Retrieve(ctx, message, c.topK)
	if err != nil {
		return composer.Answer{}, err
	}

	return c.composer.Compose(ctx, message, chunks, history), nil
}
