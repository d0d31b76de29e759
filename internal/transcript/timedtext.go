package transcript

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultTimedTextURL = "https://www.youtube.com/api/timedtext"

// timedtext XML: <transcript><text start="1.2" dur="3.4">line</text>...</transcript>
type timedTextDoc struct {
	XMLName xml.Name       `xml:"transcript"`
	Lines   []timedTextLine `xml:"text"`
}

type timedTextLine struct {
	Start    float64 `xml:"start,attr"`
	Duration float64 `xml:"dur,attr"`
	Text     string  `xml:",chardata"`
}

// TimedTextFetcher pulls captions from YouTube's timedtext endpoint,
// trying each language in order. The endpoint answers 200 with an empty
// body when a video has no track for the requested language.
type TimedTextFetcher struct {
	BaseURL   string
	Languages []string
	Client    *http.Client
}

func NewTimedTextFetcher(languages []string) *TimedTextFetcher {
	if len(languages) == 0 {
		languages = []string{"es", "en"}
	}
	return &TimedTextFetcher{
		BaseURL:   defaultTimedTextURL,
		Languages: languages,
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *TimedTextFetcher) Fetch(ctx context.Context, videoID string) (Result, error) {
	for _, lang := range f.Languages {
		segments, err := f.fetchLang(ctx, videoID, lang)
		if err != nil {
			return Result{}, err
		}
		if len(segments) == 0 {
			continue
		}
		return Result{
			VideoID:  videoID,
			Text:     joinSegments(segments),
			Segments: segments,
			Language: lang,
			Method:   "timedtext",
		}, nil
	}
	return Result{}, fmt.Errorf("video %s: %w", videoID, ErrNoTranscript)
}

func (f *TimedTextFetcher) fetchLang(ctx context.Context, videoID, lang string) ([]Segment, error) {
	q := url.Values{}
	q.Set("v", videoID)
	q.Set("lang", lang)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building timedtext request: %w", err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching captions for %s (%s): %w", videoID, lang, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("timedtext returned %d for %s (%s)", resp.StatusCode, videoID, lang)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading captions for %s: %w", videoID, err)
	}
	if len(body) == 0 {
		// No track for this language.
		return nil, nil
	}

	return parseTimedText(body)
}

func parseTimedText(data []byte) ([]Segment, error) {
	var doc timedTextDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing timedtext XML: %w", err)
	}

	segments := make([]Segment, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		// Caption bodies arrive double-escaped (&amp;#39; and friends);
		// the XML decoder undoes one level, UnescapeString the other.
		segments = append(segments, Segment{
			Start:    line.Start,
			Duration: line.Duration,
			Text:     html.UnescapeString(line.Text),
		})
	}
	return segments, nil
}
