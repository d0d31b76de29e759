package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sampleXML = `<?xml version="1.0" encoding="utf-8"?>
<transcript>
<text start="0.0" dur="2.5">hola mis amigos</text>
<text start="2.5" dur="3.1">bienvenidos a un nuevo video</text>
<text start="5.6" dur="1.9">hoy visitamos el mercado m&amp;#225;s grande</text>
</transcript>`

func TestTimedTextFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("v") != "vid1" {
			t.Errorf("v = %q, want vid1", r.URL.Query().Get("v"))
		}
		if r.URL.Query().Get("lang") != "es" {
			// No track for this language.
			return
		}
		fmt.Fprint(w, sampleXML)
	}))
	defer srv.Close()

	f := NewTimedTextFetcher([]string{"es", "en"})
	f.BaseURL = srv.URL

	got, err := f.Fetch(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.Language != "es" || got.Method != "timedtext" {
		t.Errorf("language/method = %q/%q, want es/timedtext", got.Language, got.Method)
	}
	if len(got.Segments) != 3 {
		t.Fatalf("segments = %d, want 3", len(got.Segments))
	}
	if got.Segments[2].Text != "hoy visitamos el mercado más grande" {
		t.Errorf("entity unescape failed: %q", got.Segments[2].Text)
	}
	if got.Segments[1].Start != 2.5 || got.Segments[1].Duration != 3.1 {
		t.Errorf("timing = %v/%v, want 2.5/3.1", got.Segments[1].Start, got.Segments[1].Duration)
	}
	if !strings.Contains(got.Text, "hola mis amigos bienvenidos") {
		t.Errorf("joined text wrong: %q", got.Text)
	}
}

// TestTimedTextLanguageFallback serves captions only in the second
// preferred language.
func TestTimedTextLanguageFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lang") == "en" {
			fmt.Fprint(w, sampleXML)
		}
	}))
	defer srv.Close()

	f := NewTimedTextFetcher([]string{"es", "en"})
	f.BaseURL = srv.URL

	got, err := f.Fetch(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.Language != "en" {
		t.Errorf("language = %q, want en", got.Language)
	}
}

func TestTimedTextNoTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	f := NewTimedTextFetcher(nil)
	f.BaseURL = srv.URL

	_, err := f.Fetch(context.Background(), "vid1")
	if !errors.Is(err, ErrNoTranscript) {
		t.Errorf("err = %v, want ErrNoTranscript", err)
	}
}

func watchPageHTML(trackJSON string) string {
	return `<!DOCTYPE html><html><head><title>v</title></head><body>
<script>var other = 1;</script>
<script>var ytInitialPlayerResponse = {"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":` + trackJSON + `,"audioTracks":[]}},"videoDetails":{}};</script>
</body></html>`
}

func TestWatchPageFetch(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/watch":
			tracks := fmt.Sprintf(`[{"baseUrl":"%s/track/asr","languageCode":"es","kind":"asr"},{"baseUrl":"%s/track/manual","languageCode":"es"}]`, srvURL, srvURL)
			fmt.Fprint(w, watchPageHTML(tracks))
		case "/track/manual":
			fmt.Fprint(w, sampleXML)
		case "/track/asr":
			t.Error("auto-generated track fetched despite manual track available")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	f := NewWatchPageFetcher([]string{"es"})
	f.BaseURL = srv.URL + "/watch"

	got, err := f.Fetch(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.Method != "watchpage" || got.Language != "es" {
		t.Errorf("method/language = %q/%q, want watchpage/es", got.Method, got.Language)
	}
	if len(got.Segments) != 3 {
		t.Errorf("segments = %d, want 3", len(got.Segments))
	}
}

func TestWatchPageNoCaptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><body><script>var x = {};</script></body></html>`)
	}))
	defer srv.Close()

	f := NewWatchPageFetcher(nil)
	f.BaseURL = srv.URL

	_, err := f.Fetch(context.Background(), "vid1")
	if !errors.Is(err, ErrNoTranscript) {
		t.Errorf("err = %v, want ErrNoTranscript", err)
	}
}

func TestPickTrack(t *testing.T) {
	tracks := []captionTrack{
		{BaseURL: "u1", LanguageCode: "en"},
		{BaseURL: "u2", LanguageCode: "es", Kind: "asr"},
		{BaseURL: "u3", LanguageCode: "fr"},
	}

	got, ok := pickTrack(tracks, []string{"es", "en"})
	if !ok || got.BaseURL != "u2" {
		t.Errorf("pickTrack = %+v, %v; want the es asr track", got, ok)
	}

	got, ok = pickTrack(tracks, []string{"de", "en"})
	if !ok || got.BaseURL != "u1" {
		t.Errorf("pickTrack = %+v, %v; want the en track", got, ok)
	}

	if _, ok := pickTrack(tracks, []string{"ja"}); ok {
		t.Error("pickTrack matched a language with no track")
	}
}

type fakeFetcher struct {
	result Result
	err    error
	calls  int
}

func (f *fakeFetcher) Fetch(context.Context, string) (Result, error) {
	f.calls++
	return f.result, f.err
}

func TestFallbackUsesPrimaryFirst(t *testing.T) {
	primary := &fakeFetcher{result: Result{VideoID: "v", Method: "timedtext"}}
	secondary := &fakeFetcher{}
	f := NewFallbackFetcher(primary, secondary, slog.New(slog.DiscardHandler))

	got, err := f.Fetch(context.Background(), "v")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.Method != "timedtext" {
		t.Errorf("method = %q, want timedtext", got.Method)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.calls)
	}
}

func TestFallbackOnPrimaryFailure(t *testing.T) {
	primary := &fakeFetcher{err: ErrNoTranscript}
	secondary := &fakeFetcher{result: Result{VideoID: "v", Method: "watchpage"}}
	f := NewFallbackFetcher(primary, secondary, slog.New(slog.DiscardHandler))

	got, err := f.Fetch(context.Background(), "v")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.Method != "watchpage" {
		t.Errorf("method = %q, want watchpage", got.Method)
	}
}

func TestFallbackBothFail(t *testing.T) {
	primary := &fakeFetcher{err: ErrNoTranscript}
	secondary := &fakeFetcher{err: errors.New("blocked")}
	f := NewFallbackFetcher(primary, secondary, slog.New(slog.DiscardHandler))

	_, err := f.Fetch(context.Background(), "v")
	if !errors.Is(err, ErrNoTranscript) {
		t.Errorf("err = %v, want wrapped ErrNoTranscript", err)
	}
}
