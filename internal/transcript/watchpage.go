package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const defaultWatchURL = "https://www.youtube.com/watch"

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" for auto-generated
}

// WatchPageFetcher scrapes the video watch page for the player's caption
// track list and downloads the matching track. It covers videos whose
// captions the timedtext endpoint refuses to serve directly.
type WatchPageFetcher struct {
	BaseURL   string
	Languages []string
	Client    *http.Client
}

func NewWatchPageFetcher(languages []string) *WatchPageFetcher {
	if len(languages) == 0 {
		languages = []string{"es", "en"}
	}
	return &WatchPageFetcher{
		BaseURL:   defaultWatchURL,
		Languages: languages,
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *WatchPageFetcher) Fetch(ctx context.Context, videoID string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"?v="+videoID, nil)
	if err != nil {
		return Result{}, fmt.Errorf("building watch-page request: %w", err)
	}
	req.Header.Set("Accept-Language", strings.Join(f.Languages, ","))

	resp, err := f.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetching watch page for %s: %w", videoID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("watch page returned %d for %s", resp.StatusCode, videoID)
	}

	tracks, err := extractCaptionTracks(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return Result{}, fmt.Errorf("video %s: %w", videoID, err)
	}

	track, ok := pickTrack(tracks, f.Languages)
	if !ok {
		return Result{}, fmt.Errorf("video %s: %w", videoID, ErrNoTranscript)
	}

	segments, err := f.fetchTrack(ctx, track.BaseURL)
	if err != nil {
		return Result{}, fmt.Errorf("video %s: %w", videoID, err)
	}
	if len(segments) == 0 {
		return Result{}, fmt.Errorf("video %s: %w", videoID, ErrNoTranscript)
	}

	return Result{
		VideoID:  videoID,
		Text:     joinSegments(segments),
		Segments: segments,
		Language: track.LanguageCode,
		Method:   "watchpage",
	}, nil
}

// extractCaptionTracks walks the page's script elements looking for the
// embedded player response and decodes its captionTracks array.
func extractCaptionTracks(r io.Reader) ([]captionTrack, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing watch page: %w", err)
	}

	var tracks []captionTrack
	var found bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && n.Data == "script" && n.FirstChild != nil {
			if t, ok := parseTracksScript(n.FirstChild.Data); ok {
				tracks, found = t, true
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if !found {
		return nil, ErrNoTranscript
	}
	return tracks, nil
}

// parseTracksScript pulls the captionTracks JSON array out of a script
// body. The decoder stops at the closing bracket on its own, so the
// surrounding player response needs no bracket counting.
func parseTracksScript(script string) ([]captionTrack, bool) {
	const marker = `"captionTracks":`
	i := strings.Index(script, marker)
	if i < 0 {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(script[i+len(marker):]))
	var tracks []captionTrack
	if err := dec.Decode(&tracks); err != nil {
		return nil, false
	}
	return tracks, true
}

// pickTrack prefers manual tracks over auto-generated ones within each
// accepted language, in language preference order.
func pickTrack(tracks []captionTrack, languages []string) (captionTrack, bool) {
	for _, lang := range languages {
		var asr *captionTrack
		for i := range tracks {
			if tracks[i].LanguageCode != lang {
				continue
			}
			if tracks[i].Kind == "asr" {
				if asr == nil {
					asr = &tracks[i]
				}
				continue
			}
			return tracks[i], true
		}
		if asr != nil {
			return *asr, true
		}
	}
	return captionTrack{}, false
}

func (f *WatchPageFetcher) fetchTrack(ctx context.Context, trackURL string) ([]Segment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trackURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building track request: %w", err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching caption track: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("caption track returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading caption track: %w", err)
	}
	return parseTimedText(body)
}
