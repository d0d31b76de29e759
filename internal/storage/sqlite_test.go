package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that the migration creates the expected indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_transcripts_status", "idx_transcripts_published_at", "idx_chunk_vectors_video_id"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

// TestChunkVectorsTableExists verifies the chunk_vectors table is created by
// migration and supports a round-trip; the vector index queries it directly.
func TestChunkVectorsTableExists(t *testing.T) {
	s := openTestStore(t)

	_, err := s.db.Exec(`INSERT INTO chunk_vectors (chunk_id, video_id, title, published_at, ordinal, text_chunk, embedding)
		VALUES ('abc123_0', 'abc123', 'Un viaje', '2025-01-01T00:00:00Z', 0, 'hola mundo', X'0000803F')`)
	if err != nil {
		t.Fatalf("INSERT into chunk_vectors: %v", err)
	}

	var chunkID, videoID, title, textChunk string
	var ordinal int
	err = s.db.QueryRow(`SELECT chunk_id, video_id, title, ordinal, text_chunk FROM chunk_vectors WHERE chunk_id = 'abc123_0'`).
		Scan(&chunkID, &videoID, &title, &ordinal, &textChunk)
	if err != nil {
		t.Fatalf("SELECT from chunk_vectors: %v", err)
	}
	if chunkID != "abc123_0" || videoID != "abc123" || ordinal != 0 || textChunk != "hola mundo" {
		t.Errorf("round-trip mismatch: got chunk_id=%q video_id=%q ordinal=%d text_chunk=%q", chunkID, videoID, ordinal, textChunk)
	}
}

// TestSaveAndGetTranscript saves a document and retrieves it by video ID.
func TestSaveAndGetTranscript(t *testing.T) {
	s := openTestStore(t)

	published := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	fetched := time.Now().UTC().Truncate(time.Second)
	want := TranscriptDoc{
		VideoID:     "dQw4w9WgXcQ",
		Title:       "Probé la comida callejera más rara",
		PublishedAt: published,
		Transcript:  "hola mis amigos, bienvenidos a un nuevo video",
		Language:    "es",
		Method:      MethodTimedText,
		Status:      StatusFetched,
		FetchedAt:   fetched,
	}

	if err := s.SaveTranscript(want); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	got, err := s.GetTranscript(want.VideoID)
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if got.Title != want.Title || got.Transcript != want.Transcript || got.Language != want.Language {
		t.Errorf("round-trip mismatch: got %+v", got)
	}
	if !got.PublishedAt.Equal(published) {
		t.Errorf("PublishedAt = %v, want %v", got.PublishedAt, published)
	}
	if got.Method != MethodTimedText || got.Status != StatusFetched {
		t.Errorf("method/status = %q/%q, want %q/%q", got.Method, got.Status, MethodTimedText, StatusFetched)
	}
}

func TestGetTranscriptNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetTranscript("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestSaveTranscriptOverwrites refetches a video and verifies the new
// transcript replaces the old one without growing the table.
func TestSaveTranscriptOverwrites(t *testing.T) {
	s := openTestStore(t)

	doc := TranscriptDoc{VideoID: "v1", Title: "Old title", Transcript: "old text", Status: StatusIndexed}
	if err := s.SaveTranscript(doc); err != nil {
		t.Fatalf("first SaveTranscript: %v", err)
	}

	doc.Title = "New title"
	doc.Transcript = "new text"
	doc.Status = StatusFetched
	if err := s.SaveTranscript(doc); err != nil {
		t.Fatalf("second SaveTranscript: %v", err)
	}

	got, err := s.GetTranscript("v1")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if got.Title != "New title" || got.Transcript != "new text" || got.Status != StatusFetched {
		t.Errorf("overwrite did not apply: %+v", got)
	}

	n, err := s.CountTranscripts()
	if err != nil {
		t.Fatalf("CountTranscripts: %v", err)
	}
	if n != 1 {
		t.Errorf("CountTranscripts = %d, want 1", n)
	}
}

func TestSaveTranscriptDefaults(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveTranscript(TranscriptDoc{VideoID: "v1", Title: "T", Transcript: "x"}); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	got, err := s.GetTranscript("v1")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if got.Status != StatusFetched {
		t.Errorf("default status = %q, want %q", got.Status, StatusFetched)
	}
	if got.FetchedAt.IsZero() {
		t.Error("FetchedAt not defaulted")
	}
	if !got.PublishedAt.IsZero() {
		t.Errorf("PublishedAt = %v, want zero", got.PublishedAt)
	}
}

// TestListTranscriptsOrder verifies newest-published-first ordering.
func TestListTranscriptsOrder(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		doc := TranscriptDoc{
			VideoID:     id,
			Title:       "Video " + id,
			Transcript:  "texto",
			PublishedAt: base.AddDate(0, i, 0),
		}
		if err := s.SaveTranscript(doc); err != nil {
			t.Fatalf("SaveTranscript(%s): %v", id, err)
		}
	}

	docs, err := s.ListTranscripts()
	if err != nil {
		t.Fatalf("ListTranscripts: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("len = %d, want 3", len(docs))
	}
	wantOrder := []string{"new", "mid", "old"}
	for i, want := range wantOrder {
		if docs[i].VideoID != want {
			t.Errorf("docs[%d].VideoID = %q, want %q", i, docs[i].VideoID, want)
		}
	}
}

func TestMarkIndexed(t *testing.T) {
	s := openTestStore(t)

	for _, id := range []string{"a", "b"} {
		if err := s.SaveTranscript(TranscriptDoc{VideoID: id, Title: "T", Transcript: "x"}); err != nil {
			t.Fatalf("SaveTranscript(%s): %v", id, err)
		}
	}

	if err := s.MarkIndexed(); err != nil {
		t.Fatalf("MarkIndexed: %v", err)
	}

	docs, err := s.ListTranscripts()
	if err != nil {
		t.Fatalf("ListTranscripts: %v", err)
	}
	for _, d := range docs {
		if d.Status != StatusIndexed {
			t.Errorf("doc %s status = %q, want %q", d.VideoID, d.Status, StatusIndexed)
		}
	}
}

func TestHasTranscript(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveTranscript(TranscriptDoc{VideoID: "v1", Title: "T", Transcript: "x"}); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	ok, err := s.HasTranscript("v1")
	if err != nil || !ok {
		t.Errorf("HasTranscript(v1) = %v, %v; want true, nil", ok, err)
	}
	ok, err = s.HasTranscript("v2")
	if err != nil || ok {
		t.Errorf("HasTranscript(v2) = %v, %v; want false, nil", ok, err)
	}
}

func TestDeleteTranscript(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveTranscript(TranscriptDoc{VideoID: "v1", Title: "T", Transcript: "x"}); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	if err := s.DeleteTranscript("v1"); err != nil {
		t.Fatalf("DeleteTranscript: %v", err)
	}
	if err := s.DeleteTranscript("v1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}
