package index

import (
	"container/heap"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// SQLiteIndex provides vector storage and brute-force cosine similarity
// search over the chunk_vectors table. The table is created via storage
// migrations; Rebuild swaps in a freshly built table so readers never
// observe a half-cleared index.
type SQLiteIndex struct {
	db *sql.DB

	mu  sync.Mutex
	dim int // established embedding dimension; 0 until known
}

// NewSQLiteIndex wraps an existing *sql.DB for vector operations.
func NewSQLiteIndex(db *sql.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

const columns = "chunk_id, video_id, title, published_at, ordinal, text_chunk, embedding"

// Add inserts or overwrites the entry keyed by its ChunkID. The first entry
// establishes the index dimensionality; later entries with a different
// vector length fail with ErrDimensionMismatch.
func (s *SQLiteIndex) Add(e Entry) error {
	if err := s.checkDimension(len(e.Embedding)); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		INSERT INTO chunk_vectors (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			video_id = excluded.video_id,
			title = excluded.title,
			published_at = excluded.published_at,
			ordinal = excluded.ordinal,
			text_chunk = excluded.text_chunk,
			embedding = excluded.embedding`,
		e.ChunkID, e.VideoID, e.Title, formatTime(e.PublishedAt), e.Ordinal, e.Text, encodeFloat32s(e.Embedding),
	)
	if err != nil {
		return fmt.Errorf("inserting entry %s: %w", e.ChunkID, err)
	}
	return nil
}

// Query returns the k entries most similar to vector, descending by cosine
// similarity; ties are broken by insertion order. k is clamped to the index
// size. Returns ErrEmptyIndex when nothing has been ingested.
func (s *SQLiteIndex) Query(vector []float32, k int) ([]ScoredEntry, error) {
	if k <= 0 {
		return nil, nil
	}

	// Phase 1: scan only chunk_id + embedding to find the top-K candidates.
	rows, err := s.db.Query(`SELECT rowid, chunk_id, embedding FROM chunk_vectors ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)

	h := &candidateHeap{}
	heap.Init(h)

	// Reusable buffer to avoid a per-row allocation during the scan.
	var buf []float32
	scanned := 0

	for rows.Next() {
		var rowid int64
		var id string
		var blob []byte
		if err := rows.Scan(&rowid, &id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		scanned++

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if h.Len() < k {
			heap.Push(h, candidate{ChunkID: id, Score: score, Seq: rowid})
		} else if score > (*h)[0].Score {
			// Strict comparison keeps the earliest-inserted entry on ties.
			(*h)[0] = candidate{ChunkID: id, Score: score, Seq: rowid}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if scanned == 0 {
		return nil, ErrEmptyIndex
	}

	winners := make(map[string]candidate, h.Len())
	ids := make([]string, 0, h.Len())
	for h.Len() > 0 {
		c := heap.Pop(h).(candidate)
		winners[c.ChunkID] = c
		ids = append(ids, c.ChunkID)
	}

	// Phase 2: fetch full rows only for the winners.
	results, err := s.fetchEntries(ids)
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredEntry, len(results))
	for i, e := range results {
		scored[i] = ScoredEntry{Entry: e, Score: winners[e.ChunkID].Score}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return winners[scored[i].ChunkID].Seq < winners[scored[j].ChunkID].Seq
	})
	return scored, nil
}

func (s *SQLiteIndex) fetchEntries(ids []string) ([]Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + columns + ` FROM chunk_vectors
		WHERE chunk_id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var blob []byte
	var publishedAt string
	if err := rows.Scan(&e.ChunkID, &e.VideoID, &e.Title, &publishedAt, &e.Ordinal, &e.Text, &blob); err != nil {
		return Entry{}, fmt.Errorf("scanning entry: %w", err)
	}
	embedding, err := decodeFloat32s(blob)
	if err != nil {
		return Entry{}, fmt.Errorf("decoding embedding for %s: %w", e.ChunkID, err)
	}
	e.Embedding = embedding
	if publishedAt != "" {
		t, err := time.Parse(time.RFC3339, publishedAt)
		if err != nil {
			return Entry{}, fmt.Errorf("parsing published_at for %s: %w", e.ChunkID, err)
		}
		e.PublishedAt = t
	}
	return e, nil
}

// Count returns the number of entries currently stored.
func (s *SQLiteIndex) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM chunk_vectors").Scan(&count)
	return count, err
}

// DeleteAll clears the index in a single transaction.
func (s *SQLiteIndex) DeleteAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM chunk_vectors"); err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing index: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.mu.Lock()
	s.dim = 0
	s.mu.Unlock()
	return nil
}

// Rebuild replaces the whole index with entries. The new data is bulk-loaded
// into a staging table first, so concurrent queries keep reading the old
// table; the swap itself is one short rename transaction.
func (s *SQLiteIndex) Rebuild(entries []Entry) error {
	dim := 0
	for _, e := range entries {
		if dim == 0 {
			dim = len(e.Embedding)
		} else if len(e.Embedding) != dim {
			return fmt.Errorf("entry %s has dimension %d, index has %d: %w",
				e.ChunkID, len(e.Embedding), dim, ErrDimensionMismatch)
		}
	}

	if _, err := s.db.Exec(`DROP TABLE IF EXISTS chunk_vectors_staging`); err != nil {
		return fmt.Errorf("dropping stale staging table: %w", err)
	}
	if _, err := s.db.Exec(`CREATE TABLE chunk_vectors_staging (
		chunk_id TEXT PRIMARY KEY,
		video_id TEXT NOT NULL,
		title TEXT NOT NULL,
		published_at TEXT NOT NULL DEFAULT '',
		ordinal INTEGER NOT NULL,
		text_chunk TEXT NOT NULL,
		embedding BLOB NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating staging table: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning staging load: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO chunk_vectors_staging (` + columns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing staging insert: %w", err)
	}
	for _, e := range entries {
		if _, err := stmt.Exec(e.ChunkID, e.VideoID, e.Title, formatTime(e.PublishedAt), e.Ordinal, e.Text, encodeFloat32s(e.Embedding)); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("staging entry %s: %w", e.ChunkID, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing staging load: %w", err)
	}

	// The swap: drop the live table and rename staging into place.
	swap, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning swap: %w", err)
	}
	if _, err := swap.Exec(`DROP TABLE chunk_vectors`); err != nil {
		swap.Rollback()
		return fmt.Errorf("dropping live table: %w", err)
	}
	if _, err := swap.Exec(`ALTER TABLE chunk_vectors_staging RENAME TO chunk_vectors`); err != nil {
		swap.Rollback()
		return fmt.Errorf("renaming staging table: %w", err)
	}
	if _, err := swap.Exec(`CREATE INDEX IF NOT EXISTS idx_chunk_vectors_video_id ON chunk_vectors(video_id)`); err != nil {
		swap.Rollback()
		return fmt.Errorf("recreating video index: %w", err)
	}
	if err := swap.Commit(); err != nil {
		return fmt.Errorf("committing swap: %w", err)
	}

	s.mu.Lock()
	s.dim = dim
	s.mu.Unlock()
	return nil
}

// checkDimension establishes or verifies the index dimensionality. The
// cached value is loaded lazily from the table so it survives restarts.
func (s *SQLiteIndex) checkDimension(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 {
		var blobLen sql.NullInt64
		err := s.db.QueryRow("SELECT LENGTH(embedding) FROM chunk_vectors LIMIT 1").Scan(&blobLen)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("reading index dimension: %w", err)
		}
		if blobLen.Valid {
			s.dim = int(blobLen.Int64) / 4
		}
	}

	if s.dim == 0 {
		s.dim = n
		return nil
	}
	if n != s.dim {
		return fmt.Errorf("got %d, index has %d: %w", n, s.dim, ErrDimensionMismatch)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes dot(a,b) / (aNorm * |b|). aNorm is precomputed once per
// query. Mismatched lengths and zero vectors score 0.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) || aNorm == 0 {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// candidate tracks a potential winner during the scan phase.
type candidate struct {
	ChunkID string
	Score   float32
	Seq     int64
}

// candidateHeap is a min-heap of candidates ordered by Score, with later
// insertions evicted first on equal scores.
type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].Seq > h[j].Seq
}
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
