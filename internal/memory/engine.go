package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

// expectedColumns is the boot-time contract for the memories table.
var expectedColumns = map[string]string{
	"id":            "TEXT",
	"mode_id":       "TEXT",
	"essence":       "TEXT",
	"lesson":        "TEXT",
	"emotions":      "TEXT",
	"weight":        "REAL",
	"embedding":     "BLOB",
	"model_version": "TEXT",
	"created_at":    "TEXT",
	"last_accessed": "TEXT",
	"access_count":  "INTEGER",
}

// Engine is the sqlite-backed memory table. Vectors are stored as blobs and
// compared in process.
type Engine struct {
	db *sql.DB
	mu sync.Mutex
}

func NewEngine(dbPath string) (*Engine, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	e := &Engine{db: db}
	if err := e.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := e.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := e.validateSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := e.initIndexes(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := e.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

func (e *Engine) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			mode_id TEXT NOT NULL,
			essence TEXT NOT NULL,
			lesson TEXT NOT NULL DEFAULT '',
			emotions TEXT NOT NULL DEFAULT '[]',
			weight REAL NOT NULL DEFAULT 0,
			embedding BLOB NOT NULL,
			model_version TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			last_accessed TEXT NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 1
		)`,
	}
	for _, stmt := range stmts {
		if _, err := e.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (e *Engine) initIndexes() error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_memories_mode ON memories(mode_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := e.db.Exec(stmt); err != nil {
			return fmt.Errorf("init indexes: %w", err)
		}
	}
	return nil
}

func (e *Engine) validateSchema() error {
	rows, err := e.db.Query(`SELECT name, type FROM pragma_table_info('memories')`)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	defer rows.Close()

	found := make(map[string]string)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return fmt.Errorf("inspect schema: %w", err)
		}
		found[name] = strings.ToUpper(typ)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}

	var problems []string
	for col, typ := range expectedColumns {
		got, ok := found[col]
		switch {
		case !ok:
			problems = append(problems, "missing column "+col)
		case got != typ:
			problems = append(problems, fmt.Sprintf("column %s is %s, want %s", col, got, typ))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(problems, "; "))
	}
	return nil
}

func (e *Engine) Insert(ctx context.Context, r Record) error {
	blob, err := EncodeVector(r.Embedding)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	emotions, err := json.Marshal(nonNil(r.Emotions))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.db.ExecContext(ctx, `
		INSERT INTO memories (id, mode_id, essence, lesson, emotions, weight, embedding, model_version, created_at, last_accessed, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.ModeID, r.Essence, r.Lesson, string(emotions), r.Weight, blob, r.ModelVersion,
		formatTime(r.CreatedAt), formatTime(r.LastAccessed), r.AccessCount)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// Touch reinforces the given records in one statement.
func (e *Engine) Touch(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, formatTime(at))
	for _, id := range ids {
		args = append(args, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.db.ExecContext(ctx, `
		UPDATE memories
		SET access_count = access_count + 1, last_accessed = ?
		WHERE id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("touch memories: %w", err)
	}
	return nil
}

func (e *Engine) Get(ctx context.Context, id string) (*Record, error) {
	rows, err := e.db.QueryContext(ctx, selectColumns+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	defer rows.Close()
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, sql.ErrNoRows
	}
	return &records[0], nil
}

func (e *Engine) Count(ctx context.Context) (int, error) {
	var n int
	if err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

// Nearest returns the most similar record of modeID, or nil when the mode has none.
func (e *Engine) Nearest(ctx context.Context, modeID string, query []float32) (*Candidate, error) {
	candidates, err := e.SimilarityCandidates(ctx, query, []string{modeID}, 1)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// SimilarityCandidates ranks records by cosine similarity to query. A nil
// modes slice means no mode filter. Rows with a different dimension are skipped.
func (e *Engine) SimilarityCandidates(ctx context.Context, query []float32, modes []string, limit int) ([]Candidate, error) {
	where, args := modeFilter(modes)
	rows, err := e.db.QueryContext(ctx, selectColumns+where, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity candidates: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(records))
	for _, r := range records {
		sim, err := CosineSimilarity(query, r.Embedding)
		if err != nil {
			continue
		}
		candidates = append(candidates, Candidate{Record: r, Similarity: sim})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// EmotionCandidates returns records whose emotion tags overlap tags
// (case-insensitive), newest first.
func (e *Engine) EmotionCandidates(ctx context.Context, tags []string, modes []string, limit int) ([]Record, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	lowered := make([]any, 0, len(tags))
	for _, t := range tags {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(t)))
	}

	where, args := modeFilter(modes)
	if where == "" {
		where = " WHERE "
	} else {
		where += " AND "
	}
	where += `EXISTS (SELECT 1 FROM json_each(memories.emotions) je WHERE lower(je.value) IN (` + placeholders(len(lowered)) + `))`
	args = append(args, lowered...)

	query := selectColumns + where + ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("emotion candidates: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

const selectColumns = `SELECT id, mode_id, essence, lesson, emotions, weight, embedding, model_version, created_at, last_accessed, access_count FROM memories`

func modeFilter(modes []string) (string, []any) {
	if modes == nil {
		return "", nil
	}
	if len(modes) == 0 {
		return " WHERE 0", nil
	}
	args := make([]any, len(modes))
	for i, m := range modes {
		args[i] = m
	}
	return " WHERE mode_id IN (" + placeholders(len(modes)) + ")", args
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	result := make([]Record, 0)
	for rows.Next() {
		var (
			r                     Record
			emotions              string
			blob                  []byte
			createdAt, accessedAt string
		)
		if err := rows.Scan(&r.ID, &r.ModeID, &r.Essence, &r.Lesson, &emotions, &r.Weight, &blob,
			&r.ModelVersion, &createdAt, &accessedAt, &r.AccessCount); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if err := json.Unmarshal([]byte(emotions), &r.Emotions); err != nil {
			r.Emotions = nil
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("scan memory %s: %w", r.ID, err)
		}
		r.Embedding = vec
		r.CreatedAt = parseTime(createdAt)
		r.LastAccessed = parseTime(accessedAt)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return result, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2
		}
		return time.Time{}
	}
	return t
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// IsNotFound reports whether err came from a lookup of a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
