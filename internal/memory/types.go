package memory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmbedding      = errors.New("embedding failed")
	ErrSchemaMismatch = errors.New("memory schema mismatch")
)

// Record is one long-term memory row. Only AccessCount and LastAccessed change
// after insertion, and only upward.
type Record struct {
	ID           string
	ModeID       string
	Essence      string
	Lesson       string
	Emotions     []string
	Weight       float64
	Embedding    []float32
	ModelVersion string
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int
}

// Extraction is what the extractor (or a conscious memorize call) hands to Store.
type Extraction struct {
	Essence  string   `json:"essence"`
	Emotions []string `json:"dominant_emotions"`
	Weight   float64  `json:"memory_weight"`
	Lesson   string   `json:"the_lesson"`
}

type RankedMemory struct {
	ID          string    `json:"id"`
	Essence     string    `json:"essence"`
	Lesson      string    `json:"lesson"`
	Emotions    []string  `json:"emotions"`
	Score       float64   `json:"score"`
	ModeID      string    `json:"mode_id"`
	CreatedAt   time.Time `json:"created_at"`
	AccessCount int       `json:"access_count"`
}

type StoreStatus string

const (
	StoreSuccess   StoreStatus = "Success"
	StoreDuplicate StoreStatus = "Duplication"
)

// Query describes one retrieval. Mode decides visibility.
type Query struct {
	Mode              string
	Text              string
	Emotions          []string
	ExactEmotionsOnly bool
}

// Candidate is a record with its similarity to the query.
type Candidate struct {
	Record
	Similarity float64
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
