package transcript

import (
	"fmt"
	"time"
)

const relevantDocument = "relevant_memory.json"

// Relevant is one published memory in a mode's side channel.
type Relevant struct {
	ID          string    `json:"id"`
	Essence     string    `json:"essence"`
	Lesson      string    `json:"lesson"`
	Emotions    []string  `json:"emotions"`
	Score       float64   `json:"score"`
	ModeID      string    `json:"mode_id"`
	CreatedAt   time.Time `json:"created_at"`
	AccessCount int       `json:"access_count"`
}

// PublishRelevant replaces the side channel contents for modeID.
func (b *Book) PublishRelevant(modeID string, items []Relevant) error {
	if items == nil {
		items = []Relevant{}
	}
	if err := b.store.Save(b.Document(modeID, relevantDocument), items); err != nil {
		return fmt.Errorf("publish relevant memories %s: %w", modeID, err)
	}
	return nil
}

func (b *Book) LoadRelevant(modeID string) ([]Relevant, error) {
	var items []Relevant
	if _, err := b.store.Load(b.Document(modeID, relevantDocument), &items); err != nil {
		return nil, err
	}
	return items, nil
}
