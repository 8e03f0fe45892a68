package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/stellarlinkco/mindloop/internal/logging"
	"github.com/stellarlinkco/mindloop/internal/mode"
)

type ServiceConfig struct {
	DedupThreshold float64
	CandidateLimit int
	FinalLimit     int
	Scorer         Scorer
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DedupThreshold: 0.92,
		CandidateLimit: 30,
		FinalLimit:     5,
		Scorer:         DefaultScorer(),
	}
}

// Service stores, deduplicates, ranks and reinforces memories.
type Service struct {
	engine   *Engine
	embedder Embedder
	registry *mode.Registry
	cfg      ServiceConfig
	logger   *zap.Logger
	now      func() time.Time

	// storeMu keeps nearest-neighbour lookup and insert together.
	storeMu sync.Mutex
}

func NewService(engine *Engine, embedder Embedder, registry *mode.Registry, cfg ServiceConfig, logger *zap.Logger) *Service {
	return &Service{
		engine:   engine,
		embedder: embedder,
		registry: registry,
		cfg:      cfg,
		logger:   logging.OrNop(logger).Named("memory"),
		now:      time.Now,
	}
}

func (s *Service) Engine() *Engine {
	return s.engine
}

// Store embeds the essence and either reinforces the nearest record of the
// same mode (similarity at or above the dedup threshold) or inserts a new one.
func (s *Service) Store(ctx context.Context, modeID string, ext Extraction, modelVersion string) (StoreStatus, error) {
	vec, err := s.embedder.Embed(ctx, ext.Essence)
	if err != nil || len(vec) == 0 {
		s.logger.Warn("store aborted: no embedding", zap.String("mode", modeID), zap.Error(err))
		return "", ErrEmbedding
	}

	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	now := s.now().UTC()
	nearest, err := s.engine.Nearest(ctx, modeID, vec)
	if err != nil {
		return "", fmt.Errorf("dedup lookup: %w", err)
	}
	if nearest != nil && nearest.Similarity >= s.cfg.DedupThreshold {
		if err := s.engine.Touch(ctx, []string{nearest.ID}, now); err != nil {
			return "", err
		}
		s.logger.Info("memory deduplicated",
			zap.String("mode", modeID),
			zap.String("id", nearest.ID),
			zap.Float64("similarity", nearest.Similarity))
		return StoreDuplicate, nil
	}

	rec := Record{
		ID:           ulid.Make().String(),
		ModeID:       modeID,
		Essence:      ext.Essence,
		Lesson:       ext.Lesson,
		Emotions:     ext.Emotions,
		Weight:       clamp01(ext.Weight),
		Embedding:    vec,
		ModelVersion: modelVersion,
		CreatedAt:    now,
		LastAccessed: now,
		AccessCount:  1,
	}
	if err := s.engine.Insert(ctx, rec); err != nil {
		return "", err
	}
	s.logger.Info("memory stored", zap.String("mode", modeID), zap.String("id", rec.ID), zap.Float64("weight", rec.Weight))
	return StoreSuccess, nil
}

// Retrieve returns the best ranked memories visible from q.Mode and
// reinforces exactly those. Failures yield an empty list.
func (s *Service) Retrieve(ctx context.Context, q Query) []RankedMemory {
	if q.ExactEmotionsOnly {
		if len(q.Emotions) == 0 {
			return []RankedMemory{}
		}
	} else if strings.TrimSpace(q.Text) == "" {
		return []RankedMemory{}
	}

	visible := s.registry.VisibleModes(q.Mode)

	var candidates []Candidate
	if q.ExactEmotionsOnly {
		records, err := s.engine.EmotionCandidates(ctx, q.Emotions, visible, s.cfg.CandidateLimit)
		if err != nil {
			s.logger.Error("emotion retrieval failed", zap.Error(err))
			return []RankedMemory{}
		}
		for _, r := range records {
			candidates = append(candidates, Candidate{Record: r, Similarity: 1})
		}
	} else {
		vec, err := s.embedder.Embed(ctx, q.Text)
		if err != nil || len(vec) == 0 {
			s.logger.Warn("retrieval skipped: no embedding", zap.Error(err))
			return []RankedMemory{}
		}
		candidates, err = s.engine.SimilarityCandidates(ctx, vec, visible, s.cfg.CandidateLimit)
		if err != nil {
			s.logger.Error("similarity retrieval failed", zap.Error(err))
			return []RankedMemory{}
		}
	}

	now := s.now().UTC()
	ranked := make([]RankedMemory, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, RankedMemory{
			ID:          c.ID,
			Essence:     c.Essence,
			Lesson:      c.Lesson,
			Emotions:    c.Emotions,
			Score:       s.cfg.Scorer.Score(c, q.Emotions, now),
			ModeID:      c.ModeID,
			CreatedAt:   c.CreatedAt,
			AccessCount: c.AccessCount,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if s.cfg.FinalLimit > 0 && len(ranked) > s.cfg.FinalLimit {
		ranked = ranked[:s.cfg.FinalLimit]
	}

	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.ID
	}
	if err := s.engine.Touch(ctx, ids, now); err != nil {
		s.logger.Warn("reinforcement failed", zap.Error(err))
	}
	return ranked
}

// RecentConscious returns the newest deliberately saved memories, oldest first.
func (s *Service) RecentConscious(ctx context.Context, limit int) ([]RankedMemory, error) {
	records, err := s.engine.EmotionCandidates(ctx, []string{ConsciousTag}, nil, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RankedMemory, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		out = append(out, RankedMemory{
			ID:          r.ID,
			Essence:     r.Essence,
			Lesson:      r.Lesson,
			Emotions:    r.Emotions,
			Score:       r.Weight,
			ModeID:      r.ModeID,
			CreatedAt:   r.CreatedAt,
			AccessCount: r.AccessCount,
		})
	}
	return out, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
