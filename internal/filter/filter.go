// Package filter marks session products that do not answer the session's
// keyword (accessories, unrelated listings) as filtered out. Marking is the
// only mutation a committed product ever receives.
package filter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pricehound/pricehound/internal/catalog"
)

// Judge decides which of the given titles are off-topic for the keyword,
// returned as indices into the titles slice.
type Judge interface {
	JudgeRelevance(ctx context.Context, keyword string, titles []string) ([]int, error)
}

// Service applies relevance judgments to committed sessions.
type Service struct {
	store  catalog.SessionStore
	judge  Judge
	logger *zap.Logger
}

// New constructs a Service.
func New(store catalog.SessionStore, judge Judge, logger *zap.Logger) *Service {
	return &Service{store: store, judge: judge, logger: logger}
}

// FilterSession judges the session's unfiltered products and marks the
// off-topic ones. Returns the number of products marked. A judge failure
// degrades to marking nothing; store failures propagate.
func (s *Service) FilterSession(ctx context.Context, sessionID int64) (int, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("get session: %w", err)
	}
	products, err := s.store.ListSessionProducts(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("list session products: %w", err)
	}

	var (
		titles []string
		ids    []int64
	)
	for _, p := range products {
		if p.IsFilteredOut {
			continue
		}
		titles = append(titles, p.Title)
		ids = append(ids, p.ID)
	}
	if len(titles) == 0 {
		return 0, nil
	}

	offTopic, err := s.judge.JudgeRelevance(ctx, session.Keyword, titles)
	if err != nil {
		s.logger.Warn("relevance judge unavailable, session left unfiltered",
			zap.Int64("session_id", sessionID),
			zap.Error(err),
		)
		return 0, nil
	}

	var markIDs []int64
	for _, idx := range offTopic {
		if idx < 0 || idx >= len(ids) {
			s.logger.Warn("judge returned out-of-range index",
				zap.Int64("session_id", sessionID),
				zap.Int("index", idx),
			)
			continue
		}
		markIDs = append(markIDs, ids[idx])
	}
	if len(markIDs) == 0 {
		return 0, nil
	}

	if err := s.store.MarkFilteredOut(ctx, markIDs); err != nil {
		return 0, fmt.Errorf("mark filtered out: %w", err)
	}
	s.logger.Info("session filtered",
		zap.Int64("session_id", sessionID),
		zap.Int("marked", len(markIDs)),
		zap.Int("judged", len(titles)),
	)
	return len(markIDs), nil
}
