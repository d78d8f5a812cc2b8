// Package memory provides an in-memory catalog.Store for development and
// tests. Semantics mirror the Postgres store: URL dedup within a session,
// case-insensitive title search, sentinel-session comparison rows.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pricehound/pricehound/internal/catalog"
)

// Store keeps everything in process memory.
type Store struct {
	mu            sync.Mutex
	nextSessionID int64
	nextProductID int64
	nextDealID    int64
	sessions      map[int64]catalog.Session
	products      []catalog.Product
	deals         []catalog.Deal
	cache         []catalog.CacheEntry
}

// New returns an empty Store.
func New() *Store {
	return &Store{sessions: make(map[int64]catalog.Session)}
}

// Close is a no-op.
func (s *Store) Close() {}

// CommitBatch implements catalog.SessionStore.
func (s *Store) CommitBatch(_ context.Context, session catalog.Session, products []catalog.Product) (catalog.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSessionID++
	session.ID = s.nextSessionID

	seen := make(map[string]bool)
	inserted := 0
	for _, p := range products {
		if seen[p.URL] {
			continue
		}
		seen[p.URL] = true
		s.nextProductID++
		p.ID = s.nextProductID
		p.SessionID = session.ID
		s.products = append(s.products, p)
		inserted++
	}
	session.TotalProducts = inserted
	s.sessions[session.ID] = session
	return session, nil
}

// GetSession implements catalog.SessionStore.
func (s *Store) GetSession(_ context.Context, id int64) (catalog.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return catalog.Session{}, catalog.ErrNotFound
	}
	return session, nil
}

// ListSessionProducts implements catalog.SessionStore.
func (s *Store) ListSessionProducts(_ context.Context, sessionID int64) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.Product
	for _, p := range s.products {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	return out, nil
}

// MarkFilteredOut implements catalog.SessionStore.
func (s *Store) MarkFilteredOut(_ context.Context, productIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[int64]bool, len(productIDs))
	for _, id := range productIDs {
		ids[id] = true
	}
	for i := range s.products {
		if ids[s.products[i].ID] {
			s.products[i].IsFilteredOut = true
		}
	}
	return nil
}

// SearchDeals implements catalog.CorpusStore.
func (s *Store) SearchDeals(_ context.Context, term, excludePlatform string, limit int) ([]catalog.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	term = strings.ToLower(term)
	var out []catalog.Candidate
	for _, d := range s.deals {
		if len(out) >= limit {
			break
		}
		if d.Platform == excludePlatform || !strings.Contains(strings.ToLower(d.Title), term) {
			continue
		}
		out = append(out, catalog.Candidate{
			Title:    d.Title,
			Platform: d.Platform,
			Price:    d.Price,
			URL:      d.URL,
			ImageURL: d.ImageURL,
			Source:   catalog.CandidateSourceDeals,
		})
	}
	return out, nil
}

// SearchProducts implements catalog.CorpusStore.
func (s *Store) SearchProducts(_ context.Context, term, excludePlatform string, limit int) ([]catalog.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	term = strings.ToLower(term)
	var out []catalog.Candidate
	for i := len(s.products) - 1; i >= 0 && len(out) < limit; i-- {
		p := s.products[i]
		if p.SessionID == catalog.ComparisonSessionID || p.IsFilteredOut {
			continue
		}
		if p.Platform == excludePlatform || !strings.Contains(strings.ToLower(p.Title), term) {
			continue
		}
		out = append(out, catalog.Candidate{
			Title:    p.Title,
			Platform: p.Platform,
			Price:    p.Price,
			URL:      p.URL,
			ImageURL: p.ImageURL,
			Source:   catalog.CandidateSourceProducts,
		})
	}
	return out, nil
}

// FindDeal implements catalog.ComparisonStore.
func (s *Store) FindDeal(_ context.Context, title, platform string, price int64) (catalog.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.deals) - 1; i >= 0; i-- {
		d := s.deals[i]
		if d.Title == title && d.Platform == platform && d.Price == price {
			return d, nil
		}
	}
	return catalog.Deal{}, catalog.ErrNotFound
}

// CachedMatches implements catalog.ComparisonStore.
func (s *Store) CachedMatches(_ context.Context, targetID int64) ([]catalog.SimilarProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := make(map[int64]catalog.Product, len(s.products))
	for _, p := range s.products {
		byID[p.ID] = p
	}

	var out []catalog.SimilarProduct
	for _, e := range s.cache {
		if e.TargetID != targetID {
			continue
		}
		p, ok := byID[e.CandidateID]
		if !ok {
			continue
		}
		out = append(out, catalog.SimilarProduct{
			Candidate: catalog.Candidate{
				Title:    p.Title,
				Platform: p.Platform,
				Price:    p.Price,
				URL:      p.URL,
				ImageURL: p.ImageURL,
				Source:   catalog.CandidateSourceProducts,
			},
			Similarity: e.Similarity,
			Reason:     e.Reason,
			Confidence: e.Confidence,
			Category:   e.Category,
		})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Similarity > out[b].Similarity })
	return out, nil
}

// UpsertComparisonProduct implements catalog.ComparisonStore.
func (s *Store) UpsertComparisonProduct(_ context.Context, c catalog.Candidate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		p := &s.products[i]
		if p.SessionID == catalog.ComparisonSessionID && p.URL == c.URL {
			p.Title = c.Title
			p.Price = c.Price
			p.ImageURL = c.ImageURL
			return p.ID, nil
		}
	}
	s.nextProductID++
	s.products = append(s.products, catalog.Product{
		ID:        s.nextProductID,
		SessionID: catalog.ComparisonSessionID,
		Platform:  c.Platform,
		Title:     c.Title,
		Price:     c.Price,
		URL:       c.URL,
		ImageURL:  c.ImageURL,
	})
	return s.nextProductID, nil
}

// InsertCacheEntries implements catalog.ComparisonStore.
func (s *Store) InsertCacheEntries(_ context.Context, entries []catalog.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = append(s.cache, entries...)
	return nil
}

// ClearComparisonCache implements catalog.ComparisonStore.
func (s *Store) ClearComparisonCache(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil
	return nil
}

// ReplaceDeals implements catalog.DealStore.
func (s *Store) ReplaceDeals(_ context.Context, platform string, deals []catalog.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.deals[:0]
	for _, d := range s.deals {
		if d.Platform != platform {
			kept = append(kept, d)
		}
	}
	s.deals = kept
	for _, d := range deals {
		s.nextDealID++
		d.ID = s.nextDealID
		d.Platform = platform
		s.deals = append(s.deals, d)
	}
	return nil
}

// ListDeals implements catalog.DealStore.
func (s *Store) ListDeals(context.Context) ([]catalog.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]catalog.Deal(nil), s.deals...), nil
}
