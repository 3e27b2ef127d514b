package search

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"madcrm/api/internal/store"
)

const reindexBatch = 500

// Service is the facade list handlers call. It answers from Meilisearch when
// it is healthy and otherwise lets the store fall back to ILIKE matching.
type Service struct {
	index Index
	log   *zap.Logger
	spawn func(func())
}

// NewService creates a search service. index may be nil if Meilisearch is
// not configured.
func NewService(index Index, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		index: index,
		log:   log,
		spawn: func(fn func()) { go fn() },
	}
}

func (s *Service) available() bool {
	return s != nil && s.index != nil && s.index.Healthy()
}

// PartnerIDs resolves q to matching partner ids. A nil result means the
// caller should filter with SQL instead. That includes a result that hit
// maxHits, since scope and paging run after the id filter and a truncated
// list would drop matches.
func (s *Service) PartnerIDs(q string) []int64 {
	q = strings.TrimSpace(q)
	if q == "" || !s.available() {
		return nil
	}
	ids, err := s.index.SearchIDs(q, maxHits)
	if err != nil {
		s.log.Warn("meilisearch error, falling back to sql", zap.String("query", q), zap.Error(err))
		return nil
	}
	if len(ids) >= maxHits {
		s.log.Debug("search hit limit, falling back to sql", zap.String("query", q), zap.Int("hits", len(ids)))
		return nil
	}
	return ids
}

// IndexPartner pushes one partner to the index (fire-and-forget). Removed
// partners stay in the index flagged so queries filter them out.
func (s *Service) IndexPartner(p store.Partner) {
	if !s.available() {
		return
	}
	record := RecordFromPartner(p)
	s.spawn(func() {
		if err := s.index.IndexPartners([]PartnerRecord{record}); err != nil {
			s.log.Warn("index partner", zap.Int64("partner_id", record.ID), zap.Error(err))
		}
	})
}

// ReindexFromStore pushes every stored partner to the index in batches.
func (s *Service) ReindexFromStore(ctx context.Context, src PartnerSource) (int, error) {
	if !s.available() {
		return 0, nil
	}
	partners, err := src.AllPartners(ctx)
	if err != nil {
		return 0, err
	}

	indexed := 0
	for start := 0; start < len(partners); start += reindexBatch {
		end := min(start+reindexBatch, len(partners))
		batch := make([]PartnerRecord, 0, end-start)
		for _, p := range partners[start:end] {
			batch = append(batch, RecordFromPartner(p))
		}
		if err := s.index.IndexPartners(batch); err != nil {
			return indexed, err
		}
		indexed += len(batch)
	}
	s.log.Info("partners reindexed", zap.Int("count", indexed))
	return indexed, nil
}
