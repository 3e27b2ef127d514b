package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const idxPartners = "crm_partners"

// maxHits caps how many ids one query may resolve to.
const maxHits = 1000

// Meili implements Index via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     *zap.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the partner index.
// An unreachable server leaves the client unhealthy; a background loop
// keeps probing and reconfigures once it answers.
func NewMeili(url, apiKey string, log *zap.Logger) *Meili {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		log:    log,
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		log.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxPartners, PrimaryKey: "id"}); err != nil {
		m.log.Debug("create index (may already exist)", zap.String("index", idxPartners), zap.Error(err))
	}

	index := m.client.Index(idxPartners)
	filterable := []interface{}{"removed"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warn("update filterable attributes", zap.String("index", idxPartners), zap.Error(err))
	}
	searchable := []string{"partner_name", "address_line_1", "lead_source"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn("update searchable attributes", zap.String("index", idxPartners), zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// SearchIDs returns the ids of non-removed partners matching query.
func (m *Meili) SearchIDs(query string, limit int) ([]int64, error) {
	if !m.healthy.Load() {
		return nil, errors.New("meilisearch unhealthy")
	}
	if limit <= 0 || limit > maxHits {
		limit = maxHits
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:             idxPartners,
			Query:                query,
			Limit:                int64(limit),
			Filter:               "removed = false",
			AttributesToRetrieve: []string{"id"},
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	ids := []int64{}
	for _, sr := range resp.Results {
		for _, hit := range sr.Hits {
			if id, ok := hitID(hit); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func hitID(hit meili.Hit) (int64, bool) {
	raw, ok := hit["id"]
	if !ok {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, false
	}
	return id, true
}

// IndexPartners adds or replaces partner records.
func (m *Meili) IndexPartners(records []PartnerRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxPartners).AddDocuments(records, nil)
	return err
}
