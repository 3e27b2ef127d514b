// Package search keeps a Meilisearch index of partners so list endpoints
// can resolve a free-text query to partner ids.
package search

import (
	"context"

	"madcrm/api/internal/store"
)

// PartnerRecord is the data we index for a partner.
type PartnerRecord struct {
	ID           int64  `json:"id"`
	PartnerName  string `json:"partner_name"`
	AddressLine1 string `json:"address_line_1"`
	LeadSource   string `json:"lead_source"`
	Removed      bool   `json:"removed"`
}

// RecordFromPartner converts a stored partner to its index record.
func RecordFromPartner(p store.Partner) PartnerRecord {
	r := PartnerRecord{
		ID:           p.ID,
		PartnerName:  p.PartnerName,
		AddressLine1: p.AddressLine1,
		Removed:      p.Removed,
	}
	if p.LeadSource != nil {
		r.LeadSource = *p.LeadSource
	}
	return r
}

// Index is a partner search backend.
type Index interface {
	Healthy() bool
	SearchIDs(query string, limit int) ([]int64, error)
	IndexPartners(records []PartnerRecord) error
}

// PartnerSource loads every partner for a full reindex.
type PartnerSource interface {
	AllPartners(ctx context.Context) ([]store.Partner, error)
}
