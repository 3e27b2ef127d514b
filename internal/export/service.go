package export

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"madcrm/api/internal/projector"
	"madcrm/api/internal/store"
)

// DataStore is the read side the report needs.
type DataStore interface {
	projector.Batch
	GetPartner(ctx context.Context, partnerID int64) (store.Partner, error)
}

type Service struct {
	store      DataStore
	projector  *projector.Projector
	chromePath string
	log        *zap.Logger

	lookPath func(string) (string, error)
	pdf      func(ctx context.Context, chromePath, html string) ([]byte, error)
	now      func() time.Time
}

// NewService creates the report exporter. chromePath may be empty to search
// PATH for a Chromium binary.
func NewService(s DataStore, chromePath string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:      s,
		projector:  projector.New(s),
		chromePath: chromePath,
		log:        log,
		lookPath:   defaultLookPath,
		pdf:        renderPDF,
		now:        time.Now,
	}
}

// PDFAvailable reports whether a Chrome binary can be found.
func (s *Service) PDFAvailable() bool {
	_, err := findChrome(s.chromePath, s.lookPath)
	return err == nil
}

// Export renders the organization report for one partner. Removed
// partners are reported as sql.ErrNoRows.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	partner, err := s.store.GetPartner(ctx, req.PartnerID)
	if err != nil {
		return nil, err
	}
	if partner.Removed {
		return nil, sql.ErrNoRows
	}

	views, err := s.projector.Partners(ctx, []store.Partner{partner})
	if err != nil {
		return nil, fmt.Errorf("project organization: %w", err)
	}
	mous, err := s.store.MousForPartners(ctx, []int64{partner.ID})
	if err != nil {
		return nil, fmt.Errorf("load mou history: %w", err)
	}

	data := ReportData{Organization: views[0], GeneratedAt: s.now().UTC()}
	// Newest first.
	for i := len(mous) - 1; i >= 0; i-- {
		data.Mous = append(data.Mous, mouRow(mous[i]))
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	name := reportFilename(partner)

	switch req.Format {
	case FormatHTML:
		return &Result{Data: []byte(html), Filename: name + ".html", MimeType: "text/html; charset=utf-8"}, nil
	case FormatPDF:
		chrome, err := findChrome(s.chromePath, s.lookPath)
		if err != nil {
			return nil, err
		}
		started := s.now()
		pdf, err := s.pdf(ctx, chrome, html)
		if err != nil {
			return nil, err
		}
		s.log.Info("organization report rendered",
			zap.Int64("partner_id", partner.ID),
			zap.Int("bytes", len(pdf)),
			zap.Duration("elapsed", s.now().Sub(started)),
		)
		return &Result{Data: pdf, Filename: name + ".pdf", MimeType: "application/pdf"}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func mouRow(m store.Mou) MouRow {
	return MouRow{
		ID:                  m.ID,
		Status:              m.MouStatus,
		Signed:              m.MouSign,
		SignDate:            m.MouSignDate,
		StartDate:           m.MouStartDate,
		EndDate:             m.MouEndDate,
		URL:                 m.MouURL,
		ConfirmedChildCount: m.ConfirmedChildCount,
		CreatedAt:           m.CreatedAt,
	}
}

func reportFilename(p store.Partner) string {
	name := slug.Make(p.PartnerName)
	if len(name) > 50 {
		name = name[:50]
	}
	if name == "" {
		name = "organization"
	}
	return name + "-" + strconv.FormatInt(p.ID, 10) + "-report"
}
