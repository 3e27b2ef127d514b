// Package projector flattens partners and POCs into the list views the
// dashboards read. Related rows for a page are fetched with one query per
// table and folded so the newest row per partner wins.
package projector

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"madcrm/api/internal/store"
)

// Batch is the set of per-page lookups a projection needs.
type Batch interface {
	AgreementsForPartners(ctx context.Context, partnerIDs []int64) ([]store.PartnerAgreement, error)
	PocLinksForPartners(ctx context.Context, partnerIDs []int64) ([]store.PocLink, error)
	CoAssignmentsForPartners(ctx context.Context, partnerIDs []int64) ([]store.CoAssignment, error)
	MousForPartners(ctx context.Context, partnerIDs []int64) ([]store.Mou, error)
	MeetingsForPartners(ctx context.Context, partnerIDs []int64) ([]store.Meeting, error)
}

type Stage struct {
	Stage     string    `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
}

// PartnerView is one partner with its latest agreement, CO, MOU, meeting
// and POC folded in.
type PartnerView struct {
	ID                     int64     `json:"id"`
	PartnerName            string    `json:"partner_name"`
	AddressLine1           string    `json:"address_line_1"`
	AddressLine2           *string   `json:"address_line_2"`
	CityID                 *int64    `json:"city_id"`
	CityName               *string   `json:"city_name"`
	StateID                *int64    `json:"state_id"`
	StateName              *string   `json:"state_name"`
	Pincode                *int64    `json:"pincode"`
	LeadSource             *string   `json:"lead_source"`
	Classes                []string  `json:"classes"`
	SchoolType             *string   `json:"school_type"`
	PartnerAffiliationType *string   `json:"partner_affiliation_type"`
	TotalChildCount        *int64    `json:"total_child_count"`
	LowIncomeResource      *bool     `json:"low_income_resource"`
	Interested             *bool     `json:"interested"`
	CreatedBy              *int64    `json:"created_by"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`

	ConversionStage       *string    `json:"conversion_stage"`
	PotentialChildCount   *int64     `json:"potential_child_count"`
	CurrentStatus         *string    `json:"current_status"`
	ExpectedConversionDay *int64     `json:"expected_conversion_day"`
	NonConversionReason   *string    `json:"non_conversion_reason"`
	AgreementDropDate     *time.Time `json:"agreement_drop_date"`
	SpecificDocRequired   *bool      `json:"specific_doc_required"`
	SpecificDocName       *string    `json:"specific_doc_name"`

	CoID   *int64  `json:"co_id"`
	CoName *string `json:"co_name"`

	MouID               *int64     `json:"mou_id,omitempty"`
	MouSign             *bool      `json:"mou_sign,omitempty"`
	MouURL              *string    `json:"mou_url,omitempty"`
	MouSignDate         *time.Time `json:"mou_sign_date,omitempty"`
	MouStartDate        *time.Time `json:"mou_start_date,omitempty"`
	MouEndDate          *time.Time `json:"mou_end_date,omitempty"`
	MouStatus           *string    `json:"mou_status,omitempty"`
	PendingMouReason    *string    `json:"pending_mou_reason,omitempty"`
	ConfirmedChildCount *int64     `json:"confirmed_child_count,omitempty"`

	FollowUpMeetingScheduled *bool `json:"follow_up_meeting_scheduled,omitempty"`

	PocID              *int64     `json:"poc_id,omitempty"`
	PocName            *string    `json:"poc_name,omitempty"`
	PocContact         *int64     `json:"poc_contact,omitempty"`
	PocDesignation     *string    `json:"poc_designation,omitempty"`
	PocEmail           *string    `json:"poc_email,omitempty"`
	DateOfFirstContact *time.Time `json:"date_of_first_contact,omitempty"`

	TrackingHistory []Stage `json:"tracking_history"`
}

// PocView is a POC with its partner and current CO.
type PocView struct {
	ID                 int64      `json:"id"`
	PocName            *string    `json:"poc_name"`
	PocEmail           *string    `json:"poc_email"`
	PocContact         *int64     `json:"poc_contact"`
	PocDesignation     *string    `json:"poc_designation"`
	DateOfFirstContact *time.Time `json:"date_of_first_contact"`
	CreatedAt          time.Time  `json:"createdAt"`
	PartnerID          *int64     `json:"partner_id"`
	PartnerName        *string    `json:"partner_name"`
	AddressLine1       *string    `json:"address_line_1"`
	LeadSource         *string    `json:"lead_source"`
	City               *string    `json:"city"`
	CoID               *int64     `json:"co_id"`
	CoName             *string    `json:"co_name"`
	CoEmail            *string    `json:"co_email"`
}

type Projector struct {
	batch Batch
}

func New(b Batch) *Projector {
	return &Projector{batch: b}
}

type related struct {
	agreements []store.PartnerAgreement
	links      []store.PocLink
	cos        []store.CoAssignment
	mous       []store.Mou
	meetings   []store.Meeting
}

func (p *Projector) fetch(ctx context.Context, ids []int64) (related, error) {
	var r related
	if len(ids) == 0 {
		return r, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		r.agreements, err = p.batch.AgreementsForPartners(gctx, ids)
		return err
	})
	g.Go(func() (err error) {
		r.links, err = p.batch.PocLinksForPartners(gctx, ids)
		return err
	})
	g.Go(func() (err error) {
		r.cos, err = p.batch.CoAssignmentsForPartners(gctx, ids)
		return err
	})
	g.Go(func() (err error) {
		r.mous, err = p.batch.MousForPartners(gctx, ids)
		return err
	})
	g.Go(func() (err error) {
		r.meetings, err = p.batch.MeetingsForPartners(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return related{}, err
	}
	return r, nil
}

// Partners projects a page of partners, keeping their order.
func (p *Projector) Partners(ctx context.Context, partners []store.Partner) ([]PartnerView, error) {
	ids := make([]int64, 0, len(partners))
	for _, pt := range partners {
		ids = append(ids, pt.ID)
	}
	r, err := p.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Rows arrive ordered by partner_id, created_at ascending, so the last
	// assignment per key is the latest.
	latestAgreement := map[int64]store.PartnerAgreement{}
	history := map[int64][]Stage{}
	for _, a := range r.agreements {
		latestAgreement[a.PartnerID] = a
		history[a.PartnerID] = append(history[a.PartnerID], Stage{Stage: a.ConversionStage, Timestamp: a.CreatedAt})
	}
	latestLink := map[int64]store.PocLink{}
	for _, l := range r.links {
		latestLink[l.PartnerID] = l
	}
	latestCo := map[int64]store.CoAssignment{}
	for _, c := range r.cos {
		latestCo[c.PartnerID] = c
	}
	latestMou := map[int64]store.Mou{}
	for _, m := range r.mous {
		latestMou[m.PartnerID] = m
	}
	latestMeeting := map[int64]store.Meeting{}
	for _, m := range r.meetings {
		latestMeeting[m.PartnerID] = m
	}

	out := make([]PartnerView, 0, len(partners))
	for _, pt := range partners {
		v := partnerView(pt)
		if a, ok := latestAgreement[pt.ID]; ok {
			stage, required := a.ConversionStage, a.SpecificDocRequired
			v.ConversionStage = &stage
			v.PotentialChildCount = a.PotentialChildCount
			v.CurrentStatus = a.CurrentStatus
			v.ExpectedConversionDay = a.ExpectedConversionDay
			v.NonConversionReason = a.NonConversionReason
			v.AgreementDropDate = a.AgreementDropDate
			v.SpecificDocRequired = &required
			v.SpecificDocName = a.SpecificDocName
		}
		if c, ok := latestCo[pt.ID]; ok {
			coID := c.CoID
			v.CoID = &coID
			v.CoName = c.CoName
		}
		if m, ok := latestMou[pt.ID]; ok {
			id, sign, status := m.ID, m.MouSign, m.MouStatus
			v.MouID = &id
			v.MouSign = &sign
			v.MouURL = m.MouURL
			v.MouSignDate = m.MouSignDate
			v.MouStartDate = m.MouStartDate
			v.MouEndDate = m.MouEndDate
			v.MouStatus = &status
			v.PendingMouReason = m.PendingMouReason
			v.ConfirmedChildCount = m.ConfirmedChildCount
		}
		if m, ok := latestMeeting[pt.ID]; ok {
			scheduled := m.FollowUpMeetingScheduled
			v.FollowUpMeetingScheduled = &scheduled
		}
		if l, ok := latestLink[pt.ID]; ok {
			pocID := l.Poc.ID
			v.PocID = &pocID
			v.PocName = l.Poc.PocName
			v.PocContact = l.Poc.PocContact
			v.PocDesignation = l.Poc.PocDesignation
			v.PocEmail = l.Poc.PocEmail
			v.DateOfFirstContact = l.Poc.DateOfFirstContact
		}
		v.TrackingHistory = history[pt.ID]
		if v.TrackingHistory == nil {
			v.TrackingHistory = []Stage{}
		}
		out = append(out, v)
	}
	return out, nil
}

func partnerView(p store.Partner) PartnerView {
	return PartnerView{
		ID:                     p.ID,
		PartnerName:            p.PartnerName,
		AddressLine1:           p.AddressLine1,
		AddressLine2:           p.AddressLine2,
		CityID:                 p.CityID,
		CityName:               p.CityName,
		StateID:                p.StateID,
		StateName:              p.StateName,
		Pincode:                p.Pincode,
		LeadSource:             p.LeadSource,
		Classes:                p.Classes,
		SchoolType:             p.SchoolType,
		PartnerAffiliationType: p.PartnerAffiliationType,
		TotalChildCount:        p.TotalChildCount,
		LowIncomeResource:      p.LowIncomeResource,
		Interested:             p.Interested,
		CreatedBy:              p.CreatedBy,
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
	}
}

// Pocs maps joined POC rows to their list view.
func Pocs(rows []store.PocRow) []PocView {
	out := make([]PocView, 0, len(rows))
	for _, r := range rows {
		out = append(out, PocView{
			ID:                 r.Poc.ID,
			PocName:            r.Poc.PocName,
			PocEmail:           r.Poc.PocEmail,
			PocContact:         r.Poc.PocContact,
			PocDesignation:     r.Poc.PocDesignation,
			DateOfFirstContact: r.Poc.DateOfFirstContact,
			CreatedAt:          r.Poc.CreatedAt,
			PartnerID:          r.Poc.PartnerID,
			PartnerName:        r.PartnerName,
			AddressLine1:       r.AddressLine1,
			LeadSource:         r.LeadSource,
			City:               r.CityName,
			CoID:               r.CoID,
			CoName:             r.CoName,
			CoEmail:            r.CoEmail,
		})
	}
	return out
}
