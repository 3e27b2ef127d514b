package pipeline

import (
	"context"

	"madcrm/api/internal/store"
)

// step carries one lead transition through the transaction.
type step struct {
	t        *Tracker
	tx       Tx
	partner  store.Partner
	update   LeadUpdate
	appended *[]string
}

type field struct {
	name    string
	present func(LeadUpdate) bool
}

type transition struct {
	required []field
	apply    func(ctx context.Context, s step) error
}

var (
	fieldPocName        = field{"poc_name", func(u LeadUpdate) bool { return u.Poc.Name != nil && *u.Poc.Name != "" }}
	fieldFirstContact   = field{"date_of_first_contact", func(u LeadUpdate) bool { return u.Poc.DateOfFirstContact != nil }}
	fieldDropReason     = field{"non_conversion_reason", func(u LeadUpdate) bool { return u.NonConversionReason != nil && *u.NonConversionReason != "" }}
	fieldMouSignDate    = field{"mou_sign_date", func(u LeadUpdate) bool { return u.Mou.SignDate != nil }}
	fieldMouStartDate   = field{"mou_start_date", func(u LeadUpdate) bool { return u.Mou.StartDate != nil }}
	fieldMouEndDate     = field{"mou_end_date", func(u LeadUpdate) bool { return u.Mou.EndDate != nil }}
	fieldConfirmedCount = field{"confirmed_child_count", func(u LeadUpdate) bool { return u.Mou.ConfirmedChildCount != nil }}
	fieldExpectedDay    = field{"expected_conversion_day", func(u LeadUpdate) bool { return u.ExpectedConversionDay != nil }}
)

// transitions is keyed by the requested stage. Stages without an entry
// cannot be requested through a lead update.
var transitions = map[string]transition{
	store.StageInterested: {
		required: []field{fieldPocName, fieldFirstContact},
		apply:    toInterested,
	},
	store.StageDropped: {
		required: []field{fieldPocName, fieldFirstContact, fieldDropReason},
		apply:    toDropped,
	},
	store.StageConverted: {
		required: []field{fieldMouSignDate, fieldMouStartDate, fieldMouEndDate, fieldConfirmedCount},
		apply:    toConverted,
	},
	store.StageInterestedButFacingDelay: {
		required: []field{fieldExpectedDay},
		apply:    toFacingDelay,
	},
}

func (t transition) missing(u LeadUpdate) []string {
	var names []string
	for _, f := range t.required {
		if !f.present(u) {
			names = append(names, f.name)
		}
	}
	return names
}

func toInterested(ctx context.Context, s step) error {
	if err := s.appendStage(ctx, store.PartnerAgreement{ConversionStage: store.StageFirstConversation}); err != nil {
		return err
	}
	if err := s.appendStage(ctx, store.PartnerAgreement{ConversionStage: store.StageInterested}); err != nil {
		return err
	}
	_, err := s.firstContact(ctx)
	return err
}

func toDropped(ctx context.Context, s step) error {
	if err := s.appendStage(ctx, store.PartnerAgreement{ConversionStage: store.StageFirstConversation}); err != nil {
		return err
	}
	if _, err := s.firstContact(ctx); err != nil {
		return err
	}
	if err := s.appendStage(ctx, store.PartnerAgreement{ConversionStage: store.StageNotInterested}); err != nil {
		return err
	}
	return s.appendStage(ctx, store.PartnerAgreement{
		ConversionStage:     store.StageDropped,
		NonConversionReason: s.update.NonConversionReason,
		IfAnyOtherReason:    s.update.IfAnyOtherReason,
		AgreementDropDate:   s.update.AgreementDropDate,
	})
}

func toConverted(ctx context.Context, s step) error {
	var mouURL *string
	if s.update.Document != nil {
		url, err := s.t.upload(ctx, s.update.Document)
		if err != nil {
			return err
		}
		mouURL = &url
	}

	if err := s.appendStage(ctx, store.PartnerAgreement{
		ConversionStage:     store.StageConverted,
		SpecificDocRequired: s.update.SpecificDocRequired,
		SpecificDocName:     s.update.SpecificDocName,
	}); err != nil {
		return err
	}

	if _, err := s.tx.DeactivateMous(ctx, s.partner.ID); err != nil {
		return err
	}
	_, err := s.tx.InsertMou(ctx, store.Mou{
		PartnerID:           s.partner.ID,
		MouSign:             true,
		MouSignDate:         s.update.Mou.SignDate,
		MouStartDate:        s.update.Mou.StartDate,
		MouEndDate:          s.update.Mou.EndDate,
		MouURL:              mouURL,
		MouStatus:           store.MouActive,
		ConfirmedChildCount: s.update.Mou.ConfirmedChildCount,
	})
	return err
}

func toFacingDelay(ctx context.Context, s step) error {
	return s.appendStage(ctx, store.PartnerAgreement{
		ConversionStage:       store.StageInterestedButFacingDelay,
		SpecificDocRequired:   s.update.SpecificDocRequired,
		SpecificDocName:       s.update.SpecificDocName,
		CurrentStatus:         s.update.CurrentStatus,
		ExpectedConversionDay: s.update.ExpectedConversionDay,
	})
}

// appendStage stamps the partner id and potential child count onto a row.
func (s step) appendStage(ctx context.Context, a store.PartnerAgreement) error {
	a.PartnerID = s.partner.ID
	a.PotentialChildCount = s.update.PotentialChildCount
	if _, err := s.tx.AppendAgreement(ctx, a); err != nil {
		return err
	}
	*s.appended = append(*s.appended, a.ConversionStage)
	return nil
}

// firstContact records the POC met at first contact and the meeting with
// the partner's creator on that date.
func (s step) firstContact(ctx context.Context) (store.Poc, error) {
	partnerID := s.partner.ID
	poc, err := s.tx.InsertPoc(ctx, store.Poc{
		PartnerID:          &partnerID,
		PocName:            s.update.Poc.Name,
		PocDesignation:     s.update.Poc.Designation,
		PocContact:         s.update.Poc.Contact,
		PocEmail:           s.update.Poc.Email,
		DateOfFirstContact: s.update.Poc.DateOfFirstContact,
	})
	if err != nil {
		return store.Poc{}, err
	}
	if err := s.tx.LinkPoc(ctx, poc.ID, partnerID); err != nil {
		return store.Poc{}, err
	}
	pocID := poc.ID
	if _, err := s.tx.InsertMeeting(ctx, store.Meeting{
		UserID:      s.partner.CreatedBy,
		PocID:       &pocID,
		PartnerID:   partnerID,
		MeetingDate: s.update.Poc.DateOfFirstContact,
	}); err != nil {
		return store.Poc{}, err
	}
	return poc, nil
}
