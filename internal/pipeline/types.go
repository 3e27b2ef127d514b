package pipeline

import (
	"time"

	"madcrm/api/internal/store"
)

// PartnerFields holds partner edits; nil fields keep the stored value.
type PartnerFields struct {
	PartnerName            *string
	AddressLine1           *string
	AddressLine2           *string
	Pincode                *int64
	PartnerAffiliationType *string
	SchoolType             *string
	TotalChildCount        *int64
	LeadSource             *string
	Classes                []string
	LowIncomeResource      *bool
	Interested             *bool
	StateID                *int64
	CityID                 *int64
}

func (f PartnerFields) apply(p *store.Partner) {
	if f.PartnerName != nil {
		p.PartnerName = *f.PartnerName
	}
	if f.AddressLine1 != nil {
		p.AddressLine1 = *f.AddressLine1
	}
	if f.AddressLine2 != nil {
		p.AddressLine2 = f.AddressLine2
	}
	if f.Pincode != nil {
		p.Pincode = f.Pincode
	}
	if f.PartnerAffiliationType != nil {
		p.PartnerAffiliationType = f.PartnerAffiliationType
	}
	if f.SchoolType != nil {
		p.SchoolType = f.SchoolType
	}
	if f.TotalChildCount != nil {
		p.TotalChildCount = f.TotalChildCount
	}
	if f.LeadSource != nil {
		p.LeadSource = f.LeadSource
	}
	if f.Classes != nil {
		p.Classes = f.Classes
	}
	if f.LowIncomeResource != nil {
		p.LowIncomeResource = f.LowIncomeResource
	}
	if f.Interested != nil {
		p.Interested = f.Interested
	}
	if f.StateID != nil {
		p.StateID = f.StateID
	}
	if f.CityID != nil {
		p.CityID = f.CityID
	}
}

type PocFields struct {
	Name               *string
	Designation        *string
	Contact            *int64
	Email              *string
	DateOfFirstContact *time.Time
}

type MouFields struct {
	Sign                bool
	SignDate            *time.Time
	StartDate           *time.Time
	EndDate             *time.Time
	ConfirmedChildCount *int64
}

// Document is an uploaded file held in memory.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// LeadUpdate is the payload of a lead edit. Stage is the requested
// conversion stage; the remaining groups feed the transition for it.
type LeadUpdate struct {
	Partner               PartnerFields
	Stage                 string
	PotentialChildCount   *int64
	Poc                   PocFields
	SpecificDocRequired   bool
	SpecificDocName       *string
	Mou                   MouFields
	CurrentStatus         *string
	ExpectedConversionDay *int64
	NonConversionReason   *string
	IfAnyOtherReason      *string
	AgreementDropDate     *time.Time
	Document              *Document
}

// LeadOutcome reports what an update did to the pipeline.
type LeadOutcome struct {
	From      string
	To        string
	Converted bool
}

type NewLead struct {
	Partner         PartnerFields
	CoID            int64
	ConversionStage string
}

type MouRenewal struct {
	SignDate            time.Time
	StartDate           time.Time
	EndDate             time.Time
	ConfirmedChildCount int64
	Document            *Document
}

type Reallocation struct {
	PartnerID          int64
	CurrentCoUserLogin string
	NewCoUserLogin     string
	MeetingDate        *time.Time
}

type ReallocationResult struct {
	PartnerID      int64  `json:"partner_id"`
	NewCoUserID    int64  `json:"new_co_user_id"`
	NewCoUserLogin string `json:"new_co_user_login"`
	PocID          int64  `json:"poc_id"`
	MeetingID      int64  `json:"meeting_id"`
}

// Delete reasons accepted when an organization is removed.
const (
	ReasonDuplicateEntry = "duplicate_entry"
	ReasonSchoolDropped  = "school_dropped"
	ReasonSchoolInactive = "school_inactive"
	ReasonDidNotContinue = "school_did_not_want_to_continue_with_mad"
	reasonLeadDeleted    = "lead_deleted"
	statusDropped        = "dropped"
	statusRenewed        = "renewed"
)

var deleteReasons = map[string]bool{
	ReasonDuplicateEntry: true,
	ReasonSchoolDropped:  true,
	ReasonSchoolInactive: true,
	ReasonDidNotContinue: true,
}

type OrganizationDelete struct {
	Reason  string
	Remarks *string
}

// OrganizationUpdate edits an organization and its POC, and optionally
// replaces the active MOU when a signed document is attached.
type OrganizationUpdate struct {
	Partner     PartnerFields
	PocID       int64
	Poc         PocFields
	Mou         MouFields
	LatestMouID int64
	Document    *Document
}

type PocUpdate struct {
	PartnerID int64
	Poc       PocFields
}
