package store

import "time"

// Conversion stages recorded on partner_agreements.
const (
	StageNew                      = "new"
	StageFirstConversation        = "first_conversation"
	StageInterested               = "interested"
	StageInterestedButFacingDelay = "interested_but_facing_delay"
	StageNotInterested            = "not_interested"
	StageConverted                = "converted"
	StageDropped                  = "dropped"
)

const (
	MouActive   = "active"
	MouInactive = "inactive"
)

type State struct {
	ID        int64     `json:"id"`
	StateName string    `json:"state_name"`
	CreatedAt time.Time `json:"createdAt"`
}

type City struct {
	ID       int64  `json:"id"`
	CityName string `json:"city_name"`
	StateID  int64  `json:"state_id"`
}

// User mirrors a row of user_data. Rows are written only by the HR sync.
type User struct {
	UserID                    int64
	Email                     string
	UserLogin                 string
	DisplayName               string
	Role                      string
	City                      string
	State                     string
	Center                    string
	Contact                   string
	ReportingManagerUserID    *int64
	ReportingManagerRoleCode  string
	ReportingManagerUserLogin string
	AddedBy                   string
	UserCreatedAt             *time.Time
	UserUpdatedAt             *time.Time
}

type UserPassword struct {
	ID                  int64
	UserID              int64
	PasswordHash        string
	Salt                string
	IsDefaultPassword   bool
	ResetToken          *string
	ResetTokenExpiresAt *time.Time
	ResetUsedAt         *time.Time
	PasswordChangedAt   *time.Time
	Removed             bool
}

type Partner struct {
	ID                     int64
	PartnerName            string
	AddressLine1           string
	AddressLine2           *string
	Pincode                *int64
	PartnerAffiliationType *string
	SchoolType             *string
	TotalChildCount        *int64
	LeadSource             *string
	Classes                []string
	LowIncomeResource      *bool
	Interested             *bool
	Removed                bool
	CreatedBy              *int64
	StateID                *int64
	CityID                 *int64
	CityName               *string
	StateName              *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type PartnerAgreement struct {
	ID                    int64
	PartnerID             int64
	ConversionStage       string
	SpecificDocRequired   bool
	SpecificDocName       *string
	PotentialChildCount   *int64
	NonConversionReason   *string
	IfAnyOtherReason      *string
	CurrentStatus         *string
	ExpectedConversionDay *int64
	AgreementDropDate     *time.Time
	Removed               bool
	CreatedAt             time.Time
}

type Poc struct {
	ID                 int64
	PartnerID          *int64
	PocName            *string
	PocDesignation     *string
	PocContact         *int64
	PocEmail           *string
	DateOfFirstContact *time.Time
	Removed            bool
	CreatedAt          time.Time
}

// PocLink is a poc_partners row joined with the POC it points at.
type PocLink struct {
	ID        int64
	PocID     int64
	PartnerID int64
	Poc       Poc
	CreatedAt time.Time
}

type Mou struct {
	ID                  int64
	PartnerID           int64
	MouSign             bool
	MouSignDate         *time.Time
	MouStartDate        *time.Time
	MouEndDate          *time.Time
	MouURL              *string
	MouStatus           string
	PendingMouReason    *string
	ConfirmedChildCount *int64
	Removed             bool
	CreatedAt           time.Time
}

type Meeting struct {
	ID                       int64
	UserID                   *int64
	PocID                    *int64
	PartnerID                int64
	MeetingDate              *time.Time
	FollowUpMeetingScheduled bool
	FollowUpMeetingDate      *time.Time
	CreatedAt                time.Time
}

// CoAssignment is a partner_cos row joined with the assigned user.
type CoAssignment struct {
	ID        int64
	PartnerID int64
	CoID      int64
	CoName    *string
	CoEmail   *string
	CreatedAt time.Time
}

type ManagerCo struct {
	ID        int64
	ManagerID int64
	CoID      int64
}

// PartnerFilter selects which partners a listing returns.
type PartnerFilter struct {
	// View is one of ViewLeads, ViewOrganizations, ViewInactiveOrganizations.
	View string
	// PartnerIDs restricts rows to the given ids when Restricted is set.
	Restricted bool
	PartnerIDs []int64
	// Search is applied with ILIKE unless SearchIDs is non-nil.
	Search    string
	SearchIDs []int64
	SortBy    string
	SortDesc  bool
	Limit     int
	Offset    int
}

const (
	ViewLeads                 = "leads"
	ViewOrganizations         = "organizations"
	ViewInactiveOrganizations = "inactive_organizations"
)

type PocFilter struct {
	Restricted bool
	PartnerIDs []int64
	Search     string
	SortBy     string
	SortDesc   bool
	Limit      int
	Offset     int
}

// PocRow is a POC joined with its partner, city and current CO.
type PocRow struct {
	Poc          Poc
	PartnerName  *string
	AddressLine1 *string
	LeadSource   *string
	CityName     *string
	CoID         *int64
	CoName       *string
	CoEmail      *string
}
