package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"madcrm/api/internal/pipeline"
	"madcrm/api/internal/sanitize"
)

const (
	maxBodyBytes   = 1 << 20
	maxUploadBytes = 10 << 20
	documentField  = "mou_document"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// flexInt accepts a JSON number or a numeric string, as sent by form posts.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	// Decimal ids such as 12.000 come from some clients.
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v != float64(int64(v)) {
		return fmt.Errorf("%q is not an integer", raw)
	}
	*f = flexInt(int64(v))
	return nil
}

func (f *flexInt) int64() *int64 {
	if f == nil {
		return nil
	}
	v := int64(*f)
	return &v
}

type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	v, err := strconv.ParseBool(strings.Trim(string(b), `"`))
	if err != nil {
		return fmt.Errorf("%s is not a boolean", b)
	}
	*f = flexBool(v)
	return nil
}

func (f *flexBool) bool() *bool {
	if f == nil {
		return nil
	}
	v := bool(*f)
	return &v
}

func (f *flexBool) isTrue() bool {
	return f != nil && bool(*f)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// flexTime accepts a date or an ISO timestamp.
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%s is not a date", b)
	}
	t, err := parseTime(raw)
	if err != nil {
		return err
	}
	*f = flexTime(t)
	return nil
}

func (f *flexTime) time() *time.Time {
	if f == nil {
		return nil
	}
	t := time.Time(*f)
	return &t
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a date", raw)
}

// flexStrings accepts one string or a list of strings.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*f = list
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err != nil {
		return errors.New("Invalid format for classes")
	}
	*f = flexStrings{one}
	return nil
}

// bindRequest decodes a JSON or multipart body into target and validates it.
// Empty values are treated as absent. The uploaded MOU document, if any, is
// returned alongside.
func bindRequest(r *http.Request, target any) (*pipeline.Document, error) {
	fields, doc, err := readFields(r)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode request fields: %w", err)
	}
	if err := json.Unmarshal(encoded, target); err != nil {
		return nil, validationError([]map[string]string{{"message": decodeMessage(err)}})
	}
	if err := validate.Struct(target); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Field + " has the wrong type"
	}
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}

func readFields(r *http.Request) (map[string]any, *pipeline.Document, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return readMultipart(r)
	}
	fields := map[string]any{}
	if r.Body == nil {
		return fields, nil, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fields, nil, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&fields); err != nil {
		return nil, nil, domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	}
	for key, value := range fields {
		if s, ok := value.(string); value == nil || ok && strings.TrimSpace(s) == "" {
			delete(fields, key)
		}
	}
	return fields, nil, nil
}

func readMultipart(r *http.Request) (map[string]any, *pipeline.Document, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, domainError(http.StatusBadRequest, "INVALID_BODY", "invalid multipart body", nil)
	}
	fields := map[string]any{}
	for key, values := range r.MultipartForm.Value {
		key = strings.TrimSuffix(key, "[]")
		var kept []string
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" && v != "null" && v != "undefined" {
				kept = append(kept, v)
			}
		}
		switch {
		case len(kept) == 0:
		case len(kept) == 1 && key != "classes":
			fields[key] = kept[0]
		default:
			fields[key] = kept
		}
	}

	files := r.MultipartForm.File[documentField]
	if len(files) == 0 {
		return fields, nil, nil
	}
	header := files[0]
	f, err := header.Open()
	if err != nil {
		return nil, nil, domainError(http.StatusBadRequest, "INVALID_BODY", "unreadable upload", nil)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, domainError(http.StatusBadRequest, "INVALID_BODY", "unreadable upload", nil)
	}
	if len(data) == 0 {
		return fields, nil, nil
	}
	return fields, &pipeline.Document{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// clean sanitizes user-entered free text.
func clean(s *string) *string {
	return sanitize.Ptr(s)
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type partnerRequest struct {
	PartnerName            *string      `json:"partner_name" validate:"omitempty,min=3,max=255"`
	AddressLine1           *string      `json:"address_line_1" validate:"omitempty,max=500"`
	AddressLine2           *string      `json:"address_line_2" validate:"omitempty,max=500"`
	Pincode                *flexInt     `json:"pincode" validate:"omitempty,min=0"`
	StateID                *flexInt     `json:"state_id" validate:"omitempty,min=1"`
	CityID                 *flexInt     `json:"city_id" validate:"omitempty,min=1"`
	LeadSource             *string      `json:"lead_source"`
	PartnerAffiliationType *string      `json:"partner_affiliation_type"`
	SchoolType             *string      `json:"school_type"`
	TotalChildCount        *flexInt     `json:"total_child_count" validate:"omitempty,min=0"`
	Classes                *flexStrings `json:"classes"`
	LowIncomeResource      *flexBool    `json:"low_income_resource"`
	Interested             *flexBool    `json:"interested"`
}

func (p partnerRequest) fields() pipeline.PartnerFields {
	f := pipeline.PartnerFields{
		PartnerName:            clean(p.PartnerName),
		AddressLine1:           clean(p.AddressLine1),
		AddressLine2:           clean(p.AddressLine2),
		Pincode:                p.Pincode.int64(),
		StateID:                p.StateID.int64(),
		CityID:                 p.CityID.int64(),
		LeadSource:             clean(p.LeadSource),
		PartnerAffiliationType: clean(p.PartnerAffiliationType),
		SchoolType:             clean(p.SchoolType),
		TotalChildCount:        p.TotalChildCount.int64(),
		LowIncomeResource:      p.LowIncomeResource.bool(),
		Interested:             p.Interested.bool(),
	}
	if p.Classes != nil {
		f.Classes = []string(*p.Classes)
	}
	return f
}

type createLeadRequest struct {
	PartnerName            *string      `json:"partner_name" validate:"required,min=3,max=255"`
	AddressLine1           *string      `json:"address_line_1" validate:"required,max=500"`
	AddressLine2           *string      `json:"address_line_2" validate:"omitempty,max=500"`
	Pincode                *flexInt     `json:"pincode" validate:"required"`
	StateID                *flexInt     `json:"state_id" validate:"required,min=1"`
	CityID                 *flexInt     `json:"city_id" validate:"required,min=1"`
	LeadSource             *string      `json:"lead_source" validate:"required"`
	CoID                   *flexInt     `json:"co_id" validate:"required,min=1"`
	PartnerAffiliationType *string      `json:"partner_affiliation_type"`
	SchoolType             *string      `json:"school_type"`
	TotalChildCount        *flexInt     `json:"total_child_count" validate:"omitempty,min=0"`
	Classes                *flexStrings `json:"classes"`
	LowIncomeResource      *flexBool    `json:"low_income_resource"`
	ConversionStage        string       `json:"conversion_stage" validate:"omitempty,oneof=new first_conversation interested interested_but_facing_delay not_interested converted dropped"`
}

func (c createLeadRequest) lead() pipeline.NewLead {
	low := false
	if c.LowIncomeResource != nil {
		low = bool(*c.LowIncomeResource)
	}
	partner := partnerRequest{
		PartnerName:            c.PartnerName,
		AddressLine1:           c.AddressLine1,
		AddressLine2:           c.AddressLine2,
		Pincode:                c.Pincode,
		StateID:                c.StateID,
		CityID:                 c.CityID,
		LeadSource:             c.LeadSource,
		PartnerAffiliationType: c.PartnerAffiliationType,
		SchoolType:             c.SchoolType,
		TotalChildCount:        c.TotalChildCount,
		Classes:                c.Classes,
	}.fields()
	partner.LowIncomeResource = &low
	return pipeline.NewLead{
		Partner:         partner,
		CoID:            int64(*c.CoID),
		ConversionStage: c.ConversionStage,
	}
}

type pocRequest struct {
	PocName            *string   `json:"poc_name" validate:"omitempty,max=255"`
	PocDesignation     *string   `json:"poc_designation" validate:"omitempty,max=255"`
	PocContact         *flexInt  `json:"poc_contact" validate:"omitempty,min=0"`
	PocEmail           *string   `json:"poc_email" validate:"omitempty,email"`
	DateOfFirstContact *flexTime `json:"date_of_first_contact"`
}

func (p pocRequest) fields() pipeline.PocFields {
	var email *string
	if p.PocEmail != nil {
		e := lower(*p.PocEmail)
		email = &e
	}
	return pipeline.PocFields{
		Name:               clean(p.PocName),
		Designation:        clean(p.PocDesignation),
		Contact:            p.PocContact.int64(),
		Email:              email,
		DateOfFirstContact: p.DateOfFirstContact.time(),
	}
}

type mouRequest struct {
	MouSign             *flexBool `json:"mou_sign"`
	MouSignDate         *flexTime `json:"mou_sign_date"`
	MouStartDate        *flexTime `json:"mou_start_date"`
	MouEndDate          *flexTime `json:"mou_end_date"`
	ConfirmedChildCount *flexInt  `json:"confirmed_child_count" validate:"omitempty,min=0"`
}

func (m mouRequest) fields() pipeline.MouFields {
	return pipeline.MouFields{
		Sign:                m.MouSign.isTrue(),
		SignDate:            m.MouSignDate.time(),
		StartDate:           m.MouStartDate.time(),
		EndDate:             m.MouEndDate.time(),
		ConfirmedChildCount: m.ConfirmedChildCount.int64(),
	}
}

type updateLeadRequest struct {
	partnerRequest
	pocRequest
	mouRequest
	ConversionStage       string    `json:"conversion_stage" validate:"required,oneof=new first_conversation interested interested_but_facing_delay not_interested converted dropped"`
	PotentialChildCount   *flexInt  `json:"potential_child_count" validate:"omitempty,min=0"`
	SpecificDocRequired   *flexBool `json:"specific_doc_required"`
	SpecificDocName       *string   `json:"specific_doc_name"`
	CurrentStatus         *string   `json:"current_status"`
	ExpectedConversionDay *flexInt  `json:"expected_conversion_day" validate:"omitempty,min=0"`
	NonConversionReason   *string   `json:"non_conversion_reason"`
	IfAnyOtherReason      *string   `json:"if_any_other_reason"`
	AgreementDropDate     *flexTime `json:"agreement_drop_date"`
}

func (u updateLeadRequest) update(doc *pipeline.Document) pipeline.LeadUpdate {
	return pipeline.LeadUpdate{
		Partner:               u.partnerRequest.fields(),
		Stage:                 u.ConversionStage,
		PotentialChildCount:   u.PotentialChildCount.int64(),
		Poc:                   u.pocRequest.fields(),
		SpecificDocRequired:   u.SpecificDocRequired.isTrue(),
		SpecificDocName:       clean(u.SpecificDocName),
		Mou:                   u.mouRequest.fields(),
		CurrentStatus:         clean(u.CurrentStatus),
		ExpectedConversionDay: u.ExpectedConversionDay.int64(),
		NonConversionReason:   clean(u.NonConversionReason),
		IfAnyOtherReason:      clean(u.IfAnyOtherReason),
		AgreementDropDate:     u.AgreementDropDate.time(),
		Document:              doc,
	}
}

type updateOrganizationRequest struct {
	partnerRequest
	pocRequest
	mouRequest
	PocID       *flexInt `json:"poc_id" validate:"required,min=1"`
	LatestMouID *flexInt `json:"latest_mou_id" validate:"omitempty,min=1"`
}

func (u updateOrganizationRequest) update(doc *pipeline.Document) pipeline.OrganizationUpdate {
	req := pipeline.OrganizationUpdate{
		Partner:  u.partnerRequest.fields(),
		PocID:    int64(*u.PocID),
		Poc:      u.pocRequest.fields(),
		Mou:      u.mouRequest.fields(),
		Document: doc,
	}
	if u.LatestMouID != nil {
		req.LatestMouID = int64(*u.LatestMouID)
	}
	return req
}

type renewMouRequest struct {
	MouSignDate         *flexTime `json:"mou_sign_date" validate:"required"`
	MouStartDate        *flexTime `json:"mou_start_date" validate:"required"`
	MouEndDate          *flexTime `json:"mou_end_date" validate:"required"`
	ConfirmedChildCount *flexInt  `json:"confirmed_child_count" validate:"required,min=0"`
}

func (r renewMouRequest) renewal(doc *pipeline.Document) (pipeline.MouRenewal, error) {
	start, end := time.Time(*r.MouStartDate), time.Time(*r.MouEndDate)
	if !end.After(start) {
		return pipeline.MouRenewal{}, validationError([]map[string]string{{
			"field": "mou_end_date", "rule": "gtfield", "message": "mou_end_date must be after mou_start_date",
		}})
	}
	return pipeline.MouRenewal{
		SignDate:            time.Time(*r.MouSignDate),
		StartDate:           start,
		EndDate:             end,
		ConfirmedChildCount: int64(*r.ConfirmedChildCount),
		Document:            doc,
	}, nil
}

type reallocateRequest struct {
	PartnerID          *flexInt  `json:"partner_id"`
	CurrentCoUserLogin string    `json:"current_co_user_login" validate:"required"`
	NewCoUserLogin     string    `json:"new_co_user_login" validate:"required"`
	MeetingDate        *flexTime `json:"meeting_date"`
}

// deleteOrganizationRequest is checked against the accepted reasons by
// the pipeline.
type deleteOrganizationRequest struct {
	Reason  string  `json:"delete_reason"`
	Remarks *string `json:"delete_remarks" validate:"omitempty,max=2000"`
}

type updatePocRequest struct {
	PartnerID          *flexInt  `json:"partner_id" validate:"required,min=1"`
	PocName            *string   `json:"poc_name" validate:"required,max=255"`
	PocDesignation     *string   `json:"poc_designation" validate:"required,max=255"`
	PocContact         *flexInt  `json:"poc_contact" validate:"required,min=0"`
	PocEmail           *string   `json:"poc_email" validate:"required,email"`
	DateOfFirstContact *flexTime `json:"date_of_first_contact" validate:"required"`
}

func (u updatePocRequest) update() pipeline.PocUpdate {
	return pipeline.PocUpdate{
		PartnerID: int64(*u.PartnerID),
		Poc: pocRequest{
			PocName:            u.PocName,
			PocDesignation:     u.PocDesignation,
			PocContact:         u.PocContact,
			PocEmail:           u.PocEmail,
			DateOfFirstContact: u.DateOfFirstContact,
		}.fields(),
	}
}

type cityRequest struct {
	CityName string  `json:"city_name" validate:"required,min=2"`
	StateID  flexInt `json:"state_id" validate:"required,min=1"`
}

type createCitiesRequest struct {
	Cities []cityRequest `json:"cities" validate:"required,min=1,dive"`
}

type loginRequest struct {
	Email    string    `json:"email" validate:"required,email"`
	Password string    `json:"password" validate:"required"`
	Remember *flexBool `json:"remember"`
}

type forgetPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// resetPasswordRequest is length-checked by authpw.
type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type syncUsersRequest struct {
	Since       *flexTime `json:"since"`
	StopOnError *flexBool `json:"stopOnError"`
}
