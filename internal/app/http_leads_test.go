package app

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"madcrm/api/internal/pipeline"
	"madcrm/api/internal/store"
)

const validLead = `{
	"partner_name": "Sunrise School",
	"address_line_1": "12 Park Road",
	"pincode": "411001",
	"state_id": 1,
	"city_id": "4",
	"lead_source": "Referral",
	"co_id": 7,
	"classes": "5th"
}`

func TestLeadCreate(t *testing.T) {
	deps := newTestDeps()
	var got pipeline.NewLead
	deps.tracker.createLeadFn = func(_ context.Context, req pipeline.NewLead) (store.Partner, error) {
		got = req
		return store.Partner{ID: 31, PartnerName: *req.Partner.PartnerName}, nil
	}
	rr := serve(t, deps.server(Options{}).Handler(), http.MethodPost, "/api/lead/create", "co-token", strings.NewReader(validLead))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.CoID != 7 || *got.Partner.Pincode != 411001 || *got.Partner.CityID != 4 {
		t.Fatalf("unexpected lead %+v", got)
	}
	if len(got.Partner.Classes) != 1 || got.Partner.Classes[0] != "5th" {
		t.Fatalf("expected single class to become a list, got %v", got.Partner.Classes)
	}
	if got.Partner.LowIncomeResource == nil || *got.Partner.LowIncomeResource {
		t.Fatalf("expected low_income_resource to default to false")
	}
	payload := decodeBody(t, rr)
	if payload["message"] != msgLeadCreated {
		t.Fatalf("unexpected message %v", payload["message"])
	}
}

func TestLeadCreateValidation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{name: "missing name", body: `{"address_line_1":"x","pincode":1,"state_id":1,"city_id":1,"lead_source":"x","co_id":1}`, wantField: "partner_name"},
		{name: "short name", body: `{"partner_name":"ab","address_line_1":"x","pincode":1,"state_id":1,"city_id":1,"lead_source":"x","co_id":1}`, wantField: "partner_name"},
		{name: "unknown stage", body: `{"partner_name":"abc","address_line_1":"x","pincode":1,"state_id":1,"city_id":1,"lead_source":"x","co_id":1,"conversion_stage":"won"}`, wantField: "conversion_stage"},
		{name: "empty strings are absent", body: `{"partner_name":"abc","address_line_1":"  ","pincode":1,"state_id":1,"city_id":1,"lead_source":"x","co_id":1}`, wantField: "address_line_1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			deps := newTestDeps()
			deps.tracker.createLeadFn = func(context.Context, pipeline.NewLead) (store.Partner, error) {
				t.Fatalf("tracker must not be called")
				return store.Partner{}, nil
			}
			rr := serve(t, deps.server(Options{}).Handler(), http.MethodPost, "/api/lead/create", "co-token", strings.NewReader(tc.body))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			payload := decodeBody(t, rr)
			if payload["code"] != "VALIDATION_ERROR" {
				t.Fatalf("expected VALIDATION_ERROR, got %v", payload["code"])
			}
			if !strings.Contains(rr.Body.String(), `"field":"`+tc.wantField+`"`) {
				t.Fatalf("expected error on %s, got %s", tc.wantField, rr.Body.String())
			}
		})
	}
}

func TestLeadUpdateMessages(t *testing.T) {
	tests := []struct {
		name        string
		outcome     pipeline.LeadOutcome
		wantMessage string
	}{
		{name: "stage change", outcome: pipeline.LeadOutcome{From: store.StageNew, To: store.StageInterested}, wantMessage: msgLeadUpdated},
		{name: "conversion", outcome: pipeline.LeadOutcome{From: store.StageInterested, To: store.StageConverted, Converted: true}, wantMessage: msgLeadConverted},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			deps := newTestDeps()
			deps.tracker.updateLeadFn = func(context.Context, int64, pipeline.LeadUpdate) (pipeline.LeadOutcome, error) {
				return tc.outcome, nil
			}
			rr := serve(t, deps.server(Options{}).Handler(), http.MethodPatch, "/api/lead/update/3", "co-token",
				strings.NewReader(`{"conversion_stage":"`+tc.outcome.To+`"}`))
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			payload := decodeBody(t, rr)
			if payload["message"] != tc.wantMessage {
				t.Fatalf("unexpected message %v", payload["message"])
			}
			result, _ := payload["result"].(map[string]any)
			if result["previous_stage"] != tc.outcome.From {
				t.Fatalf("unexpected previous stage %v", result["previous_stage"])
			}
		})
	}
}

func TestLeadUpdateMultipartDocument(t *testing.T) {
	deps := newTestDeps()
	var got pipeline.LeadUpdate
	deps.tracker.updateLeadFn = func(_ context.Context, _ int64, upd pipeline.LeadUpdate) (pipeline.LeadOutcome, error) {
		got = upd
		return pipeline.LeadOutcome{From: store.StageInterested, To: store.StageConverted, Converted: true}, nil
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("conversion_stage", "converted")
	_ = form.WriteField("mou_sign", "true")
	_ = form.WriteField("mou_start_date", "2026-01-01")
	_ = form.WriteField("mou_end_date", "2027-01-01")
	_ = form.WriteField("classes[]", "6th")
	_ = form.WriteField("classes[]", "7th")
	_ = form.WriteField("poc_email", "null")
	part, err := form.CreateFormFile("mou_document", "signed.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("%PDF-1.4"))
	_ = form.Close()

	req := httptest.NewRequest(http.MethodPatch, "/api/lead/update/3", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer co-token")
	rr := httptest.NewRecorder()
	deps.server(Options{}).Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.Document == nil || got.Document.Name != "signed.pdf" || string(got.Document.Data) != "%PDF-1.4" {
		t.Fatalf("expected document to be forwarded, got %+v", got.Document)
	}
	if !got.Mou.Sign || got.Mou.StartDate == nil || got.Mou.StartDate.Year() != 2026 {
		t.Fatalf("unexpected mou fields %+v", got.Mou)
	}
	if len(got.Partner.Classes) != 2 {
		t.Fatalf("expected two classes, got %v", got.Partner.Classes)
	}
	if got.Poc.Email != nil {
		t.Fatalf("expected null poc_email to be dropped, got %q", *got.Poc.Email)
	}
}

func TestPipelineErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		production bool
		wantStatus int
		wantDetail bool
	}{
		{name: "invalid transition", err: &pipeline.Error{Kind: pipeline.KindInvalid, Message: "Invalid stage transition"}, wantStatus: http.StatusBadRequest},
		{name: "missing partner", err: &pipeline.Error{Kind: pipeline.KindNotFound, Message: "Partner not found"}, wantStatus: http.StatusNotFound},
		{name: "upload failed", err: &pipeline.Error{Kind: pipeline.KindUpstream, Message: "Failed to upload MOU document"}, wantStatus: http.StatusInternalServerError, wantDetail: true},
		{name: "upload failed in production", err: &pipeline.Error{Kind: pipeline.KindUpstream, Message: "Failed to upload MOU document"}, production: true, wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			deps := newTestDeps()
			deps.tracker.updateLeadFn = func(context.Context, int64, pipeline.LeadUpdate) (pipeline.LeadOutcome, error) {
				return pipeline.LeadOutcome{}, tc.err
			}
			rr := serve(t, deps.server(Options{Production: tc.production}).Handler(), http.MethodPatch, "/api/lead/update/3", "co-token",
				strings.NewReader(`{"conversion_stage":"interested"}`))
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			payload := decodeBody(t, rr)
			if _, ok := payload["error"]; ok != tc.wantDetail {
				t.Fatalf("expected error detail=%v, got %v", tc.wantDetail, payload)
			}
		})
	}
}

func TestLeadListQuery(t *testing.T) {
	deps := newTestDeps()
	var got store.PartnerFilter
	deps.store.listPartnersFn = func(_ context.Context, f store.PartnerFilter) ([]store.Partner, int, error) {
		got = f
		return []store.Partner{}, 0, nil
	}
	h := deps.server(Options{}).Handler()

	rr := serve(t, h, http.MethodGet, "/api/lead/list?page=2&items=5&sortBy=partner_name&sortValue=ASC&q=sun", "lead-token", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got.Limit != 5 || got.Offset != 5 || got.SortBy != "partner_name" || got.SortDesc || got.Search != "sun" {
		t.Fatalf("unexpected filter %+v", got)
	}

	serve(t, h, http.MethodGet, "/api/lead/listAll", "lead-token", nil)
	if got.Limit != 0 {
		t.Fatalf("expected listAll to disable paging, got limit %d", got.Limit)
	}
}

func TestLeadReadBadID(t *testing.T) {
	rr := serve(t, newTestDeps().server(Options{}).Handler(), http.MethodGet, "/api/lead/read/abc", "co-token", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestOrganizationListInactiveView(t *testing.T) {
	deps := newTestDeps()
	var view string
	deps.store.listPartnersFn = func(_ context.Context, f store.PartnerFilter) ([]store.Partner, int, error) {
		view = f.View
		return []store.Partner{}, 0, nil
	}
	h := deps.server(Options{}).Handler()

	serve(t, h, http.MethodGet, "/api/organization/list", "co-token", nil)
	if view != store.ViewOrganizations {
		t.Fatalf("expected organizations view, got %q", view)
	}
	serve(t, h, http.MethodGet, "/api/organization/list?status=inactive", "co-token", nil)
	if view != store.ViewInactiveOrganizations {
		t.Fatalf("expected inactive view, got %q", view)
	}
}

func TestOrganizationDelete(t *testing.T) {
	deps := newTestDeps()
	var got pipeline.OrganizationDelete
	deps.tracker.deleteOrganizationFn = func(_ context.Context, _ int64, req pipeline.OrganizationDelete) error {
		got = req
		if req.Reason != pipeline.ReasonSchoolDropped {
			return &pipeline.Error{Kind: pipeline.KindInvalid, Message: "Invalid delete payload"}
		}
		return nil
	}
	h := deps.server(Options{}).Handler()

	rr := serve(t, h, http.MethodDelete, "/api/organization/delete/8", "co-token",
		strings.NewReader(`{"delete_reason":" school_dropped ","delete_remarks":"<b>closed</b> for good"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.Remarks == nil || strings.Contains(*got.Remarks, "<b>") {
		t.Fatalf("expected sanitized remarks, got %v", got.Remarks)
	}

	rr = serve(t, h, http.MethodDelete, "/api/organization/delete/8", "co-token", strings.NewReader(`{"delete_reason":"bored"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if payload := decodeBody(t, rr); payload["message"] != "Invalid delete payload" {
		t.Fatalf("unexpected message %v", payload["message"])
	}
}

func TestRenewMou(t *testing.T) {
	h := newTestDeps().server(Options{}).Handler()

	rr := serve(t, h, http.MethodPost, "/api/organization/4/renewMou", "co-token", strings.NewReader(
		`{"mou_sign_date":"2026-03-01","mou_start_date":"2026-04-01","mou_end_date":"2026-03-31","confirmed_child_count":40}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected end-before-start to fail, got %d", rr.Code)
	}

	rr = serve(t, h, http.MethodPost, "/api/organization/4/renewMou", "co-token", strings.NewReader(
		`{"mou_sign_date":"2026-03-01","mou_start_date":"2026-04-01","mou_end_date":"2027-03-31","confirmed_child_count":"40"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	result, _ := decodeBody(t, rr)["result"].(map[string]any)
	if result["mou_status"] != store.MouActive {
		t.Fatalf("unexpected renewal result %v", result)
	}
}

func TestReallocatePartnerMismatch(t *testing.T) {
	deps := newTestDeps()
	var got pipeline.Reallocation
	deps.tracker.reallocateFn = func(_ context.Context, req pipeline.Reallocation) (pipeline.ReallocationResult, error) {
		got = req
		return pipeline.ReallocationResult{PartnerID: req.PartnerID}, nil
	}
	h := deps.server(Options{}).Handler()

	rr := serve(t, h, http.MethodPost, "/api/organization/5/reallocatePartner", "lead-token", strings.NewReader(
		`{"partner_id":6,"current_co_user_login":"a","new_co_user_login":"b"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = serve(t, h, http.MethodPost, "/api/organization/5/reallocatePartner", "lead-token", strings.NewReader(
		`{"partner_id":"5","current_co_user_login":" Old.CO ","new_co_user_login":"New.CO"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.CurrentCoUserLogin != "old.co" || got.NewCoUserLogin != "new.co" {
		t.Fatalf("expected lowercased logins, got %+v", got)
	}
}

func TestPocEndpoints(t *testing.T) {
	deps := newTestDeps()
	var updated pipeline.PocUpdate
	deps.tracker.updatePocFn = func(_ context.Context, _ int64, req pipeline.PocUpdate) error {
		updated = req
		return nil
	}
	h := deps.server(Options{}).Handler()

	rr := serve(t, h, http.MethodGet, "/api/poc/list", "co-token", nil)
	if payload := decodeBody(t, rr); payload["message"] != "No POC records found" {
		t.Fatalf("unexpected empty list message %v", payload["message"])
	}

	rr = serve(t, h, http.MethodPatch, "/api/poc/update/2", "co-token", strings.NewReader(`{"partner_id":1,"poc_name":"Ravi"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected missing fields to fail, got %d", rr.Code)
	}

	rr = serve(t, h, http.MethodPatch, "/api/poc/update/2", "co-token", strings.NewReader(`{
		"partner_id": 1, "poc_name": "Ravi", "poc_designation": "Principal",
		"poc_contact": "9876543210", "poc_email": "Ravi@School.ORG", "date_of_first_contact": "2026-02-10"
	}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if payload := decodeBody(t, rr); payload["poc_req_status"] != "updated" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if updated.Poc.Email == nil || *updated.Poc.Email != "ravi@school.org" {
		t.Fatalf("expected lowercased email, got %v", updated.Poc.Email)
	}
}

func TestCityEndpoints(t *testing.T) {
	deps := newTestDeps()
	deps.store.listCitiesFn = func(_ context.Context, stateID int64) ([]store.City, error) {
		return []store.City{{ID: 1, CityName: "Pune", StateID: stateID}}, nil
	}
	var inserted []store.City
	deps.store.insertCityFn = func(_ context.Context, c store.City) (store.City, bool, error) {
		inserted = append(inserted, c)
		return c, true, nil
	}
	h := deps.server(Options{}).Handler()

	rr := serve(t, h, http.MethodGet, "/api/city/listAll?stateId=x", "co-token", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad state id, got %d", rr.Code)
	}
	rr = serve(t, h, http.MethodGet, "/api/city/listAll?stateId=2", "co-token", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Pune") {
		t.Fatalf("unexpected city list %d %s", rr.Code, rr.Body.String())
	}

	rr = serve(t, h, http.MethodPost, "/api/city/create", "lead-token", strings.NewReader(
		`{"cities":[{"city_name":"<i>Nashik</i>","state_id":"2"}]}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(inserted) != 1 || inserted[0].CityName != "Nashik" || inserted[0].StateID != 2 {
		t.Fatalf("unexpected inserted cities %+v", inserted)
	}
}
