package app

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"madcrm/api/internal/export"
	"madcrm/api/internal/pipeline"
	"madcrm/api/internal/store"
)

const (
	msgOrganizationsListed = "Successfully retrieved partners with converted agreements and all related details"
	msgOrganizationUpdated = "Successfully updated Organization details and agreements."
	msgOrganizationDeleted = "Organization deleted successfully"
	msgMouRenewed          = "MOU renewed successfully"
	msgPartnerReallocated  = "Partner reallocated successfully"
)

func (s *HTTPServer) handleOrganizationList(w http.ResponseWriter, r *http.Request) {
	view := store.ViewOrganizations
	if strings.EqualFold(r.URL.Query().Get("status"), "inactive") {
		view = store.ViewInactiveOrganizations
	}
	page, err := s.service.ListPartners(r.Context(), actorFrom(r.Context()), view, listQuery(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"result":     page.Result,
		"pagination": page.Pagination,
		"message":    msgOrganizationsListed,
	})
}

func (s *HTTPServer) handleOrganizationUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body updateOrganizationRequest
	doc, err := bindRequest(r, &body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.UpdateOrganization(r.Context(), actorFrom(r.Context()), id, body.update(doc)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msgOrganizationUpdated})
}

func (s *HTTPServer) handleOrganizationDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body deleteOrganizationRequest
	if _, err := bindRequest(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	req := pipeline.OrganizationDelete{Reason: strings.TrimSpace(body.Reason), Remarks: clean(body.Remarks)}
	if err := s.service.DeleteOrganization(r.Context(), actorFrom(r.Context()), id, req); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msgOrganizationDeleted})
}

func (s *HTTPServer) handleRenewMou(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body renewMouRequest
	doc, err := bindRequest(r, &body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	renewal, err := body.renewal(doc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	mou, err := s.service.RenewMou(r.Context(), actorFrom(r.Context()), id, renewal)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msgMouRenewed,
		"result":  mouResponse(mou),
	})
}

func (s *HTTPServer) handleReallocate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body reallocateRequest
	if _, err := bindRequest(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.PartnerID != nil && int64(*body.PartnerID) != id {
		s.fail(w, r, validationError([]map[string]string{{
			"field": "partner_id", "rule": "eqfield", "message": "partner_id does not match the organization in the path",
		}}))
		return
	}
	res, err := s.service.Reallocate(r.Context(), actorFrom(r.Context()), pipeline.Reallocation{
		PartnerID:          id,
		CurrentCoUserLogin: lower(body.CurrentCoUserLogin),
		NewCoUserLogin:     lower(body.NewCoUserLogin),
		MeetingDate:        body.MeetingDate.time(),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msgPartnerReallocated,
		"result":  res,
	})
}

func (s *HTTPServer) handleOrganizationReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	format, ok := export.ParseFormat(strings.ToLower(r.URL.Query().Get("format")))
	if !ok {
		s.fail(w, r, validationError([]map[string]string{{
			"field": "format", "rule": "oneof", "message": "format must be one of pdf html",
		}}))
		return
	}
	res, err := s.service.ExportReport(r.Context(), actorFrom(r.Context()), id, format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", res.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func mouResponse(m store.Mou) map[string]any {
	return map[string]any{
		"id":                    m.ID,
		"partner_id":            m.PartnerID,
		"mou_sign":              m.MouSign,
		"mou_sign_date":         dateOrNil(m.MouSignDate),
		"mou_start_date":        dateOrNil(m.MouStartDate),
		"mou_end_date":          dateOrNil(m.MouEndDate),
		"mou_url":               m.MouURL,
		"mou_status":            m.MouStatus,
		"confirmed_child_count": m.ConfirmedChildCount,
		"createdAt":             m.CreatedAt,
	}
}

func dateOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
