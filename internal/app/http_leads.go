package app

import (
	"net/http"

	"madcrm/api/internal/store"
)

const (
	msgLeadUpdated    = "Successfully updated partner details and agreements."
	msgLeadConverted  = "Lead is coverted successfully and shows in organisations tab"
	msgLeadDeleted    = "Lead Deleted Successfull"
	msgLeadCreated    = "Partner created successfully"
	msgPartnersListed = "Successfully found all documents"
)

func (s *HTTPServer) handleLeadCreate(w http.ResponseWriter, r *http.Request) {
	var body createLeadRequest
	if _, err := bindRequest(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	partner, err := s.service.CreateLead(r.Context(), actorFrom(r.Context()), body.lead())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"result":  partner,
		"message": msgLeadCreated,
	})
}

func (s *HTTPServer) handleLeadRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	partner, err := s.service.ReadPartner(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  partner,
		"message": "we found this document",
	})
}

func (s *HTTPServer) handleLeadUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body updateLeadRequest
	doc, err := bindRequest(r, &body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	outcome, err := s.service.UpdateLead(r.Context(), actorFrom(r.Context()), id, body.update(doc))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	message := msgLeadUpdated
	if outcome.Converted {
		message = msgLeadConverted
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": message,
		"result": map[string]any{
			"id":               id,
			"previous_stage":   outcome.From,
			"conversion_stage": outcome.To,
		},
	})
}

func (s *HTTPServer) handleLeadDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.DeleteLead(r.Context(), actorFrom(r.Context()), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msgLeadDeleted})
}

func (s *HTTPServer) handleLeadList(w http.ResponseWriter, r *http.Request) {
	page, err := s.service.ListPartners(r.Context(), actorFrom(r.Context()), store.ViewLeads, listQuery(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"result":     page.Result,
		"pagination": page.Pagination,
		"message":    msgPartnersListed,
	})
}

func (s *HTTPServer) handleLeadListAll(w http.ResponseWriter, r *http.Request) {
	q := listQuery(r)
	q.All = true
	page, err := s.service.ListPartners(r.Context(), actorFrom(r.Context()), store.ViewLeads, q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  page.Result,
		"message": msgPartnersListed,
	})
}
