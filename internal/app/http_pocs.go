package app

import "net/http"

func (s *HTTPServer) handlePocList(w http.ResponseWriter, r *http.Request) {
	page, err := s.service.ListPocs(r.Context(), actorFrom(r.Context()), listQuery(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	message := "Successfully found POC records"
	if page.Pagination.Count == 0 {
		message = "No POC records found"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"result":     page.Result,
		"pagination": page.Pagination,
		"message":    message,
	})
}

func (s *HTTPServer) handlePocUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body updatePocRequest
	if _, err := bindRequest(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.UpdatePoc(r.Context(), actorFrom(r.Context()), id, body.update()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"message":        "Successfully updated poc details.",
		"poc_req_status": "updated",
	})
}

func (s *HTTPServer) handlePocDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.DeletePoc(r.Context(), actorFrom(r.Context()), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Poc Deleted Successfull"})
}
