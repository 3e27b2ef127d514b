package app

import (
	"net/http"
	"strings"

	"madcrm/api/internal/authpw"
	"madcrm/api/internal/hrsync"
)

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if _, err := bindRequest(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.service.auth.Login(r.Context(), authpw.LoginRequest{
		Email:    body.Email,
		Password: body.Password,
		Remember: body.Remember.isTrue(),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result": map[string]any{
			"id":         res.User.UserID,
			"name":       res.User.DisplayName,
			"email":      res.User.Email,
			"user_login": res.User.UserLogin,
			"role":       res.User.Role,
			"token":      res.Token,
			"expiresAt":  res.ExpiresAt.Unix(),
			"maxAge":     res.MaxAge,
		},
		"message": "Successfully logged in user",
	})
}

// handleLogout closes the presented session, or every session of the user
// with ?all=true.
func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	token := bearerToken(r)
	if strings.EqualFold(r.URL.Query().Get("all"), "true") {
		token = ""
	}
	if err := s.service.auth.Logout(r.Context(), actor.UserID, token); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  map[string]any{},
		"message": "Successfully logged out",
	})
}

func (s *HTTPServer) handleForgetPassword(w http.ResponseWriter, r *http.Request) {
	var body forgetPasswordRequest
	if _, err := bindRequest(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.auth.ForgetPassword(r.Context(), body.Email); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  nil,
		"message": "Check your email inbox to reset your password",
	})
}

func (s *HTTPServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if _, err := bindRequest(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.auth.ResetPassword(r.Context(), body.Token, body.Password); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Password has been reset successfully.",
	})
}

func (s *HTTPServer) handleUserList(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.ListCoUsers(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result := make([]map[string]any, 0, len(users))
	for _, u := range users {
		result = append(result, map[string]any{
			"user_id":           u.UserID,
			"user_display_name": u.DisplayName,
			"email":             u.Email,
			"user_login":        u.UserLogin,
			"user_role":         u.Role,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  result,
		"message": "Successfully retrieved user list",
	})
}

func (s *HTTPServer) handleUserSync(w http.ResponseWriter, r *http.Request) {
	var body syncUsersRequest
	if _, err := bindRequest(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.service.SyncUsers(r.Context(), actorFrom(r.Context()), hrsync.Options{
		Since:       body.Since.time(),
		StopOnError: body.StopOnError.isTrue(),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  stats,
		"message": "User sync completed",
	})
}
