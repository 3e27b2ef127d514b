package app

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestRoleAccess(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{name: "wingman cannot list leads", token: "wingman-token", method: http.MethodGet, path: "/api/lead/list", wantStatus: http.StatusForbidden},
		{name: "wingman cannot list pocs", token: "wingman-token", method: http.MethodGet, path: "/api/poc/list", wantStatus: http.StatusForbidden},
		{name: "case officer lists leads", token: "co-token", method: http.MethodGet, path: "/api/lead/list", wantStatus: http.StatusOK},
		{
			name: "case officer cannot reallocate", token: "co-token", method: http.MethodPost,
			path: "/api/organization/1/reallocatePartner", body: `{"current_co_user_login":"a","new_co_user_login":"b"}`,
			wantStatus: http.StatusForbidden,
		},
		{
			name: "manager reallocates", token: "manager-token", method: http.MethodPost,
			path: "/api/organization/1/reallocatePartner", body: `{"current_co_user_login":"a","new_co_user_login":"b"}`,
			wantStatus: http.StatusOK,
		},
		{name: "case officer cannot seed states", token: "co-token", method: http.MethodPost, path: "/api/state/create", wantStatus: http.StatusForbidden},
		{name: "lead seeds states", token: "lead-token", method: http.MethodPost, path: "/api/state/create", wantStatus: http.StatusCreated},
		{name: "manager cannot sync users", token: "manager-token", method: http.MethodPost, path: "/api/user/sync", wantStatus: http.StatusForbidden},
		{name: "lead syncs users", token: "lead-token", method: http.MethodPost, path: "/api/user/sync", wantStatus: http.StatusOK},
		{name: "anyone may list states", token: "co-token", method: http.MethodGet, path: "/api/state/listAll", wantStatus: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var body io.Reader
			if tc.body != "" {
				body = strings.NewReader(tc.body)
			}
			rr := serve(t, newTestDeps().server(Options{}).Handler(), tc.method, tc.path, tc.token, body)
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}
			if tc.wantStatus == http.StatusForbidden {
				if payload := decodeBody(t, rr); payload["code"] != "FORBIDDEN" {
					t.Fatalf("expected FORBIDDEN code, got %v", payload["code"])
				}
			}
		})
	}
}

func TestScopeHidesPartners(t *testing.T) {
	deps := newTestDeps()
	deps.scope = &fakeScope{partnerIDs: []int64{1, 2}}
	h := deps.server(Options{}).Handler()

	rr := serve(t, h, http.MethodGet, "/api/lead/read/2", "co-token", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected in-scope read, got %d", rr.Code)
	}

	rr = serve(t, h, http.MethodGet, "/api/lead/read/3", "co-token", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if payload := decodeBody(t, rr); payload["message"] != "Partner not found" {
		t.Fatalf("unexpected message %v", payload["message"])
	}

	rr = serve(t, h, http.MethodDelete, "/api/lead/delete/3", "co-token", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected out-of-scope delete to be 404, got %d", rr.Code)
	}
}
