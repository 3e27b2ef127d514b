// Package hrsync mirrors users from the HR system into user_data.
package hrsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"madcrm/api/internal/store"
)

// flexString decodes a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

// RemoteUser is one record as the HR API returns it.
type RemoteUser struct {
	UserID                    flexString `json:"user_id"`
	Email                     flexString `json:"email"`
	UserLogin                 flexString `json:"user_login"`
	UserDisplayName           flexString `json:"user_display_name"`
	UserRole                  flexString `json:"user_role"`
	ReportingManagerUserID    flexString `json:"reporting_manager_user_id"`
	ReportingManagerRoleCode  flexString `json:"reporting_manager_role_code"`
	ReportingManagerUserLogin flexString `json:"reporting_manager_user_login"`
	City                      flexString `json:"city"`
	State                     flexString `json:"state"`
	Center                    flexString `json:"center"`
	Contact                   flexString `json:"contact"`
	AddedBy                   flexString `json:"added_by"`
	UserCreatedDatetime       flexString `json:"user_created_datetime"`
	UserUpdatedDatetime       flexString `json:"user_updated_datetime"`
}

const maxContactLength = 20

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Transform normalises a remote record into a user_data row.
func Transform(r RemoteUser) (store.User, error) {
	id, err := parseDecimalID(string(r.UserID))
	if err != nil {
		return store.User{}, fmt.Errorf("user_id: %w", err)
	}
	u := store.User{
		UserID:                    id,
		Email:                     lowerTrim(r.Email),
		UserLogin:                 lowerTrim(r.UserLogin),
		DisplayName:               string(r.UserDisplayName),
		Role:                      string(r.UserRole),
		ReportingManagerRoleCode:  string(r.ReportingManagerRoleCode),
		ReportingManagerUserLogin: lowerTrim(r.ReportingManagerUserLogin),
		City:                      string(r.City),
		State:                     string(r.State),
		Center:                    string(r.Center),
		Contact:                   string(r.Contact),
		AddedBy:                   string(r.AddedBy),
	}
	if strings.TrimSpace(string(r.ReportingManagerUserID)) != "" {
		managerID, err := parseDecimalID(string(r.ReportingManagerUserID))
		if err != nil {
			return store.User{}, fmt.Errorf("reporting_manager_user_id: %w", err)
		}
		u.ReportingManagerUserID = &managerID
	}
	if u.UserCreatedAt, err = parseTime(string(r.UserCreatedDatetime)); err != nil {
		return store.User{}, fmt.Errorf("user_created_datetime: %w", err)
	}
	if u.UserUpdatedAt, err = parseTime(string(r.UserUpdatedDatetime)); err != nil {
		return store.User{}, fmt.Errorf("user_updated_datetime: %w", err)
	}
	return u, nil
}

// Validate reports every problem with a transformed row.
func Validate(u store.User) error {
	var problems []string
	if u.Email == "" {
		problems = append(problems, "email is required")
	} else if !emailPattern.MatchString(u.Email) {
		problems = append(problems, "invalid email format")
	}
	if len(u.Contact) > maxContactLength {
		problems = append(problems, "contact number too long")
	}
	if len(problems) > 0 {
		return fmt.Errorf("validation failed: %s", strings.Join(problems, ", "))
	}
	return nil
}

// parseDecimalID reads ids the HR system renders as decimals, such as
// "499245.000000000". A non-zero fraction is rejected.
func parseDecimalID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("is required")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if strings.Trim(frac, "0") != "" {
		return 0, fmt.Errorf("%q is not a whole number", s)
	}
	id, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a valid id", s)
	}
	return id, nil
}

func parseTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised time %q", s)
}

func lowerTrim(s flexString) string {
	return strings.ToLower(strings.TrimSpace(string(s)))
}

// needsUpdate reports whether incoming differs from existing in a synced
// field, or carries a newer source update time.
func needsUpdate(existing, incoming store.User) bool {
	if existing.Email != incoming.Email ||
		existing.City != incoming.City ||
		existing.State != incoming.State ||
		existing.Center != incoming.Center ||
		existing.Contact != incoming.Contact ||
		existing.Role != incoming.Role ||
		existing.UserLogin != incoming.UserLogin ||
		existing.DisplayName != incoming.DisplayName ||
		existing.ReportingManagerRoleCode != incoming.ReportingManagerRoleCode ||
		existing.ReportingManagerUserLogin != incoming.ReportingManagerUserLogin ||
		!sameID(existing.ReportingManagerUserID, incoming.ReportingManagerUserID) {
		return true
	}
	if existing.UserUpdatedAt != nil && incoming.UserUpdatedAt != nil {
		return incoming.UserUpdatedAt.After(*existing.UserUpdatedAt)
	}
	return false
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
