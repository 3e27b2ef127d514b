package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"madcrm/api/internal/authpw"
	"madcrm/api/internal/export"
	"madcrm/api/internal/hrsync"
	"madcrm/api/internal/pipeline"
	"madcrm/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(details any) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Validation Error", details)
}

func forbidden() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "You do not have permission to perform this action.", nil)
}

func partnerNotFound() *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", "Partner not found", nil)
}

// authStatus maps authpw failures to their HTTP status. expired marks the
// failures a client should answer by logging in again.
func authStatus(err error) (status int, expired bool, ok bool) {
	switch {
	case errors.Is(err, authpw.ErrInvalidCredentials), errors.Is(err, authpw.ErrRoleNotAllowed):
		return http.StatusForbidden, false, true
	case errors.Is(err, authpw.ErrInvalidResetLink), errors.Is(err, authpw.ErrInvalidInput):
		return http.StatusBadRequest, false, true
	case errors.Is(err, authpw.ErrNoToken),
		errors.Is(err, authpw.ErrTokenRejected),
		errors.Is(err, authpw.ErrUserMissing),
		errors.Is(err, authpw.ErrPasswordMissing),
		errors.Is(err, authpw.ErrLoggedOut):
		return http.StatusUnauthorized, true, true
	}
	return 0, false, false
}

// authMessage is the client text of an authpw failure without the wrapped
// cause.
func authMessage(err error) string {
	for _, known := range []error{
		authpw.ErrInvalidCredentials, authpw.ErrRoleNotAllowed,
		authpw.ErrInvalidResetLink, authpw.ErrInvalidInput,
		authpw.ErrNoToken, authpw.ErrTokenRejected,
		authpw.ErrUserMissing, authpw.ErrPasswordMissing, authpw.ErrLoggedOut,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return http.StatusBadRequest, "VALIDATION_ERROR", "Validation Error", fieldErrors(validationErrs)
	}
	var pipelineErr *pipeline.Error
	if errors.As(err, &pipelineErr) {
		switch pipelineErr.Kind {
		case pipeline.KindInvalid:
			return http.StatusBadRequest, "INVALID_REQUEST", pipelineErr.Message, nil
		case pipeline.KindNotFound:
			return http.StatusNotFound, "NOT_FOUND", pipelineErr.Message, nil
		case pipeline.KindUpstream:
			return http.StatusInternalServerError, "UPSTREAM_ERROR", pipelineErr.Message, nil
		}
	}
	if status, _, ok := authStatus(err); ok {
		code := "UNAUTHORIZED"
		switch status {
		case http.StatusForbidden:
			code = "FORBIDDEN"
		case http.StatusBadRequest:
			code = "INVALID_REQUEST"
		}
		return status, code, authMessage(err), nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil
	}
	if errors.Is(err, hrsync.ErrRunning) {
		return http.StatusConflict, "SYNC_RUNNING", "A user sync is already running", nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, store.ErrConflict) {
		return http.StatusConflict, "CONFLICT", "Record already exists", nil
	}
	if errors.Is(err, store.ErrForeignKey) {
		return http.StatusBadRequest, "INVALID_REFERENCE", "Referenced record does not exist", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Something went wrong, please try again", nil
}

func fieldErrors(errs validator.ValidationErrors) []map[string]string {
	out := make([]map[string]string, 0, len(errs))
	for _, fe := range errs {
		out = append(out, map[string]string{
			"field":   fe.Field(),
			"rule":    fe.Tag(),
			"message": fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email"
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of " + fe.Param()
	case "gtfield":
		return fe.Field() + " must be after " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
