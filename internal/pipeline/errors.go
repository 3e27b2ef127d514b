package pipeline

import "errors"

// Kind classifies a rejected operation so the transport can pick a status.
type Kind int

const (
	KindInvalid Kind = iota + 1
	KindNotFound
	KindUpstream
)

// Error is a business rejection. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalid(message string) error {
	return &Error{Kind: KindInvalid, Message: message}
}

func notFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func upstream(message string, err error) error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// IsKind reports whether err is a pipeline Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

const (
	msgPartnerNotFound      = "Partner not found"
	msgPartnerGone          = "Partner not found or has been deleted"
	msgOrganizationNotFound = "Organization not found or already deleted"
	msgPocNotFound          = "Poc not found"
	msgMouNotFound          = "Mou not found"
	msgDocumentRequired     = "MOU document is required"
	msgUploadFailed         = "File upload failed"
	msgCurrentCoNotFound    = "Current CO user not found"
	msgNewCoNotFound        = "New CO user not found"
	msgCurrentCoNotActive   = "Current CO is not the active CO for this partner"
	msgNewCoAlreadyActive   = "New CO is already the active CO for this partner"
	msgNoActivePoc          = "No active POC found for this partner"
	msgInvalidDeletePayload = "Invalid delete payload"
)
