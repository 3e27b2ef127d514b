package pipeline

import (
	"fmt"
	"strings"

	"madcrm/api/internal/store"
)

// GuardResult is the outcome of a precondition check.
type GuardResult struct {
	Allowed bool
	Reason  string
}

func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return invalid(r.Reason)
}

func allow() GuardResult {
	return GuardResult{Allowed: true}
}

func deny(format string, args ...any) GuardResult {
	return GuardResult{Reason: fmt.Sprintf(format, args...)}
}

type TransitionContext struct {
	From   string
	To     string
	Update LeadUpdate
}

// CanTransition checks that a lead may move from ctx.From to ctx.To and that
// the payload carries what the target stage records.
// Rules:
// - the target stage must have an entry in the transition table
// - converted partners are managed as organizations, not as leads
// - required fields of the target stage must be present
func CanTransition(ctx TransitionContext) GuardResult {
	t, ok := transitions[ctx.To]
	if !ok {
		return deny("conversion stage %q cannot be requested", ctx.To)
	}
	if ctx.From == store.StageConverted {
		return deny("lead is already converted; update it from the organisations tab")
	}
	if missing := t.missing(ctx.Update); len(missing) > 0 {
		return deny("%s requires %s", ctx.To, strings.Join(missing, ", "))
	}
	return allow()
}

type ReallocationContext struct {
	ActiveCoID  *int64
	CurrentCoID int64
	NewCoID     int64
}

// CanReallocate checks the CO handover.
// Rules:
// - the claimed current CO must hold the latest assignment
// - the new CO must differ from the active one
func CanReallocate(ctx ReallocationContext) GuardResult {
	if ctx.ActiveCoID == nil || *ctx.ActiveCoID != ctx.CurrentCoID {
		return deny(msgCurrentCoNotActive)
	}
	if *ctx.ActiveCoID == ctx.NewCoID {
		return deny(msgNewCoAlreadyActive)
	}
	return allow()
}

// CanDeleteOrganization checks the delete reason against the accepted set.
func CanDeleteOrganization(req OrganizationDelete) GuardResult {
	if !deleteReasons[req.Reason] {
		return deny(msgInvalidDeletePayload)
	}
	return allow()
}
