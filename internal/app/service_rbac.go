package app

import (
	"context"
	"fmt"
	"net/http"

	"madcrm/api/internal/rbac"
)

func authorize(actor Actor, action rbac.Action) error {
	if !rbac.Can(actor.Role, action) {
		return forbidden()
	}
	return nil
}

func (s *Service) partnerScope(ctx context.Context, actor Actor) (rbac.Scope, error) {
	scope, err := s.scope.PartnerScope(ctx, actor.Role, actor.UserID)
	if err != nil {
		return rbac.Scope{}, fmt.Errorf("resolve scope: %w", err)
	}
	return scope, nil
}

// requirePartner checks action and that partnerID lies in the actor's scope.
// Out-of-scope partners are reported as missing so their existence does not
// leak.
func (s *Service) requirePartner(ctx context.Context, actor Actor, action rbac.Action, partnerID int64) error {
	if err := authorize(actor, action); err != nil {
		return err
	}
	scope, err := s.partnerScope(ctx, actor)
	if err != nil {
		return err
	}
	if !scope.Allows(partnerID) {
		return partnerNotFound()
	}
	return nil
}

func (s *Service) requirePoc(ctx context.Context, actor Actor, pocID int64) error {
	if err := authorize(actor, rbac.ActionWrite); err != nil {
		return err
	}
	scope, err := s.partnerScope(ctx, actor)
	if err != nil {
		return err
	}
	if scope.Unrestricted {
		return nil
	}
	ids, err := s.scope.PocIDs(ctx, scope)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == pocID {
			return nil
		}
	}
	return domainError(http.StatusNotFound, "NOT_FOUND", "Poc not found", nil)
}
