package rbac

import (
	"context"
	"fmt"
	"sort"
)

// Scope is the set of partners a user may see. Unrestricted scopes carry no
// ids; every other scope is an explicit, possibly empty, list.
type Scope struct {
	Unrestricted bool
	PartnerIDs   []int64
}

func (s Scope) Allows(partnerID int64) bool {
	if s.Unrestricted {
		return true
	}
	for _, id := range s.PartnerIDs {
		if id == partnerID {
			return true
		}
	}
	return false
}

type ScopeStore interface {
	ManagedCoIDs(ctx context.Context, managerID int64) ([]int64, error)
	PartnerIDsForCos(ctx context.Context, coIDs []int64) ([]int64, error)
	PartnerIDsCreatedBy(ctx context.Context, userID int64) ([]int64, error)
	PocIDsForPartners(ctx context.Context, partnerIDs []int64) ([]int64, error)
}

type Resolver struct {
	store ScopeStore
}

func NewResolver(store ScopeStore) *Resolver {
	return &Resolver{store: store}
}

// PartnerScope resolves which partners role/userID may read or change.
// A manager sees partners of the COs they manage plus partners they created.
func (r *Resolver) PartnerScope(ctx context.Context, role Role, userID int64) (Scope, error) {
	switch role.Kind() {
	case KindUnrestricted:
		return Scope{Unrestricted: true}, nil
	case KindManager:
		coIDs, err := r.store.ManagedCoIDs(ctx, userID)
		if err != nil {
			return Scope{}, fmt.Errorf("resolve managed cos: %w", err)
		}
		viaCos, err := r.store.PartnerIDsForCos(ctx, coIDs)
		if err != nil {
			return Scope{}, fmt.Errorf("resolve partners via cos: %w", err)
		}
		direct, err := r.store.PartnerIDsCreatedBy(ctx, userID)
		if err != nil {
			return Scope{}, fmt.Errorf("resolve own partners: %w", err)
		}
		return Scope{PartnerIDs: union(viaCos, direct)}, nil
	case KindCaseOfficer:
		ids, err := r.store.PartnerIDsForCos(ctx, []int64{userID})
		if err != nil {
			return Scope{}, fmt.Errorf("resolve co partners: %w", err)
		}
		return Scope{PartnerIDs: union(ids)}, nil
	default:
		return Scope{PartnerIDs: []int64{}}, nil
	}
}

// PocIDs returns the POCs linked to any partner in scope. For an
// unrestricted scope it returns nil, meaning no restriction.
func (r *Resolver) PocIDs(ctx context.Context, scope Scope) ([]int64, error) {
	if scope.Unrestricted {
		return nil, nil
	}
	if len(scope.PartnerIDs) == 0 {
		return []int64{}, nil
	}
	ids, err := r.store.PocIDsForPartners(ctx, scope.PartnerIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve poc ids: %w", err)
	}
	return union(ids), nil
}

func union(lists ...[]int64) []int64 {
	seen := map[int64]struct{}{}
	out := []int64{}
	for _, list := range lists {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
