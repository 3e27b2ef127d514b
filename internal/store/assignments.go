package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AssignCo appends a partner_cos row; the newest row is the current CO.
func (q *Queries) AssignCo(ctx context.Context, partnerID, coID int64) (CoAssignment, error) {
	a := CoAssignment{PartnerID: partnerID, CoID: coID}
	err := q.q.QueryRowContext(ctx, `
		INSERT INTO partner_cos (partner_id, co_id) VALUES ($1, $2) RETURNING id, created_at
	`, partnerID, coID).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return CoAssignment{}, fmt.Errorf("assign co: %w", mapPgError(err))
	}
	return a, nil
}

// LatestCo returns nil when the partner was never assigned.
func (q *Queries) LatestCo(ctx context.Context, partnerID int64) (*CoAssignment, error) {
	var a CoAssignment
	err := q.q.QueryRowContext(ctx, `
		SELECT pc.id, pc.partner_id, pc.co_id, u.user_display_name, u.email, pc.created_at
		FROM partner_cos pc
		LEFT JOIN user_data u ON u.user_id = pc.co_id
		WHERE pc.partner_id = $1
		ORDER BY pc.created_at DESC, pc.id DESC
		LIMIT 1
	`, partnerID).Scan(&a.ID, &a.PartnerID, &a.CoID, &a.CoName, &a.CoEmail, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest co: %w", err)
	}
	return &a, nil
}

func (q *Queries) CoAssignmentsForPartners(ctx context.Context, partnerIDs []int64) ([]CoAssignment, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT pc.id, pc.partner_id, pc.co_id, u.user_display_name, u.email, pc.created_at
		FROM partner_cos pc
		LEFT JOIN user_data u ON u.user_id = pc.co_id
		WHERE pc.partner_id = ANY($1)
		ORDER BY pc.partner_id, pc.created_at ASC, pc.id ASC
	`, nonNilIDs(partnerIDs))
	if err != nil {
		return nil, fmt.Errorf("list co assignments: %w", err)
	}
	defer rows.Close()

	var items []CoAssignment
	for rows.Next() {
		var a CoAssignment
		if err := rows.Scan(&a.ID, &a.PartnerID, &a.CoID, &a.CoName, &a.CoEmail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan co assignment: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (q *Queries) ManagedCoIDs(ctx context.Context, managerID int64) ([]int64, error) {
	return q.int64s(ctx, "managed co ids", `
		SELECT co_id FROM manager_cos WHERE manager_id = $1 ORDER BY co_id
	`, managerID)
}

// PartnerIDsForCos returns partners that have ever been assigned to any of
// the given COs.
func (q *Queries) PartnerIDsForCos(ctx context.Context, coIDs []int64) ([]int64, error) {
	return q.int64s(ctx, "partner ids for cos", `
		SELECT DISTINCT partner_id FROM partner_cos WHERE co_id = ANY($1) ORDER BY partner_id
	`, nonNilIDs(coIDs))
}

func (q *Queries) PartnerIDsCreatedBy(ctx context.Context, userID int64) ([]int64, error) {
	return q.int64s(ctx, "partner ids created by", `
		SELECT id FROM partners WHERE created_by = $1 ORDER BY id
	`, userID)
}

func (q *Queries) AssignManagerCo(ctx context.Context, managerID, coID int64) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO manager_cos (manager_id, co_id) VALUES ($1, $2)
		ON CONFLICT (co_id, manager_id) DO NOTHING
	`, managerID, coID)
	if err != nil {
		return fmt.Errorf("assign manager co: %w", err)
	}
	return nil
}
