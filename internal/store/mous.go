package store

import (
	"context"
	"fmt"
)

const mouColumns = `
	id, partner_id, mou_sign, mou_sign_date, mou_start_date, mou_end_date, mou_url,
	mou_status, pending_mou_reason, confirmed_child_count, removed, created_at`

func scanMouFields(m *Mou) []any {
	return []any{
		&m.ID, &m.PartnerID, &m.MouSign, &m.MouSignDate, &m.MouStartDate, &m.MouEndDate, &m.MouURL,
		&m.MouStatus, &m.PendingMouReason, &m.ConfirmedChildCount, &m.Removed, &m.CreatedAt,
	}
}

func (q *Queries) InsertMou(ctx context.Context, m Mou) (Mou, error) {
	if m.MouStatus == "" {
		m.MouStatus = MouInactive
	}
	err := q.q.QueryRowContext(ctx, `
		INSERT INTO mous (
			partner_id, mou_sign, mou_sign_date, mou_start_date, mou_end_date, mou_url,
			mou_status, pending_mou_reason, confirmed_child_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, m.PartnerID, m.MouSign, m.MouSignDate, m.MouStartDate, m.MouEndDate, m.MouURL,
		m.MouStatus, m.PendingMouReason, m.ConfirmedChildCount,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return Mou{}, fmt.Errorf("insert mou: %w", mapPgError(err))
	}
	return m, nil
}

func (q *Queries) GetMou(ctx context.Context, mouID int64) (Mou, error) {
	var m Mou
	if err := q.q.QueryRowContext(ctx, `SELECT `+mouColumns+` FROM mous WHERE id = $1`, mouID).Scan(scanMouFields(&m)...); err != nil {
		return Mou{}, err
	}
	return m, nil
}

// DeactivateMous flips every active MOU of the partner to inactive and
// reports how many rows changed.
func (q *Queries) DeactivateMous(ctx context.Context, partnerID int64) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE mous SET mou_status = 'inactive', updated_at = clock_timestamp()
		WHERE partner_id = $1 AND mou_status = 'active'
	`, partnerID)
	if err != nil {
		return 0, fmt.Errorf("deactivate mous: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (q *Queries) MousForPartners(ctx context.Context, partnerIDs []int64) ([]Mou, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+mouColumns+`
		FROM mous
		WHERE partner_id = ANY($1)
		ORDER BY partner_id, created_at ASC, id ASC
	`, nonNilIDs(partnerIDs))
	if err != nil {
		return nil, fmt.Errorf("list mous: %w", err)
	}
	defer rows.Close()

	var items []Mou
	for rows.Next() {
		var m Mou
		if err := rows.Scan(scanMouFields(&m)...); err != nil {
			return nil, fmt.Errorf("scan mou: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
