package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const agreementColumns = `
	id, partner_id, conversion_stage, specific_doc_required, specific_doc_name,
	potential_child_count, non_conversion_reason, if_any_other_reason, current_status,
	expected_conversion_day, agreement_drop_date, removed, created_at`

func scanAgreement(row rowScanner) (PartnerAgreement, error) {
	var a PartnerAgreement
	err := row.Scan(
		&a.ID, &a.PartnerID, &a.ConversionStage, &a.SpecificDocRequired, &a.SpecificDocName,
		&a.PotentialChildCount, &a.NonConversionReason, &a.IfAnyOtherReason, &a.CurrentStatus,
		&a.ExpectedConversionDay, &a.AgreementDropDate, &a.Removed, &a.CreatedAt,
	)
	return a, err
}

// AppendAgreement adds a history row. Rows are never updated or deleted.
func (q *Queries) AppendAgreement(ctx context.Context, a PartnerAgreement) (PartnerAgreement, error) {
	err := q.q.QueryRowContext(ctx, `
		INSERT INTO partner_agreements (
			partner_id, conversion_stage, specific_doc_required, specific_doc_name,
			potential_child_count, non_conversion_reason, if_any_other_reason, current_status,
			expected_conversion_day, agreement_drop_date, removed
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`, a.PartnerID, a.ConversionStage, a.SpecificDocRequired, a.SpecificDocName,
		a.PotentialChildCount, a.NonConversionReason, a.IfAnyOtherReason, a.CurrentStatus,
		a.ExpectedConversionDay, a.AgreementDropDate, a.Removed,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return PartnerAgreement{}, fmt.Errorf("append agreement: %w", mapPgError(err))
	}
	return a, nil
}

// LatestAgreement returns nil when the partner has no history yet.
func (q *Queries) LatestAgreement(ctx context.Context, partnerID int64) (*PartnerAgreement, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+agreementColumns+`
		FROM partner_agreements
		WHERE partner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, partnerID)
	a, err := scanAgreement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest agreement: %w", err)
	}
	return &a, nil
}

// AgreementsForPartners returns every agreement row of the given partners
// ordered oldest first within each partner.
func (q *Queries) AgreementsForPartners(ctx context.Context, partnerIDs []int64) ([]PartnerAgreement, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+agreementColumns+`
		FROM partner_agreements
		WHERE partner_id = ANY($1)
		ORDER BY partner_id, created_at ASC, id ASC
	`, nonNilIDs(partnerIDs))
	if err != nil {
		return nil, fmt.Errorf("list agreements: %w", err)
	}
	defer rows.Close()

	var items []PartnerAgreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agreement: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
