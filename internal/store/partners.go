package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

const partnerColumns = `
	p.id, p.partner_name, p.address_line_1, p.address_line_2, p.pincode,
	p.partner_affiliation_type, p.school_type, p.total_child_count, p.lead_source,
	p.classes, p.low_income_resource, p.interested, p.removed, p.created_by,
	p.state_id, p.city_id, c.city_name, s.state_name, p.created_at, p.updated_at`

const partnerJoins = `
	FROM partners p
	LEFT JOIN cities c ON c.id = p.city_id
	LEFT JOIN states s ON s.id = p.state_id`

// latestAgreementJoin exposes the newest agreement row of each partner as la.
const latestAgreementJoin = `
	LEFT JOIN LATERAL (
		SELECT pa.conversion_stage, pa.current_status
		FROM partner_agreements pa
		WHERE pa.partner_id = p.id
		ORDER BY pa.created_at DESC, pa.id DESC
		LIMIT 1
	) la ON TRUE`

var partnerSortColumns = map[string]string{
	"createdAt":    "p.created_at",
	"updatedAt":    "p.updated_at",
	"id":           "p.id",
	"partner_name": "p.partner_name",
	"lead_source":  "p.lead_source",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPartner(row rowScanner, m *pgtype.Map) (Partner, error) {
	var p Partner
	err := row.Scan(
		&p.ID, &p.PartnerName, &p.AddressLine1, &p.AddressLine2, &p.Pincode,
		&p.PartnerAffiliationType, &p.SchoolType, &p.TotalChildCount, &p.LeadSource,
		m.SQLScanner(&p.Classes), &p.LowIncomeResource, &p.Interested, &p.Removed, &p.CreatedBy,
		&p.StateID, &p.CityID, &p.CityName, &p.StateName, &p.CreatedAt, &p.UpdatedAt,
	)
	if p.Classes == nil {
		p.Classes = []string{}
	}
	return p, err
}

func (q *Queries) InsertPartner(ctx context.Context, p Partner) (Partner, error) {
	classes := p.Classes
	if classes == nil {
		classes = []string{}
	}
	err := q.q.QueryRowContext(ctx, `
		INSERT INTO partners (
			partner_name, address_line_1, address_line_2, pincode, partner_affiliation_type,
			school_type, total_child_count, lead_source, classes, low_income_resource,
			interested, created_by, state_id, city_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`, p.PartnerName, p.AddressLine1, p.AddressLine2, p.Pincode, p.PartnerAffiliationType,
		p.SchoolType, p.TotalChildCount, p.LeadSource, classes, p.LowIncomeResource,
		p.Interested, p.CreatedBy, p.StateID, p.CityID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Partner{}, fmt.Errorf("insert partner: %w", mapPgError(err))
	}
	p.Classes = classes
	return p, nil
}

// GetPartner returns the partner whether or not it is removed.
func (q *Queries) GetPartner(ctx context.Context, partnerID int64) (Partner, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+partnerColumns+partnerJoins+` WHERE p.id = $1`, partnerID)
	p, err := scanPartner(row, pgtype.NewMap())
	if err != nil {
		return Partner{}, err
	}
	return p, nil
}

// UpdatePartner overwrites the editable partner columns.
func (q *Queries) UpdatePartner(ctx context.Context, p Partner) error {
	classes := p.Classes
	if classes == nil {
		classes = []string{}
	}
	_, err := q.q.ExecContext(ctx, `
		UPDATE partners SET
			partner_name = $2, address_line_1 = $3, address_line_2 = $4, pincode = $5,
			partner_affiliation_type = $6, school_type = $7, total_child_count = $8,
			lead_source = $9, classes = $10, low_income_resource = $11, interested = $12,
			state_id = $13, city_id = $14, updated_at = clock_timestamp()
		WHERE id = $1
	`, p.ID, p.PartnerName, p.AddressLine1, p.AddressLine2, p.Pincode,
		p.PartnerAffiliationType, p.SchoolType, p.TotalChildCount,
		p.LeadSource, classes, p.LowIncomeResource, p.Interested,
		p.StateID, p.CityID,
	)
	if err != nil {
		return fmt.Errorf("update partner: %w", mapPgError(err))
	}
	return nil
}

func (q *Queries) SoftDeletePartner(ctx context.Context, partnerID int64) error {
	res, err := q.q.ExecContext(ctx, `UPDATE partners SET removed = TRUE, updated_at = clock_timestamp() WHERE id = $1`, partnerID)
	if err != nil {
		return fmt.Errorf("soft delete partner: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (q *Queries) TouchPartner(ctx context.Context, partnerID int64) error {
	if _, err := q.q.ExecContext(ctx, `UPDATE partners SET updated_at = clock_timestamp() WHERE id = $1`, partnerID); err != nil {
		return fmt.Errorf("touch partner: %w", err)
	}
	return nil
}

// ListPartners returns one page of non-removed partners for the filter's
// view together with the total row count across all pages.
func (q *Queries) ListPartners(ctx context.Context, f PartnerFilter) ([]Partner, int, error) {
	var a args
	clauses := []string{"p.removed = FALSE"}

	switch f.View {
	case ViewOrganizations:
		clauses = append(clauses, "la.conversion_stage = 'converted'")
	case ViewInactiveOrganizations:
		clauses = append(clauses, "la.conversion_stage = 'dropped'", "la.current_status = 'closed_not_renewed'")
	default:
		clauses = append(clauses, "la.conversion_stage IS DISTINCT FROM 'converted'")
	}
	if f.Restricted {
		clauses = append(clauses, "p.id = ANY("+a.add(nonNilIDs(f.PartnerIDs))+")")
	}
	if f.SearchIDs != nil {
		clauses = append(clauses, "p.id = ANY("+a.add(f.SearchIDs)+")")
	} else if f.Search != "" {
		pattern := a.add("%" + f.Search + "%")
		clauses = append(clauses, "(p.partner_name ILIKE "+pattern+" OR p.address_line_1 ILIKE "+pattern+" OR p.lead_source ILIKE "+pattern+")")
	}

	from := partnerJoins + latestAgreementJoin + whereSQL(clauses)

	var total int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*)`+from, a...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count partners: %w", err)
	}

	column, ok := partnerSortColumns[f.SortBy]
	if !ok {
		column = "p.created_at"
	}
	query := `SELECT ` + partnerColumns + from + ` ORDER BY ` + column + ` ` + direction(f.SortDesc) + `, p.id ` + direction(f.SortDesc)
	query += limitSQL(&a, f.Limit, f.Offset)

	rows, err := q.q.QueryContext(ctx, query, a...)
	if err != nil {
		return nil, 0, fmt.Errorf("list partners: %w", err)
	}
	defer rows.Close()

	m := pgtype.NewMap()
	items := []Partner{}
	for rows.Next() {
		p, err := scanPartner(rows, m)
		if err != nil {
			return nil, 0, fmt.Errorf("scan partner: %w", err)
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// AllPartners streams every partner for search reindexing.
func (q *Queries) AllPartners(ctx context.Context) ([]Partner, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+partnerColumns+partnerJoins+` ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("list all partners: %w", err)
	}
	defer rows.Close()

	m := pgtype.NewMap()
	var items []Partner
	for rows.Next() {
		p, err := scanPartner(rows, m)
		if err != nil {
			return nil, fmt.Errorf("scan partner: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
