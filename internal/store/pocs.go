package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const pocColumns = `
	po.id, po.partner_id, po.poc_name, po.poc_designation, po.poc_contact,
	po.poc_email, po.date_of_first_contact, po.removed, po.created_at`

var pocSortColumns = map[string]string{
	"createdAt": "po.created_at",
	"updatedAt": "po.updated_at",
	"id":        "po.id",
	"poc_name":  "po.poc_name",
	"poc_email": "po.poc_email",
}

func scanPocFields(p *Poc) []any {
	return []any{
		&p.ID, &p.PartnerID, &p.PocName, &p.PocDesignation, &p.PocContact,
		&p.PocEmail, &p.DateOfFirstContact, &p.Removed, &p.CreatedAt,
	}
}

func (q *Queries) InsertPoc(ctx context.Context, p Poc) (Poc, error) {
	err := q.q.QueryRowContext(ctx, `
		INSERT INTO pocs (partner_id, poc_name, poc_designation, poc_contact, poc_email, date_of_first_contact)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, p.PartnerID, p.PocName, p.PocDesignation, p.PocContact, p.PocEmail, p.DateOfFirstContact).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return Poc{}, fmt.Errorf("insert poc: %w", mapPgError(err))
	}
	return p, nil
}

// LinkPoc records pocID as the partner's current POC.
func (q *Queries) LinkPoc(ctx context.Context, pocID, partnerID int64) error {
	_, err := q.q.ExecContext(ctx, `INSERT INTO poc_partners (poc_id, partner_id) VALUES ($1, $2)`, pocID, partnerID)
	if err != nil {
		return fmt.Errorf("link poc: %w", mapPgError(err))
	}
	return nil
}

func (q *Queries) GetPoc(ctx context.Context, pocID int64) (Poc, error) {
	var p Poc
	err := q.q.QueryRowContext(ctx, `SELECT `+pocColumns+` FROM pocs po WHERE po.id = $1`, pocID).Scan(scanPocFields(&p)...)
	if err != nil {
		return Poc{}, err
	}
	return p, nil
}

func (q *Queries) UpdatePoc(ctx context.Context, p Poc) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE pocs SET
			partner_id = $2, poc_name = $3, poc_designation = $4, poc_contact = $5,
			poc_email = $6, date_of_first_contact = $7, updated_at = clock_timestamp()
		WHERE id = $1
	`, p.ID, p.PartnerID, p.PocName, p.PocDesignation, p.PocContact, p.PocEmail, p.DateOfFirstContact)
	if err != nil {
		return fmt.Errorf("update poc: %w", mapPgError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (q *Queries) SoftDeletePoc(ctx context.Context, pocID int64) error {
	res, err := q.q.ExecContext(ctx, `UPDATE pocs SET removed = TRUE, updated_at = clock_timestamp() WHERE id = $1`, pocID)
	if err != nil {
		return fmt.Errorf("soft delete poc: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// LatestActivePoc returns the newest non-removed POC owned by the partner,
// or nil when there is none.
func (q *Queries) LatestActivePoc(ctx context.Context, partnerID int64) (*Poc, error) {
	var p Poc
	err := q.q.QueryRowContext(ctx, `
		SELECT `+pocColumns+`
		FROM pocs po
		WHERE po.partner_id = $1 AND po.removed = FALSE
		ORDER BY po.created_at DESC, po.id DESC
		LIMIT 1
	`, partnerID).Scan(scanPocFields(&p)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest poc: %w", err)
	}
	return &p, nil
}

// PocLinksForPartners returns poc_partners rows joined with their POC,
// ordered oldest first within each partner.
func (q *Queries) PocLinksForPartners(ctx context.Context, partnerIDs []int64) ([]PocLink, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT pp.id, pp.poc_id, pp.partner_id, pp.created_at, `+pocColumns+`
		FROM poc_partners pp
		JOIN pocs po ON po.id = pp.poc_id
		WHERE pp.partner_id = ANY($1)
		ORDER BY pp.partner_id, pp.created_at ASC, pp.id ASC
	`, nonNilIDs(partnerIDs))
	if err != nil {
		return nil, fmt.Errorf("list poc links: %w", err)
	}
	defer rows.Close()

	var items []PocLink
	for rows.Next() {
		var link PocLink
		dest := append([]any{&link.ID, &link.PocID, &link.PartnerID, &link.CreatedAt}, scanPocFields(&link.Poc)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan poc link: %w", err)
		}
		items = append(items, link)
	}
	return items, rows.Err()
}

// PocIDsForPartners returns the ids of every POC ever linked to the partners.
func (q *Queries) PocIDsForPartners(ctx context.Context, partnerIDs []int64) ([]int64, error) {
	return q.int64s(ctx, "poc ids for partners", `
		SELECT DISTINCT poc_id FROM poc_partners WHERE partner_id = ANY($1) ORDER BY poc_id
	`, nonNilIDs(partnerIDs))
}

// ListPocs returns one page of non-removed POCs with their partner, city and
// current CO, plus the total count.
func (q *Queries) ListPocs(ctx context.Context, f PocFilter) ([]PocRow, int, error) {
	var a args
	clauses := []string{"po.removed = FALSE"}
	if f.Restricted {
		clauses = append(clauses, "po.id IN (SELECT poc_id FROM poc_partners WHERE partner_id = ANY("+a.add(nonNilIDs(f.PartnerIDs))+"))")
	}
	if f.Search != "" {
		pattern := a.add("%" + f.Search + "%")
		clauses = append(clauses, "(po.poc_name ILIKE "+pattern+" OR po.poc_email ILIKE "+pattern+" OR po.poc_contact::text ILIKE "+pattern+")")
	}

	from := `
		FROM pocs po
		LEFT JOIN partners p ON p.id = po.partner_id
		LEFT JOIN cities c ON c.id = p.city_id
		LEFT JOIN LATERAL (
			SELECT pc.co_id FROM partner_cos pc
			WHERE pc.partner_id = p.id
			ORDER BY pc.created_at DESC, pc.id DESC
			LIMIT 1
		) lc ON TRUE
		LEFT JOIN user_data u ON u.user_id = lc.co_id` + whereSQL(clauses)

	var total int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*)`+from, a...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count pocs: %w", err)
	}

	column, ok := pocSortColumns[f.SortBy]
	if !ok {
		column = "po.created_at"
	}
	query := `SELECT ` + pocColumns + `, p.partner_name, p.address_line_1, p.lead_source, c.city_name,
		lc.co_id, u.user_display_name, u.email` + from +
		` ORDER BY ` + column + ` ` + direction(f.SortDesc) + `, po.id ` + direction(f.SortDesc)
	query += limitSQL(&a, f.Limit, f.Offset)

	rows, err := q.q.QueryContext(ctx, query, a...)
	if err != nil {
		return nil, 0, fmt.Errorf("list pocs: %w", err)
	}
	defer rows.Close()

	items := []PocRow{}
	for rows.Next() {
		var r PocRow
		dest := append(scanPocFields(&r.Poc), &r.PartnerName, &r.AddressLine1, &r.LeadSource, &r.CityName, &r.CoID, &r.CoName, &r.CoEmail)
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, fmt.Errorf("scan poc row: %w", err)
		}
		items = append(items, r)
	}
	return items, total, rows.Err()
}

func (q *Queries) int64s(ctx context.Context, label, query string, params ...any) ([]int64, error) {
	rows, err := q.q.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", label, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
