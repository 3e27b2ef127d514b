package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (q *Queries) ListStates(ctx context.Context) ([]State, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT id, state_name, created_at FROM states ORDER BY state_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	items := []State{}
	for rows.Next() {
		var s State
		if err := rows.Scan(&s.ID, &s.StateName, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// InsertStates adds the named states, ignoring names that already exist,
// and returns how many rows were created.
func (q *Queries) InsertStates(ctx context.Context, names []string) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO states (state_name)
		SELECT UNNEST($1::text[])
		ON CONFLICT (state_name) DO NOTHING
	`, names)
	if err != nil {
		return 0, fmt.Errorf("insert states: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ExistingStateIDs filters ids down to those present in states.
func (q *Queries) ExistingStateIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return q.int64s(ctx, "existing state ids", `SELECT id FROM states WHERE id = ANY($1) ORDER BY id`, nonNilIDs(ids))
}

// ListCities returns all cities, or those of stateID when it is non-zero.
func (q *Queries) ListCities(ctx context.Context, stateID int64) ([]City, error) {
	query := `SELECT id, city_name, state_id FROM cities`
	var params []any
	if stateID != 0 {
		query += ` WHERE state_id = $1`
		params = append(params, stateID)
	}
	query += ` ORDER BY city_name ASC`

	rows, err := q.q.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	defer rows.Close()

	items := []City{}
	for rows.Next() {
		var c City
		if err := rows.Scan(&c.ID, &c.CityName, &c.StateID); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// InsertCity creates the city unless the state already has one by that name.
// created is false for an existing city.
func (q *Queries) InsertCity(ctx context.Context, c City) (City, bool, error) {
	err := q.q.QueryRowContext(ctx, `
		INSERT INTO cities (city_name, state_id) VALUES ($1, $2)
		ON CONFLICT (state_id, city_name) DO NOTHING
		RETURNING id
	`, c.CityName, c.StateID).Scan(&c.ID)
	if err == nil {
		return c, true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return c, false, nil
	}
	return City{}, false, fmt.Errorf("insert city: %w", mapPgError(err))
}
