package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const userColumns = `
	user_id, COALESCE(email, ''), COALESCE(user_login, ''), COALESCE(user_display_name, ''),
	COALESCE(user_role, ''), COALESCE(city, ''), COALESCE(state, ''), COALESCE(center, ''),
	COALESCE(contact, ''), reporting_manager_user_id, COALESCE(reporting_manager_role_code, ''),
	COALESCE(reporting_manager_user_login, ''), COALESCE(added_by, ''),
	user_created_datetime, user_updated_datetime`

// CoRoles are the user roles offered when assigning a partner.
var CoRoles = []string{"CO Part Time", "CO Full Time"}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(
		&u.UserID, &u.Email, &u.UserLogin, &u.DisplayName,
		&u.Role, &u.City, &u.State, &u.Center,
		&u.Contact, &u.ReportingManagerUserID, &u.ReportingManagerRoleCode,
		&u.ReportingManagerUserLogin, &u.AddedBy,
		&u.UserCreatedAt, &u.UserUpdatedAt,
	)
	return u, err
}

func (q *Queries) GetUser(ctx context.Context, userID int64) (User, error) {
	return scanUser(q.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM user_data WHERE user_id = $1`, userID))
}

// GetUserByEmail matches case-insensitively.
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.q.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM user_data WHERE LOWER(email) = LOWER($1) ORDER BY user_id LIMIT 1
	`, email))
}

// GetUserByLogin matches case-insensitively.
func (q *Queries) GetUserByLogin(ctx context.Context, login string) (User, error) {
	return scanUser(q.q.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM user_data WHERE LOWER(user_login) = LOWER($1) ORDER BY user_id LIMIT 1
	`, login))
}

// FindUser is GetUser that reports a missing row as nil.
func (q *Queries) FindUser(ctx context.Context, userID int64) (*User, error) {
	u, err := q.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// FindUserByEmail is GetUserByEmail that reports a missing row as nil.
func (q *Queries) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := q.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &u, nil
}

func (q *Queries) InsertUser(ctx context.Context, u User) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO user_data (
			user_id, email, user_login, user_display_name, user_role, city, state, center, contact,
			reporting_manager_user_id, reporting_manager_role_code, reporting_manager_user_login,
			added_by, user_created_datetime, user_updated_datetime
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, userArgs(u)...)
	if err != nil {
		return fmt.Errorf("insert user: %w", mapPgError(err))
	}
	return nil
}

// ReplaceUser overwrites the row currently keyed by existingID with u,
// including u.UserID. Password rows follow the key change.
func (q *Queries) ReplaceUser(ctx context.Context, existingID int64, u User) error {
	params := append(userArgs(u), existingID)
	res, err := q.q.ExecContext(ctx, `
		UPDATE user_data SET
			user_id = $1, email = $2, user_login = $3, user_display_name = $4, user_role = $5,
			city = $6, state = $7, center = $8, contact = $9, reporting_manager_user_id = $10,
			reporting_manager_role_code = $11, reporting_manager_user_login = $12, added_by = $13,
			user_created_datetime = $14, user_updated_datetime = $15, updated_at = clock_timestamp()
		WHERE user_id = $16
	`, params...)
	if err != nil {
		return fmt.Errorf("update user: %w", mapPgError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListUsersByRoles returns users holding any of roles ordered by display name.
func (q *Queries) ListUsersByRoles(ctx context.Context, roles []string) ([]User, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM user_data
		WHERE user_role = ANY($1)
		ORDER BY user_display_name ASC, user_id ASC
	`, roles)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func userArgs(u User) []any {
	return []any{
		u.UserID, nullString(u.Email), nullString(u.UserLogin), nullString(u.DisplayName),
		nullString(u.Role), nullString(u.City), nullString(u.State), nullString(u.Center),
		nullString(u.Contact), u.ReportingManagerUserID, nullString(u.ReportingManagerRoleCode),
		nullString(u.ReportingManagerUserLogin), nullString(u.AddedBy),
		u.UserCreatedAt, u.UserUpdatedAt,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
