package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const passwordColumns = `
	id, user_id, password_hash, salt, is_default_password, reset_token,
	reset_token_expires_at, reset_used_at, password_changed_at, removed`

func scanPassword(row rowScanner) (UserPassword, error) {
	var p UserPassword
	err := row.Scan(
		&p.ID, &p.UserID, &p.PasswordHash, &p.Salt, &p.IsDefaultPassword, &p.ResetToken,
		&p.ResetTokenExpiresAt, &p.ResetUsedAt, &p.PasswordChangedAt, &p.Removed,
	)
	return p, err
}

// GetPassword returns the non-removed password row of a user.
func (q *Queries) GetPassword(ctx context.Context, userID int64) (UserPassword, error) {
	return scanPassword(q.q.QueryRowContext(ctx, `
		SELECT `+passwordColumns+` FROM user_passwords WHERE user_id = $1 AND removed = FALSE
	`, userID))
}

func (q *Queries) InsertPassword(ctx context.Context, p UserPassword) (UserPassword, error) {
	err := q.q.QueryRowContext(ctx, `
		INSERT INTO user_passwords (user_id, password_hash, salt, is_default_password)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, p.UserID, p.PasswordHash, p.Salt, p.IsDefaultPassword).Scan(&p.ID)
	if err != nil {
		return UserPassword{}, fmt.Errorf("insert password: %w", mapPgError(err))
	}
	return p, nil
}

// SetResetToken stores the hash of a reset token and clears any earlier use.
func (q *Queries) SetResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE user_passwords
		SET reset_token = $2, reset_token_expires_at = $3, reset_used_at = NULL, updated_at = clock_timestamp()
		WHERE user_id = $1 AND removed = FALSE
	`, userID, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetPasswordByResetToken returns the row holding tokenHash if the token is
// unused and not expired at now.
func (q *Queries) GetPasswordByResetToken(ctx context.Context, tokenHash string, now time.Time) (UserPassword, error) {
	return scanPassword(q.q.QueryRowContext(ctx, `
		SELECT `+passwordColumns+`
		FROM user_passwords
		WHERE reset_token = $1
			AND removed = FALSE
			AND reset_used_at IS NULL
			AND reset_token_expires_at > $2
	`, tokenHash, now))
}

// CompletePasswordReset stores the new credentials and burns the token.
func (q *Queries) CompletePasswordReset(ctx context.Context, passwordID int64, hash, salt string, now time.Time) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE user_passwords SET
			password_hash = $2, salt = $3, is_default_password = FALSE,
			reset_token = NULL, reset_token_expires_at = NULL, reset_used_at = $4,
			password_changed_at = $4, updated_at = clock_timestamp()
		WHERE id = $1
	`, passwordID, hash, salt, now)
	if err != nil {
		return fmt.Errorf("complete password reset: %w", err)
	}
	return nil
}
