// Package authpw provides email/password login, logout and password reset
// for users synced from HR.
package authpw

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"madcrm/api/internal/auth"
	"madcrm/api/internal/rbac"
	"madcrm/api/internal/session"
	"madcrm/api/internal/store"
)

// Failures carry the message shown to the client.
var (
	ErrInvalidCredentials = errors.New("Invalid credentials.")
	ErrRoleNotAllowed     = errors.New("You do not have access to log in.")
	ErrInvalidResetLink   = errors.New("Invalid or expired reset link.")
	ErrInvalidInput       = errors.New("Invalid input.")

	ErrNoToken         = errors.New("No authentication token, authorization denied.")
	ErrTokenRejected   = errors.New("Token verification failed, authorization denied.")
	ErrUserMissing     = errors.New("User doesn't exist, authorization denied.")
	ErrPasswordMissing = errors.New("User authentication failed, authorization denied.")
	ErrLoggedOut       = errors.New("User is already logged out, try logging in again.")
)

const (
	resetTokenTTL     = 10 * time.Minute
	minResetTokenLen  = 16
	minPasswordLength = 8
	maxPasswordLength = 128
	// bcrypt only reads this many bytes of its input.
	bcryptInputLimit = 72
)

type UserStore interface {
	GetUser(ctx context.Context, userID int64) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetPassword(ctx context.Context, userID int64) (store.UserPassword, error)
	InsertPassword(ctx context.Context, p store.UserPassword) (store.UserPassword, error)
	SetResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	GetPasswordByResetToken(ctx context.Context, tokenHash string, now time.Time) (store.UserPassword, error)
	CompletePasswordReset(ctx context.Context, passwordID int64, hash, salt string, now time.Time) error
}

type Sessions interface {
	Save(ctx context.Context, tokenHash string, data session.Data, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (session.Data, error)
	Revoke(ctx context.Context, userID int64, tokenHash string) error
	RevokeAll(ctx context.Context, userID int64) (int, error)
}

type Mailer interface {
	SendPasswordResetEmail(to, userName, resetURL string, validMinutes int) error
}

type Options struct {
	TokenSecret     string
	TokenTTL        time.Duration
	RememberTTL     time.Duration
	FrontendURL     string
	DefaultPassword string
}

type Service struct {
	store    UserStore
	sessions Sessions
	mailer   Mailer
	opts     Options
	log      *zap.Logger
	now      func() time.Time
}

func NewService(users UserStore, sessions Sessions, mailer Mailer, opts Options, log *zap.Logger) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.RememberTTL <= 0 {
		opts.RememberTTL = 365 * 24 * time.Hour
	}
	if opts.DefaultPassword == "" {
		opts.DefaultPassword = "password"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: users, sessions: sessions, mailer: mailer, opts: opts, log: log, now: time.Now}
}

type LoginRequest struct {
	Email    string
	Password string
	Remember bool
}

type LoginResult struct {
	User      store.User
	Token     string
	ExpiresAt time.Time
	// MaxAge is the remembered session length in days.
	MaxAge *int
}

// Login checks credentials and opens a session.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !rbac.Normalize(user.Role).CanLogin() {
		s.log.Warn("login attempt with role not allowed", zap.Int64("user_id", user.UserID), zap.String("role", user.Role))
		return nil, ErrRoleNotAllowed
	}

	pw, err := s.store.GetPassword(ctx, user.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load password: %w", err)
	}
	if !checkPassword(pw.PasswordHash, pw.Salt, req.Password) {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	ttl := s.opts.TokenTTL
	var maxAge *int
	if req.Remember {
		ttl = s.opts.RememberTTL
		days := int(ttl / (24 * time.Hour))
		maxAge = &days
	}
	claims := auth.NewClaims(user.UserID, user.Email, user.Role, uuid.NewString(), now, ttl)
	token, err := auth.IssueToken([]byte(s.opts.TokenSecret), claims)
	if err != nil {
		return nil, err
	}
	expiresAt := now.Add(ttl)
	if err := s.sessions.Save(ctx, auth.HashToken(token), session.Data{UserID: user.UserID, Email: user.Email, Role: user.Role, CreatedAt: now.UTC()}, expiresAt); err != nil {
		return nil, err
	}

	s.log.Info("user logged in", zap.Int64("user_id", user.UserID), zap.Bool("remember", req.Remember))
	return &LoginResult{User: user, Token: token, ExpiresAt: expiresAt, MaxAge: maxAge}, nil
}

// Authenticate resolves a bearer token to its user. The token must parse,
// its user and password row must exist, and its session must be live.
func (s *Service) Authenticate(ctx context.Context, token string) (store.User, error) {
	if strings.TrimSpace(token) == "" {
		return store.User{}, ErrNoToken
	}
	claims, err := auth.ParseToken([]byte(s.opts.TokenSecret), token)
	if err != nil {
		return store.User{}, fmt.Errorf("%w: %w", ErrTokenRejected, err)
	}
	userID, err := claims.UserID()
	if err != nil {
		return store.User{}, ErrTokenRejected
	}

	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, ErrUserMissing
	}
	if err != nil {
		return store.User{}, fmt.Errorf("load user: %w", err)
	}
	if _, err := s.store.GetPassword(ctx, userID); errors.Is(err, sql.ErrNoRows) {
		return store.User{}, ErrPasswordMissing
	} else if err != nil {
		return store.User{}, fmt.Errorf("load password: %w", err)
	}

	if _, err := s.sessions.Lookup(ctx, auth.HashToken(token)); errors.Is(err, session.ErrNotFound) {
		return store.User{}, ErrLoggedOut
	} else if err != nil {
		return store.User{}, err
	}
	return user, nil
}

// Logout closes the presented session, or every session of the user when
// no token is given.
func (s *Service) Logout(ctx context.Context, userID int64, token string) error {
	if token != "" {
		return s.sessions.Revoke(ctx, userID, auth.HashToken(token))
	}
	_, err := s.sessions.RevokeAll(ctx, userID)
	return err
}

// ForgetPassword mails a single-use reset link. Unknown emails succeed
// silently.
func (s *Service) ForgetPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !rbac.Normalize(user.Role).CanLogin() {
		s.log.Warn("password reset requested for role not allowed", zap.Int64("user_id", user.UserID), zap.String("role", user.Role))
		return ErrRoleNotAllowed
	}

	if _, err := s.store.GetPassword(ctx, user.UserID); errors.Is(err, sql.ErrNoRows) {
		if err := s.createDefaultPassword(ctx, user.UserID); err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("load password: %w", err)
	}

	raw, err := randomHex(32)
	if err != nil {
		return err
	}
	if err := s.store.SetResetToken(ctx, user.UserID, hashHex(raw), s.now().Add(resetTokenTTL)); err != nil {
		return err
	}

	link := strings.TrimRight(s.opts.FrontendURL, "/") + "/resetpassword?token=" + raw
	if err := s.mailer.SendPasswordResetEmail(user.Email, user.DisplayName, link, int(resetTokenTTL/time.Minute)); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	s.log.Info("password reset link sent", zap.Int64("user_id", user.UserID))
	return nil
}

func (s *Service) createDefaultPassword(ctx context.Context, userID int64) error {
	salt, err := newSalt()
	if err != nil {
		return err
	}
	hash, err := hashPassword(salt, s.opts.DefaultPassword)
	if err != nil {
		return err
	}
	_, err = s.store.InsertPassword(ctx, store.UserPassword{
		UserID:            userID,
		PasswordHash:      hash,
		Salt:              salt,
		IsDefaultPassword: true,
	})
	return err
}

// ResetPassword consumes a reset token, stores the new password and closes
// every session of the user.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if len(token) < minResetTokenLen || len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return ErrInvalidInput
	}

	now := s.now()
	pw, err := s.store.GetPasswordByResetToken(ctx, hashHex(token), now)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidResetLink
	}
	if err != nil {
		return fmt.Errorf("load reset token: %w", err)
	}

	salt, err := newSalt()
	if err != nil {
		return err
	}
	hash, err := hashPassword(salt, password)
	if err != nil {
		return err
	}
	if err := s.store.CompletePasswordReset(ctx, pw.ID, hash, salt, now); err != nil {
		return err
	}

	revoked, err := s.sessions.RevokeAll(ctx, pw.UserID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.log.Info("password reset", zap.Int64("user_id", pw.UserID), zap.Int("sessions_revoked", revoked))
	return nil
}

// secret is what bcrypt sees for a salted password. Inputs longer than
// bcrypt reads are folded through sha256 first.
func secret(salt, password string) []byte {
	raw := salt + password
	if len(raw) <= bcryptInputLimit {
		return []byte(raw)
	}
	return []byte(hashHex(raw))
}

// checkPassword compares against the folded secret first. Hashes written
// before folding saw salt+password cut at bcryptInputLimit, so long inputs
// are retried in that form.
func checkPassword(hash, salt, password string) bool {
	if bcrypt.CompareHashAndPassword([]byte(hash), secret(salt, password)) == nil {
		return true
	}
	raw := []byte(salt + password)
	if len(raw) <= bcryptInputLimit {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), raw[:bcryptInputLimit]) == nil
}

func hashPassword(salt, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(secret(salt, password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func newSalt() (string, error) {
	return randomHex(8)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func hashHex(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
