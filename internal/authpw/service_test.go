package authpw

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"golang.org/x/crypto/bcrypt"

	"madcrm/api/internal/auth"
	"madcrm/api/internal/session"
	"madcrm/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users     map[int64]store.User
	passwords map[int64]store.UserPassword
	nextID    int64
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:     make(map[int64]store.User),
		passwords: make(map[int64]store.UserPassword),
	}
}

func (m *mockUserStore) GetUser(_ context.Context, userID int64) (store.User, error) {
	if u, ok := m.users[userID]; ok {
		return u, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *mockUserStore) GetPassword(_ context.Context, userID int64) (store.UserPassword, error) {
	if p, ok := m.passwords[userID]; ok && !p.Removed {
		return p, nil
	}
	return store.UserPassword{}, sql.ErrNoRows
}

func (m *mockUserStore) InsertPassword(_ context.Context, p store.UserPassword) (store.UserPassword, error) {
	m.nextID++
	p.ID = m.nextID
	m.passwords[p.UserID] = p
	return p, nil
}

func (m *mockUserStore) SetResetToken(_ context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	p, ok := m.passwords[userID]
	if !ok {
		return sql.ErrNoRows
	}
	p.ResetToken = &tokenHash
	p.ResetTokenExpiresAt = &expiresAt
	p.ResetUsedAt = nil
	m.passwords[userID] = p
	return nil
}

func (m *mockUserStore) GetPasswordByResetToken(_ context.Context, tokenHash string, now time.Time) (store.UserPassword, error) {
	for _, p := range m.passwords {
		if p.ResetToken != nil && *p.ResetToken == tokenHash && p.ResetUsedAt == nil && p.ResetTokenExpiresAt.After(now) {
			return p, nil
		}
	}
	return store.UserPassword{}, sql.ErrNoRows
}

func (m *mockUserStore) CompletePasswordReset(_ context.Context, passwordID int64, hash, salt string, now time.Time) error {
	for uid, p := range m.passwords {
		if p.ID == passwordID {
			p.PasswordHash, p.Salt = hash, salt
			p.IsDefaultPassword = false
			p.ResetToken, p.ResetTokenExpiresAt = nil, nil
			p.ResetUsedAt, p.PasswordChangedAt = &now, &now
			m.passwords[uid] = p
			return nil
		}
	}
	return sql.ErrNoRows
}

type sentMail struct {
	to, name, link string
}

type mockMailer struct {
	sent []sentMail
	err  error
}

func (m *mockMailer) SendPasswordResetEmail(to, userName, resetURL string, _ int) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, name: userName, link: resetURL})
	return nil
}

type fixture struct {
	svc      *Service
	users    *mockUserStore
	mailer   *mockMailer
	sessions *session.RedisStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions, err := session.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	t.Cleanup(func() { _ = sessions.Close() })

	users := newMockUserStore()
	mailer := &mockMailer{}
	svc := NewService(users, sessions, mailer, Options{
		TokenSecret: "test-secret",
		FrontendURL: "https://crm.example.org/",
	}, nil)
	return fixture{svc: svc, users: users, mailer: mailer, sessions: sessions}
}

func (f fixture) addUser(t *testing.T, id int64, email, role, password string) {
	t.Helper()
	f.users.users[id] = store.User{UserID: id, Email: email, Role: role, DisplayName: "User " + email}
	if password == "" {
		return
	}
	salt, err := newSalt()
	if err != nil {
		t.Fatal(err)
	}
	hash, err := bcrypt.GenerateFromPassword(secret(salt, password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	f.users.InsertPassword(context.Background(), store.UserPassword{UserID: id, PasswordHash: string(hash), Salt: salt})
}

func TestLoginAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 1, "asha@example.org", "CO Full Time", "s3cret-pass")
	ctx := context.Background()

	res, err := f.svc.Login(ctx, LoginRequest{Email: " Asha@Example.org ", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.Token == "" || res.MaxAge != nil {
		t.Fatalf("unexpected result: %+v", res)
	}

	user, err := f.svc.Authenticate(ctx, res.Token)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if user.UserID != 1 {
		t.Fatalf("authenticated user = %d", user.UserID)
	}
}

func TestLoginRememberExtendsSession(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 1, "asha@example.org", "CXO", "s3cret-pass")

	res, err := f.svc.Login(context.Background(), LoginRequest{Email: "asha@example.org", Password: "s3cret-pass", Remember: true})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.MaxAge == nil || *res.MaxAge != 365 {
		t.Fatalf("MaxAge = %v", res.MaxAge)
	}
	if res.ExpiresAt.Before(time.Now().Add(300 * 24 * time.Hour)) {
		t.Fatalf("expiry too short: %v", res.ExpiresAt)
	}
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 1, "asha@example.org", "CO Full Time", "s3cret-pass")
	f.addUser(t, 2, "wing@example.org", "Wingman", "s3cret-pass")
	f.addUser(t, 3, "nopass@example.org", "CXO", "")

	tests := []struct {
		name    string
		req     LoginRequest
		wantErr error
	}{
		{"unknown email", LoginRequest{Email: "ghost@example.org", Password: "x"}, ErrInvalidCredentials},
		{"wrong password", LoginRequest{Email: "asha@example.org", Password: "nope"}, ErrInvalidCredentials},
		{"role not allowed", LoginRequest{Email: "wing@example.org", Password: "s3cret-pass"}, ErrRoleNotAllowed},
		{"no password row", LoginRequest{Email: "nopass@example.org", Password: "x"}, ErrInvalidCredentials},
		{"empty", LoginRequest{}, ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Login(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAuthenticateRejections(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 1, "asha@example.org", "CO Full Time", "s3cret-pass")
	ctx := context.Background()

	if _, err := f.svc.Authenticate(ctx, ""); !errors.Is(err, ErrNoToken) {
		t.Errorf("empty token: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, "garbage"); !errors.Is(err, ErrTokenRejected) {
		t.Errorf("garbage token: %v", err)
	}

	// A valid token that was never recorded as a session.
	orphan, _ := auth.IssueToken([]byte("test-secret"), auth.NewClaims(1, "asha@example.org", "CO Full Time", "j", time.Now(), time.Hour))
	if _, err := f.svc.Authenticate(ctx, orphan); !errors.Is(err, ErrLoggedOut) {
		t.Errorf("orphan token: %v", err)
	}

	ghost, _ := auth.IssueToken([]byte("test-secret"), auth.NewClaims(99, "g@example.org", "CXO", "j", time.Now(), time.Hour))
	if _, err := f.svc.Authenticate(ctx, ghost); !errors.Is(err, ErrUserMissing) {
		t.Errorf("missing user: %v", err)
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 1, "asha@example.org", "CO Full Time", "s3cret-pass")
	ctx := context.Background()

	first, _ := f.svc.Login(ctx, LoginRequest{Email: "asha@example.org", Password: "s3cret-pass"})
	second, _ := f.svc.Login(ctx, LoginRequest{Email: "asha@example.org", Password: "s3cret-pass"})
	third, _ := f.svc.Login(ctx, LoginRequest{Email: "asha@example.org", Password: "s3cret-pass"})

	if err := f.svc.Logout(ctx, 1, first.Token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, first.Token); !errors.Is(err, ErrLoggedOut) {
		t.Errorf("first token should be logged out: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, second.Token); err != nil {
		t.Errorf("second token should still work: %v", err)
	}

	if err := f.svc.Logout(ctx, 1, ""); err != nil {
		t.Fatalf("Logout all failed: %v", err)
	}
	for _, tok := range []string{second.Token, third.Token} {
		if _, err := f.svc.Authenticate(ctx, tok); !errors.Is(err, ErrLoggedOut) {
			t.Errorf("expected logged out, got %v", err)
		}
	}
}

func TestForgetPasswordFlow(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 1, "asha@example.org", "CO Full Time", "old-password")
	ctx := context.Background()

	login, _ := f.svc.Login(ctx, LoginRequest{Email: "asha@example.org", Password: "old-password"})

	if err := f.svc.ForgetPassword(ctx, "asha@example.org"); err != nil {
		t.Fatalf("ForgetPassword failed: %v", err)
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(f.mailer.sent))
	}
	link := f.mailer.sent[0].link
	prefix := "https://crm.example.org/resetpassword?token="
	if !strings.HasPrefix(link, prefix) {
		t.Fatalf("link = %q", link)
	}
	token := strings.TrimPrefix(link, prefix)

	stored := f.users.passwords[1].ResetToken
	if stored == nil || *stored == token {
		t.Fatal("reset token should be stored hashed")
	}

	if err := f.svc.ResetPassword(ctx, token, "brand-new-password"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, login.Token); !errors.Is(err, ErrLoggedOut) {
		t.Errorf("existing sessions should be revoked: %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginRequest{Email: "asha@example.org", Password: "brand-new-password"}); err != nil {
		t.Errorf("login with new password failed: %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginRequest{Email: "asha@example.org", Password: "old-password"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password should fail: %v", err)
	}

	if err := f.svc.ResetPassword(ctx, token, "another-password"); !errors.Is(err, ErrInvalidResetLink) {
		t.Errorf("reused token: %v", err)
	}
}

func TestForgetPasswordCreatesDefaultPasswordRow(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 5, "new@example.org", "Project Lead", "")

	if err := f.svc.ForgetPassword(context.Background(), "new@example.org"); err != nil {
		t.Fatalf("ForgetPassword failed: %v", err)
	}
	p, ok := f.users.passwords[5]
	if !ok || !p.IsDefaultPassword || p.ResetToken == nil {
		t.Fatalf("password row = %+v", p)
	}
}

func TestForgetPasswordEdgeCases(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 2, "wing@example.org", "Wingman", "pw-123456")

	if err := f.svc.ForgetPassword(context.Background(), "ghost@example.org"); err != nil {
		t.Errorf("unknown email should succeed silently: %v", err)
	}
	if len(f.mailer.sent) != 0 {
		t.Errorf("no mail expected")
	}
	if err := f.svc.ForgetPassword(context.Background(), "wing@example.org"); !errors.Is(err, ErrRoleNotAllowed) {
		t.Errorf("expected ErrRoleNotAllowed, got %v", err)
	}
}

func TestResetPasswordRejections(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, 1, "asha@example.org", "CO Full Time", "old-password")
	ctx := context.Background()

	if err := f.svc.ResetPassword(ctx, "short", "long-enough-pass"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("short token: %v", err)
	}
	if err := f.svc.ResetPassword(ctx, strings.Repeat("a", 64), "short"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("short password: %v", err)
	}
	if err := f.svc.ResetPassword(ctx, strings.Repeat("a", 64), "long-enough-pass"); !errors.Is(err, ErrInvalidResetLink) {
		t.Errorf("unknown token: %v", err)
	}

	if err := f.svc.ForgetPassword(ctx, "asha@example.org"); err != nil {
		t.Fatal(err)
	}
	token := strings.TrimPrefix(f.mailer.sent[0].link, "https://crm.example.org/resetpassword?token=")
	f.svc.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	if err := f.svc.ResetPassword(ctx, token, "long-enough-pass"); !errors.Is(err, ErrInvalidResetLink) {
		t.Errorf("expired token: %v", err)
	}
}

func TestSecretFoldsLongInput(t *testing.T) {
	long := strings.Repeat("p", 100)
	got := secret("0123456789abcdef", long)
	if len(got) > bcryptInputLimit {
		t.Fatalf("secret length %d exceeds bcrypt limit", len(got))
	}
	if string(secret("salt", "pw")) != "saltpw" {
		t.Fatalf("short input should pass through")
	}
}

func TestCheckPassword(t *testing.T) {
	salt := "0123456789abcdef"
	long := strings.Repeat("correct horse battery staple ", 3)
	hashOf := func(t *testing.T, input []byte) string {
		t.Helper()
		h, err := bcrypt.GenerateFromPassword(input, bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}
		return string(h)
	}
	legacy := []byte(salt + long)[:bcryptInputLimit]

	tests := []struct {
		name     string
		hash     string
		password string
		want     bool
	}{
		{name: "short", hash: hashOf(t, secret(salt, "s3cret-pass")), password: "s3cret-pass", want: true},
		{name: "short wrong", hash: hashOf(t, secret(salt, "s3cret-pass")), password: "s3cret-pasS", want: false},
		{name: "long folded", hash: hashOf(t, secret(salt, long)), password: long, want: true},
		{name: "long legacy truncated", hash: hashOf(t, legacy), password: long, want: true},
		{name: "long wrong", hash: hashOf(t, secret(salt, long)), password: "x" + long, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkPassword(tt.hash, salt, tt.password); got != tt.want {
				t.Fatalf("checkPassword() = %v, want %v", got, tt.want)
			}
		})
	}
}
