package accounts

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dstarsfitness/dstars-backend/pkg/auth"
	"github.com/dstarsfitness/dstars-backend/pkg/auth/session"
	"github.com/dstarsfitness/dstars-backend/pkg/config"
	"github.com/dstarsfitness/dstars-backend/pkg/db"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
	"github.com/dstarsfitness/dstars-backend/pkg/mailer"
)

func setupAccountsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Shared cache keeps every pooled connection on the same in-memory
	// database; the test name keeps databases isolated between tests.
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS accounts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  full_name TEXT NOT NULL,
  is_verified BOOLEAN NOT NULL DEFAULT FALSE,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS email_verifications (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  account_id INTEGER NOT NULL UNIQUE REFERENCES accounts(id),
  code_hash TEXT NOT NULL,
  expires_at DATETIME NOT NULL,
  resend_available_at DATETIME,
  attempts INTEGER NOT NULL DEFAULT 0,
  last_sent_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(schema).Error)
	return conn
}

type stubSessions struct {
	mu       sync.Mutex
	refresh  map[string]string
	revoked  []string
	rotateN  int
	generate int
}

func newStubSessions() *stubSessions {
	return &stubSessions{refresh: map[string]string{}}
}

func (s *stubSessions) Generate(ctx context.Context, accessID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generate++
	token := fmt.Sprintf("refresh-%d", s.generate)
	s.refresh[accessID] = token
	return token, nil
}

func (s *stubSessions) Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.refresh[oldAccessID]
	if !ok || stored != provided {
		return "", "", session.ErrInvalidRefreshToken
	}
	delete(s.refresh, oldAccessID)
	s.rotateN++
	newID := fmt.Sprintf("access-%d", s.rotateN)
	newToken := fmt.Sprintf("rotated-%d", s.rotateN)
	s.refresh[newID] = newToken
	return newID, newToken, nil
}

func (s *stubSessions) Revoke(ctx context.Context, accessID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, accessID)
	s.revoked = append(s.revoked, accessID)
	return nil
}

type stubCooldowns struct {
	allow bool
}

func (s *stubCooldowns) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	return s.allow, nil
}

type stubMailer struct {
	mu       sync.Mutex
	messages []mailer.Message
}

func (s *stubMailer) Send(ctx context.Context, msg mailer.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func (s *stubMailer) lastCode(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.messages)
	code := codePattern.FindString(s.messages[len(s.messages)-1].PlainText)
	require.NotEmpty(t, code)
	return code
}

type accountHarness struct {
	conn      *gorm.DB
	svc       Service
	repo      Repository
	mail      *stubMailer
	sessions  *stubSessions
	cooldowns *stubCooldowns
	jwtCfg    config.JWTConfig
	advance   func(time.Duration)
}

func newAccountHarness(t *testing.T) *accountHarness {
	t.Helper()

	conn := setupAccountsTestDB(t)
	mail := &stubMailer{}
	sessions := newStubSessions()
	cooldowns := &stubCooldowns{allow: true}
	repo := NewRepository(conn)
	now := time.Now().UTC()
	jwtCfg := config.JWTConfig{
		Secret:            "test-signing-secret",
		Issuer:            "dstars-test",
		ExpirationMinutes: 15,
	}

	svc, err := NewService(ServiceParams{
		DB:        db.NewWithConn(conn),
		Repo:      repo,
		Sessions:  sessions,
		Cooldowns: cooldowns,
		Mailer:    mail,
		JWT:       jwtCfg,
		Password: config.PasswordConfig{
			ArgonMemoryKB: 8192, ArgonTime: 1, ArgonParallelism: 1,
			ArgonSaltLen: 16, ArgonKeyLen: 32,
		},
		Verification: config.VerificationConfig{
			CodeTTL:        10 * time.Minute,
			ResendCooldown: time.Minute,
			MaxAttempts:    5,
			TokenTTL:       24 * time.Hour,
		},
		Now: func() time.Time { return now },
	})
	require.NoError(t, err)

	return &accountHarness{
		conn: conn, svc: svc, repo: repo,
		mail: mail, sessions: sessions, cooldowns: cooldowns,
		jwtCfg: jwtCfg,
		advance: func(d time.Duration) { now = now.Add(d) },
	}
}

func (h *accountHarness) createVerified(t *testing.T, email, password string) {
	t.Helper()
	ctx := context.Background()

	_, err := h.svc.CreateAccount(ctx, CreateAccountInput{
		Email: email, Password: password, FullName: "Admin Person",
	})
	require.NoError(t, err)

	_, err = h.svc.VerifyAccount(ctx, email, h.mail.lastCode(t))
	require.NoError(t, err)
}

func requireAppCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, code, appErr.Code())
}

func TestCreateAccountStartsUnverified(t *testing.T) {
	h := newAccountHarness(t)
	ctx := context.Background()

	account, err := h.svc.CreateAccount(ctx, CreateAccountInput{
		Email: "Admin@Example.com", Password: "correct-horse", FullName: "Admin Person",
	})
	require.NoError(t, err)
	require.Equal(t, "admin@example.com", account.Email)
	require.False(t, account.IsVerified)
	require.NotEqual(t, "correct-horse", account.PasswordHash)

	challenge, err := h.repo.FindVerificationForUpdate(ctx, account.ID)
	require.NoError(t, err)
	require.NotEmpty(t, challenge.CodeHash)

	_, err = h.svc.CreateAccount(ctx, CreateAccountInput{
		Email: "admin@example.com", Password: "correct-horse", FullName: "Admin Person",
	})
	requireAppCode(t, err, pkgerrors.CodeStateConflict)
}

func TestCreateAccountRejectsShortPassword(t *testing.T) {
	h := newAccountHarness(t)

	_, err := h.svc.CreateAccount(context.Background(), CreateAccountInput{
		Email: "admin@example.com", Password: "short", FullName: "Admin Person",
	})
	requireAppCode(t, err, pkgerrors.CodeValidation)
}

func TestVerifyAccountClearsChallenge(t *testing.T) {
	h := newAccountHarness(t)
	ctx := context.Background()

	account, err := h.svc.CreateAccount(ctx, CreateAccountInput{
		Email: "admin@example.com", Password: "correct-horse", FullName: "Admin Person",
	})
	require.NoError(t, err)

	verified, err := h.svc.VerifyAccount(ctx, "admin@example.com", h.mail.lastCode(t))
	require.NoError(t, err)
	require.True(t, verified.IsVerified)

	_, err = h.repo.FindVerificationForUpdate(ctx, account.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestVerifyAccountRejectsWrongCodeAndCountsAttempt(t *testing.T) {
	h := newAccountHarness(t)
	ctx := context.Background()

	account, err := h.svc.CreateAccount(ctx, CreateAccountInput{
		Email: "admin@example.com", Password: "correct-horse", FullName: "Admin Person",
	})
	require.NoError(t, err)

	_, err = h.svc.VerifyAccount(ctx, "admin@example.com", "000000")
	requireAppCode(t, err, pkgerrors.CodeValidation)

	challenge, err := h.repo.FindVerificationForUpdate(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, 1, challenge.Attempts)

	// The right code still works before lockout.
	verified, err := h.svc.VerifyAccount(ctx, "admin@example.com", h.mail.lastCode(t))
	require.NoError(t, err)
	require.True(t, verified.IsVerified)
}

func TestVerifyAccountLocksOutAfterMaxAttempts(t *testing.T) {
	h := newAccountHarness(t)
	ctx := context.Background()

	_, err := h.svc.CreateAccount(ctx, CreateAccountInput{
		Email: "admin@example.com", Password: "correct-horse", FullName: "Admin Person",
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = h.svc.VerifyAccount(ctx, "admin@example.com", "000000")
		requireAppCode(t, err, pkgerrors.CodeValidation)
	}

	_, err = h.svc.VerifyAccount(ctx, "admin@example.com", h.mail.lastCode(t))
	requireAppCode(t, err, pkgerrors.CodeValidation)
}

func TestResendAccountCode(t *testing.T) {
	h := newAccountHarness(t)
	ctx := context.Background()

	_, err := h.svc.CreateAccount(ctx, CreateAccountInput{
		Email: "admin@example.com", Password: "correct-horse", FullName: "Admin Person",
	})
	require.NoError(t, err)

	// The challenge's own cooldown holds even when the counter key is fresh.
	err = h.svc.ResendAccountCode(ctx, "admin@example.com", "ip:other")
	requireAppCode(t, err, pkgerrors.CodeRateLimit)

	h.advance(time.Minute + time.Second)
	require.NoError(t, h.svc.ResendAccountCode(ctx, "admin@example.com", "ip:admin"))
	_, err = h.svc.VerifyAccount(ctx, "admin@example.com", h.mail.lastCode(t))
	require.NoError(t, err)

	// Unknown emails are masked.
	require.NoError(t, h.svc.ResendAccountCode(ctx, "ghost@example.com", "ip:ghost"))

	h.cooldowns.allow = false
	err = h.svc.ResendAccountCode(ctx, "admin@example.com", "ip:admin")
	requireAppCode(t, err, pkgerrors.CodeRateLimit)
}

func TestLoginRequiresVerifiedAccount(t *testing.T) {
	h := newAccountHarness(t)
	ctx := context.Background()

	_, err := h.svc.CreateAccount(ctx, CreateAccountInput{
		Email: "admin@example.com", Password: "correct-horse", FullName: "Admin Person",
	})
	require.NoError(t, err)

	_, err = h.svc.Login(ctx, "admin@example.com", "correct-horse")
	requireAppCode(t, err, pkgerrors.CodeForbidden)
}

func TestLoginIssuesTokenPair(t *testing.T) {
	h := newAccountHarness(t)
	ctx := context.Background()
	h.createVerified(t, "admin@example.com", "correct-horse")

	pair, err := h.svc.Login(ctx, "admin@example.com", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, int64(15*60), pair.ExpiresIn)

	claims, err := auth.ParseAccessToken(h.jwtCfg, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "admin@example.com", claims.Email)
	require.NotEmpty(t, claims.ID)

	account, err := h.repo.FindAccountByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	require.NotNil(t, account.LastLoginAt)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := newAccountHarness(t)
	ctx := context.Background()
	h.createVerified(t, "admin@example.com", "correct-horse")

	_, err := h.svc.Login(ctx, "admin@example.com", "wrong-password")
	requireAppCode(t, err, pkgerrors.CodeUnauthorized)

	_, err = h.svc.Login(ctx, "ghost@example.com", "correct-horse")
	requireAppCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestRefreshRotatesSession(t *testing.T) {
	h := newAccountHarness(t)
	ctx := context.Background()
	h.createVerified(t, "admin@example.com", "correct-horse")

	pair, err := h.svc.Login(ctx, "admin@example.com", "correct-horse")
	require.NoError(t, err)

	next, err := h.svc.Refresh(ctx, pair.AccessToken, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The old refresh token died with the rotation.
	_, err = h.svc.Refresh(ctx, pair.AccessToken, pair.RefreshToken)
	requireAppCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestLogoutRevokesSession(t *testing.T) {
	h := newAccountHarness(t)
	ctx := context.Background()
	h.createVerified(t, "admin@example.com", "correct-horse")

	pair, err := h.svc.Login(ctx, "admin@example.com", "correct-horse")
	require.NoError(t, err)
	claims, err := auth.ParseAccessToken(h.jwtCfg, pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, h.svc.Logout(ctx, claims.ID))
	require.Contains(t, h.sessions.revoked, claims.ID)
}
