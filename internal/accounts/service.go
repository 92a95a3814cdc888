package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dstarsfitness/dstars-backend/pkg/auth"
	"github.com/dstarsfitness/dstars-backend/pkg/auth/session"
	"github.com/dstarsfitness/dstars-backend/pkg/config"
	"github.com/dstarsfitness/dstars-backend/pkg/db"
	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
	"github.com/dstarsfitness/dstars-backend/pkg/logger"
	"github.com/dstarsfitness/dstars-backend/pkg/mailer"
	"github.com/dstarsfitness/dstars-backend/pkg/security"
)

const (
	codeLength        = 6
	minPasswordLength = 8
	invalidCodeError  = "invalid or expired verification code"
	badCredentials    = "invalid email or password"
)

// CooldownStore throttles code issuance per requester key.
type CooldownStore interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string) (string, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
}

// CreateAccountInput is the staff account provisioning payload.
type CreateAccountInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"required,max=120"`
}

// TokenPair is returned on login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Service manages back-office accounts and sessions.
type Service interface {
	CreateAccount(ctx context.Context, input CreateAccountInput) (*models.Account, error)
	VerifyAccount(ctx context.Context, email, code string) (*models.Account, error)
	ResendAccountCode(ctx context.Context, email, cooldownKey string) error
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, accessID string) error
}

// ServiceParams packages the accounts service dependencies.
type ServiceParams struct {
	DB           *db.Client
	Repo         Repository
	Sessions     sessionManager
	Cooldowns    CooldownStore
	Mailer       mailer.Mailer
	Logger       *logger.Logger
	JWT          config.JWTConfig
	Password     config.PasswordConfig
	Verification config.VerificationConfig
	Now          func() time.Time
}

type service struct {
	db        *db.Client
	repo      Repository
	sessions  sessionManager
	cooldowns CooldownStore
	mail      mailer.Mailer
	logg      *logger.Logger
	jwtCfg    config.JWTConfig
	passCfg   config.PasswordConfig
	verifyCfg config.VerificationConfig
	now       func() time.Time
}

// NewService builds the accounts service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager required")
	}
	if params.Cooldowns == nil {
		return nil, fmt.Errorf("cooldown store required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:        params.DB,
		repo:      params.Repo,
		sessions:  params.Sessions,
		cooldowns: params.Cooldowns,
		mail:      params.Mailer,
		logg:      params.Logger,
		jwtCfg:    params.JWT,
		passCfg:   params.Password,
		verifyCfg: params.Verification,
		now:       now,
	}, nil
}

func (s *service) CreateAccount(ctx context.Context, input CreateAccountInput) (*models.Account, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	fullName := strings.TrimSpace(input.FullName)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if fullName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full_name is required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hash, err := security.HashPassword(input.Password, s.passCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var (
		account *models.Account
		rawCode string
	)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindAccountByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check account email")
		}

		created, err := repo.CreateAccount(ctx, &models.Account{
			Email:        email,
			PasswordHash: hash,
			FullName:     fullName,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create account")
		}

		code, err := s.startChallenge(ctx, repo, created.ID, nil)
		if err != nil {
			return err
		}
		account = created
		rawCode = code
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sendVerificationEmail(ctx, account, rawCode)
	return account, nil
}

func (s *service) VerifyAccount(ctx context.Context, email, code string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, invalidCodeError)
	}

	var account *models.Account
	var badCode error
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		found, err := repo.FindAccountByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, invalidCodeError)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup account")
		}
		if found.IsVerified {
			account = found
			return nil
		}

		challenge, err := repo.FindVerificationForUpdate(ctx, found.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, invalidCodeError)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock verification")
		}

		now := s.now().UTC()
		if now.After(challenge.ExpiresAt) || challenge.Attempts >= s.verifyCfg.MaxAttempts {
			return pkgerrors.New(pkgerrors.CodeValidation, invalidCodeError)
		}
		if !security.CheckSecret(code, challenge.CodeHash) {
			challenge.Attempts++
			if err := repo.SaveVerification(ctx, challenge); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record failed attempt")
			}
			// The attempt counter must survive the rejection, so the tx
			// commits and the failure is reported after it.
			badCode = pkgerrors.New(pkgerrors.CodeValidation, invalidCodeError)
			return nil
		}

		if err := repo.DeleteVerification(ctx, found.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear verification")
		}
		found.IsVerified = true
		if err := repo.UpdateAccount(ctx, found); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist verification")
		}
		account = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	if badCode != nil {
		return nil, badCode
	}
	return account, nil
}

func (s *service) ResendAccountCode(ctx context.Context, email, cooldownKey string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}

	if cooldownKey != "" {
		allowed, err := s.cooldowns.Allow(ctx, cooldownKey, s.verifyCfg.ResendCooldown)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check cooldown")
		}
		if !allowed {
			return pkgerrors.New(pkgerrors.CodeRateLimit, "please wait before requesting another code")
		}
	}

	var (
		account *models.Account
		rawCode string
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		found, err := repo.FindAccountByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Masked: unknown emails are indistinguishable from known ones.
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup account")
		}
		if found.IsVerified {
			return nil
		}

		existing, err := repo.FindVerificationForUpdate(ctx, found.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock verification")
		}
		if existing != nil && existing.ResendAvailableAt != nil &&
			s.now().UTC().Before(*existing.ResendAvailableAt) {
			return pkgerrors.New(pkgerrors.CodeRateLimit, "please wait before requesting another code")
		}

		code, err := s.startChallenge(ctx, repo, found.ID, existing)
		if err != nil {
			return err
		}
		account = found
		rawCode = code
		return nil
	})
	if err != nil {
		return err
	}

	if account != nil {
		s.sendVerificationEmail(ctx, account, rawCode)
	}
	return nil
}

// Login checks credentials and opens a session. Unknown emails and wrong
// passwords share one answer.
func (s *service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, badCredentials)
	}

	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, badCredentials)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup account")
	}

	ok, err := security.VerifyPassword(password, account.PasswordHash)
	if err != nil || !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, badCredentials)
	}
	if !account.IsVerified {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account email is not verified")
	}

	pair, err := s.openSession(ctx, account)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	account.LastLoginAt = &now
	if err := s.repo.UpdateAccount(ctx, account); err != nil {
		s.warn(ctx, "recording last login failed", err)
	}
	return pair, nil
}

func (s *service) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error) {
	claims, err := auth.ParseAccessTokenAllowExpired(s.jwtCfg, accessToken)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid session")
	}

	newAccessID, newRefresh, err := s.sessions.Rotate(ctx, claims.ID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid session")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}

	account, err := s.repo.FindAccountByID(ctx, claims.AccountID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid session")
	}

	access, err := auth.MintAccessToken(s.jwtCfg, s.now(), auth.AccessTokenPayload{
		AccountID: account.ID,
		Email:     account.Email,
		JTI:       newAccessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: newRefresh,
		ExpiresIn:    int64(time.Duration(s.jwtCfg.ExpirationMinutes) * time.Minute / time.Second),
	}, nil
}

func (s *service) Logout(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid session")
	}
	if err := s.sessions.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) openSession(ctx context.Context, account *models.Account) (*TokenPair, error) {
	accessID := session.NewAccessID()
	access, err := auth.MintAccessToken(s.jwtCfg, s.now(), auth.AccessTokenPayload{
		AccountID: account.ID,
		Email:     account.Email,
		JTI:       accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}

	refresh, err := s.sessions.Generate(ctx, accessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open session")
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(time.Duration(s.jwtCfg.ExpirationMinutes) * time.Minute / time.Second),
	}, nil
}

// startChallenge writes a fresh hashed code, reusing the existing row when
// one is present.
func (s *service) startChallenge(ctx context.Context, repo Repository, accountID int64, existing *models.EmailVerification) (string, error) {
	code, err := security.GenerateNumericCode(codeLength)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate verification code")
	}

	now := s.now().UTC()
	resendAt := now.Add(s.verifyCfg.ResendCooldown)
	challenge := existing
	if challenge == nil {
		challenge = &models.EmailVerification{AccountID: accountID}
	}
	challenge.CodeHash = security.HashSecret(code)
	challenge.ExpiresAt = now.Add(s.verifyCfg.CodeTTL)
	challenge.ResendAvailableAt = &resendAt
	challenge.Attempts = 0
	challenge.LastSentAt = &now

	if err := repo.SaveVerification(ctx, challenge); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist verification")
	}
	return code, nil
}

func (s *service) sendVerificationEmail(ctx context.Context, account *models.Account, code string) {
	msg := mailer.Message{
		To:      account.Email,
		ToName:  account.FullName,
		Subject: "Verify your D'Stars Fitness staff account",
		PlainText: fmt.Sprintf(
			"Hi %s,\n\nYour verification code is %s. It expires in %d minutes.\n\nD'Stars Fitness Gym",
			account.FullName, code, int(s.verifyCfg.CodeTTL.Minutes()),
		),
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.warn(ctx, "sending verification email failed", err)
	}
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithField(ctx, "error", err.Error())
	s.logg.Warn(ctx, msg)
}
