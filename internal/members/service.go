package members

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dstarsfitness/dstars-backend/internal/plans"
	"github.com/dstarsfitness/dstars-backend/pkg/config"
	"github.com/dstarsfitness/dstars-backend/pkg/db"
	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
	"github.com/dstarsfitness/dstars-backend/pkg/enums"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
	"github.com/dstarsfitness/dstars-backend/pkg/logger"
	"github.com/dstarsfitness/dstars-backend/pkg/mailer"
	"github.com/dstarsfitness/dstars-backend/pkg/metrics"
	"github.com/dstarsfitness/dstars-backend/pkg/refs"
	"github.com/dstarsfitness/dstars-backend/pkg/security"
)

const (
	codeLength       = 6
	tokenBytes       = 32
	invalidCodeError = "invalid or expired verification code"
)

// CooldownStore throttles code issuance per requester key.
type CooldownStore interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}

type planReader interface {
	FindBySlug(ctx context.Context, slug string) (*models.MembershipPlan, error)
}

// RegisterRequest contains the public registration payload.
type RegisterRequest struct {
	FullName string  `json:"full_name" validate:"required,max=120"`
	Email    string  `json:"email" validate:"required,email"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	PlanSlug string  `json:"plan_slug" validate:"required"`
}

// VerifyResult is returned on successful email verification.
type VerifyResult struct {
	Member        *models.Member
	DownloadToken string
}

// Service drives the registration-to-verification pipeline.
type Service interface {
	Register(ctx context.Context, req RegisterRequest, cooldownKey string) (*models.Member, error)
	VerifyEmail(ctx context.Context, email, code string) (*VerifyResult, error)
	ResendCode(ctx context.Context, email, cooldownKey string) error
}

// ServiceParams packages the dependencies for the members service.
type ServiceParams struct {
	DB           *db.Client
	Repo         Repository
	Plans        planReader
	Cooldowns    CooldownStore
	Mailer       mailer.Mailer
	Logger       *logger.Logger
	Metrics      *metrics.MembershipMetrics
	Verification config.VerificationConfig
	Billing      config.BillingConfig
	Now          func() time.Time
}

type service struct {
	db        *db.Client
	repo      Repository
	plans     planReader
	cooldowns CooldownStore
	mail      mailer.Mailer
	logg      *logger.Logger
	metrics   *metrics.MembershipMetrics
	verifyCfg config.VerificationConfig
	billing   config.BillingConfig
	now       func() time.Time
}

// NewService builds the members pipeline service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("members repository required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plans reader required")
	}
	if params.Cooldowns == nil {
		return nil, fmt.Errorf("cooldown store required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if params.Verification.CodeTTL <= 0 {
		return nil, fmt.Errorf("verification code ttl must be positive")
	}
	if params.Verification.MaxAttempts <= 0 {
		return nil, fmt.Errorf("verification max attempts must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:        params.DB,
		repo:      params.Repo,
		plans:     params.Plans,
		cooldowns: params.Cooldowns,
		mail:      params.Mailer,
		logg:      params.Logger,
		metrics:   params.Metrics,
		verifyCfg: params.Verification,
		billing:   params.Billing,
		now:       now,
	}, nil
}

func (s *service) Register(ctx context.Context, req RegisterRequest, cooldownKey string) (*models.Member, error) {
	fullName := strings.TrimSpace(req.FullName)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if fullName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full_name is required")
	}
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if strings.TrimSpace(req.PlanSlug) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan_slug is required")
	}

	plan, err := s.plans.FindBySlug(ctx, strings.TrimSpace(req.PlanSlug))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.IncRegistration("invalid_plan")
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan does not exist or is not open for enrollment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup plan")
	}
	if plan.Status != enums.PlanStatusActive {
		s.metrics.IncRegistration("invalid_plan")
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan does not exist or is not open for enrollment")
	}

	var (
		member  *models.Member
		rawCode string
	)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindByEmail(ctx, email); err == nil {
			s.metrics.IncRegistration("duplicate_email")
			return pkgerrors.New(pkgerrors.CodeStateConflict, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check member email")
		}

		created, err := repo.Create(ctx, &models.Member{
			FullName:         fullName,
			Email:            email,
			Phone:            req.Phone,
			Status:           enums.MemberStatusActive,
			MembershipPlanID: &plan.ID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create member")
		}

		// The external id needs the serial id, so it is assigned right
		// after the insert, inside the same transaction.
		membershipID := refs.Format(s.billing.MembershipPrefix, created.ID)
		created.MembershipID = &membershipID

		code, err := s.startChallenge(created)
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, created); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist member challenge")
		}

		created.MembershipPlan = plan
		member = created
		rawCode = code
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Registration always sends a fresh code. The window is still marked so
	// an immediate resend gets throttled.
	if cooldownKey != "" {
		if _, err := s.cooldowns.Allow(ctx, cooldownKey, s.verifyCfg.ResendCooldown); err != nil {
			s.warn(ctx, "marking cooldown window failed", err)
		}
	}

	s.sendVerificationEmail(ctx, member, rawCode)
	s.metrics.IncRegistration("created")
	return member, nil
}

func (s *service) VerifyEmail(ctx context.Context, email, code string) (*VerifyResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, invalidCodeError)
	}

	var result *VerifyResult
	var badCode error
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		member, err := repo.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Unknown emails get the same answer as a bad code.
				s.metrics.IncVerification("unknown_email")
				return pkgerrors.New(pkgerrors.CodeValidation, invalidCodeError)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup member")
		}

		locked, err := repo.FindByIDForUpdate(ctx, member.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock member")
		}

		if locked.IsVerified {
			// Re-submissions from an already-verified member still get a
			// fresh download token so UI retries work.
			token, err := s.startDownloadToken(locked)
			if err != nil {
				return err
			}
			if err := repo.Update(ctx, locked); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist download token")
			}
			s.metrics.IncVerification("already_verified")
			result = &VerifyResult{Member: locked, DownloadToken: token}
			return nil
		}

		ok, err := s.checkChallenge(ctx, repo, locked, code)
		if err != nil {
			return err
		}
		if !ok {
			// The attempt counter must survive the rejection, so the tx
			// commits and the failure is reported after it.
			s.metrics.IncVerification("failed")
			badCode = pkgerrors.New(pkgerrors.CodeValidation, invalidCodeError)
			return nil
		}

		now := s.now().UTC()
		locked.IsVerified = true
		locked.VerifiedAt = &now
		token, err := s.startDownloadToken(locked)
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, locked); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist verification")
		}

		s.metrics.IncVerification("verified")
		result = &VerifyResult{Member: locked, DownloadToken: token}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if badCode != nil {
		return nil, badCode
	}
	return result, nil
}

func (s *service) ResendCode(ctx context.Context, email, cooldownKey string) error {
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
		member  *models.Member
		rawCode string
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		found, err := repo.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Masked: unknown emails are indistinguishable from known ones.
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup member")
		}
		if found.IsVerified {
			return nil
		}
		if found.ResendAvailableAt != nil && s.now().UTC().Before(*found.ResendAvailableAt) {
			return pkgerrors.New(pkgerrors.CodeRateLimit, "please wait before requesting another code")
		}

		code, err := s.startChallenge(found)
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, found); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist member challenge")
		}
		member = found
		rawCode = code
		return nil
	})
	if err != nil {
		return err
	}

	if member != nil {
		s.sendVerificationEmail(ctx, member, rawCode)
	}
	return nil
}

// startChallenge overwrites any prior challenge on the member with a fresh
// hashed code.
func (s *service) startChallenge(member *models.Member) (string, error) {
	code, err := security.GenerateNumericCode(codeLength)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate verification code")
	}

	now := s.now().UTC()
	hash := security.HashSecret(code)
	expires := now.Add(s.verifyCfg.CodeTTL)
	resendAt := now.Add(s.verifyCfg.ResendCooldown)

	member.VerificationCodeHash = &hash
	member.VerificationExpiresAt = &expires
	member.VerificationAttempts = 0
	member.ResendAvailableAt = &resendAt
	return code, nil
}

// checkChallenge fails closed: a missing, expired, or locked-out challenge
// never succeeds, and a mismatch is counted even when the member later
// submits the right code.
func (s *service) checkChallenge(ctx context.Context, repo Repository, member *models.Member, code string) (bool, error) {
	if member.VerificationCodeHash == nil || member.VerificationExpiresAt == nil {
		return false, nil
	}
	if s.now().UTC().After(*member.VerificationExpiresAt) {
		return false, nil
	}
	if member.VerificationAttempts >= s.verifyCfg.MaxAttempts {
		return false, nil
	}

	if !security.CheckSecret(code, *member.VerificationCodeHash) {
		member.VerificationAttempts++
		if err := repo.Update(ctx, member); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record failed attempt")
		}
		return false, nil
	}

	// Single use: the challenge is cleared on success so it cannot replay.
	member.VerificationCodeHash = nil
	member.VerificationExpiresAt = nil
	member.VerificationAttempts = 0
	member.ResendAvailableAt = nil
	return true, nil
}

// startDownloadToken replaces the member's card download credential and
// returns the raw token, which is never recoverable afterwards.
func (s *service) startDownloadToken(member *models.Member) (string, error) {
	token, err := security.GenerateToken(tokenBytes)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate download token")
	}

	hash := security.HashSecret(token)
	expires := s.now().UTC().Add(s.verifyCfg.TokenTTL)
	member.DownloadTokenHash = &hash
	member.DownloadTokenExpiresAt = &expires
	return token, nil
}

// sendVerificationEmail dispatches after commit, best effort. A failed send
// is logged, never surfaced: the code is already persisted and a resend can
// recover.
func (s *service) sendVerificationEmail(ctx context.Context, member *models.Member, code string) {
	msg := mailer.Message{
		To:      member.Email,
		ToName:  member.FullName,
		Subject: "Your D'Stars Fitness verification code",
		PlainText: fmt.Sprintf(
			"Hi %s,\n\nYour verification code is %s. It expires in %d minutes.\n\nD'Stars Fitness Gym",
			member.FullName, code, int(s.verifyCfg.CodeTTL.Minutes()),
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

// ensure the plans repository satisfies the narrow reader interface
var _ planReader = (plans.Repository)(nil)
