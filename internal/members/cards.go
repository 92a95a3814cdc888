package members

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dstarsfitness/dstars-backend/pkg/config"
	"github.com/dstarsfitness/dstars-backend/pkg/db"
	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
	"github.com/dstarsfitness/dstars-backend/pkg/metrics"
	"github.com/dstarsfitness/dstars-backend/pkg/pdf"
	"github.com/dstarsfitness/dstars-backend/pkg/security"
	"github.com/dstarsfitness/dstars-backend/pkg/signer"
	"github.com/dstarsfitness/dstars-backend/pkg/storage"
)

const cardDir = "member-cards"

// ValidationResult is the public answer for a scanned card QR code.
type ValidationResult struct {
	MembershipID string `json:"membership_id"`
	FullName     string `json:"full_name"`
	PlanName     string `json:"plan_name,omitempty"`
	IsVerified   bool   `json:"is_verified"`
}

// CardService issues download tokens, renders virtual cards, and answers
// card validation scans.
type CardService interface {
	IssueDownloadToken(ctx context.Context, memberID int64) (string, error)
	GetVirtualCard(ctx context.Context, memberID int64, rawToken string) ([]byte, error)
	Validate(ctx context.Context, signedToken string) (*ValidationResult, error)
}

// CardServiceParams packages the dependencies of the card service.
type CardServiceParams struct {
	DB           *db.Client
	Repo         Repository
	Store        storage.Store
	Renderer     *pdf.CardRenderer
	Signer       *signer.Signer
	Metrics      *metrics.MembershipMetrics
	Verification config.VerificationConfig
	Now          func() time.Time
}

type cardService struct {
	db        *db.Client
	repo      Repository
	store     storage.Store
	renderer  *pdf.CardRenderer
	signer    *signer.Signer
	metrics   *metrics.MembershipMetrics
	verifyCfg config.VerificationConfig
	now       func() time.Time
}

// NewCardService builds the virtual card service.
func NewCardService(params CardServiceParams) (CardService, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("members repository required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("storage required")
	}
	if params.Renderer == nil {
		return nil, fmt.Errorf("card renderer required")
	}
	if params.Signer == nil {
		return nil, fmt.Errorf("card signer required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &cardService{
		db:        params.DB,
		repo:      params.Repo,
		store:     params.Store,
		renderer:  params.Renderer,
		signer:    params.Signer,
		metrics:   params.Metrics,
		verifyCfg: params.Verification,
		now:       now,
	}, nil
}

// IssueDownloadToken manually rotates a member's card download credential.
// Back office only, the public path goes through VerifyEmail.
func (s *cardService) IssueDownloadToken(ctx context.Context, memberID int64) (string, error) {
	var raw string
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		member, err := repo.FindByIDForUpdate(ctx, memberID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock member")
		}
		if !member.IsVerified {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "member email is not verified")
		}

		token, err := security.GenerateToken(tokenBytes)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate download token")
		}
		hash := security.HashSecret(token)
		expires := s.now().UTC().Add(s.verifyCfg.TokenTTL)
		member.DownloadTokenHash = &hash
		member.DownloadTokenExpiresAt = &expires
		if err := repo.Update(ctx, member); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist download token")
		}
		raw = token
		return nil
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

// GetVirtualCard returns the member's card PDF after checking the bearer
// download token. The ladder is strict: unknown member 404, bad or expired
// token 401, unverified member 403.
func (s *cardService) GetVirtualCard(ctx context.Context, memberID int64, rawToken string) ([]byte, error) {
	member, err := s.repo.FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup member")
	}

	if rawToken == "" || member.DownloadTokenHash == nil || member.DownloadTokenExpiresAt == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid download token")
	}
	if s.now().UTC().After(*member.DownloadTokenExpiresAt) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid download token")
	}
	if !security.CheckSecret(rawToken, *member.DownloadTokenHash) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid download token")
	}

	if !member.IsVerified {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "member email is not verified")
	}
	if member.MembershipID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "member has no membership id")
	}

	return s.cardBytes(ctx, member)
}

// Validate answers a scanned QR code. Unverified and unknown members get
// the same not-found answer so a card cannot be probed for existence.
func (s *cardService) Validate(ctx context.Context, signedToken string) (*ValidationResult, error) {
	membershipID, err := s.signer.Verify(signedToken)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
	}

	member, err := s.repo.FindByMembershipID(ctx, membershipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup member")
	}
	if !member.IsVerified {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
	}

	result := &ValidationResult{
		MembershipID: membershipID,
		FullName:     member.FullName,
		IsVerified:   true,
	}
	if member.MembershipPlan != nil {
		result.PlanName = member.MembershipPlan.Name
	}
	return result, nil
}

// cardBytes serves the cached artifact when its content still matches and
// renders once otherwise. The path embeds a content hash, so renaming a
// member or changing their plan naturally produces a new artifact.
func (s *cardService) cardBytes(ctx context.Context, member *models.Member) ([]byte, error) {
	data, err := s.cardData(member)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sign validation url")
	}
	path := cardPath(*member.MembershipID, data)

	if member.VirtualCardPath != nil && *member.VirtualCardPath == path {
		if raw, err := s.store.Read(ctx, path); err == nil {
			s.metrics.ObserveCardRender(true, 0)
			return raw, nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read card artifact")
		}
	}

	start := s.now()
	raw, err := s.renderer.Render(data)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render card")
	}
	if err := s.store.Write(ctx, path, raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store card artifact")
	}
	s.metrics.ObserveCardRender(false, time.Since(start))

	member.VirtualCardPath = &path
	if err := s.repo.Update(ctx, member); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist card path")
	}
	return raw, nil
}

func (s *cardService) cardData(member *models.Member) (pdf.CardData, error) {
	planName := ""
	if member.MembershipPlan != nil {
		planName = member.MembershipPlan.Name
	}
	validationURL, err := s.signer.ValidationURL(*member.MembershipID, s.now())
	if err != nil {
		return pdf.CardData{}, err
	}
	return pdf.CardData{
		MemberName:    member.FullName,
		MembershipID:  *member.MembershipID,
		PlanName:      planName,
		MemberSince:   member.CreatedAt.UTC().Format("Jan 2006"),
		ValidationURL: validationURL,
	}, nil
}

// cardPath keys the artifact by a hash of the rendered content so stale
// cards are never served after member details change.
func cardPath(membershipID string, data pdf.CardData) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf(
		"%s|%s|%s|%s", data.MemberName, data.MembershipID, data.PlanName, data.MemberSince,
	)))
	return fmt.Sprintf("%s/%s-%s.pdf", cardDir, membershipID, hex.EncodeToString(sum[:])[:8])
}
