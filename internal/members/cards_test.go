package members

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dstarsfitness/dstars-backend/pkg/config"
	"github.com/dstarsfitness/dstars-backend/pkg/db"
	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
	"github.com/dstarsfitness/dstars-backend/pkg/enums"
	pkgerrors "github.com/dstarsfitness/dstars-backend/pkg/errors"
	"github.com/dstarsfitness/dstars-backend/pkg/pdf"
	"github.com/dstarsfitness/dstars-backend/pkg/security"
	"github.com/dstarsfitness/dstars-backend/pkg/signer"
	"github.com/dstarsfitness/dstars-backend/pkg/storage"
)

type cardHarness struct {
	memberHarness
	cards  CardService
	store  *storage.LocalStore
	signer *signer.Signer
}

func newCardHarness(t *testing.T) *cardHarness {
	t.Helper()

	base := newMemberHarness(t)

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	sgn, err := signer.New(config.CardConfig{
		SigningSecret: "test-card-secret",
		SignedURLTTL:  365 * 24 * time.Hour,
	}, "https://dstars.example.com")
	require.NoError(t, err)

	cards, err := NewCardService(CardServiceParams{
		DB:       db.NewWithConn(base.conn),
		Repo:     base.repo,
		Store:    store,
		Renderer: pdf.NewCardRenderer(),
		Signer:   sgn,
		Verification: config.VerificationConfig{
			TokenTTL: 24 * time.Hour,
		},
		Now: base.clock.Now,
	})
	require.NoError(t, err)

	return &cardHarness{memberHarness: *base, cards: cards, store: store, signer: sgn}
}

// registerAndVerify walks a member through the public pipeline and returns
// the member row plus their raw download token.
func (h *cardHarness) registerAndVerify(t *testing.T, email string) (*models.Member, string) {
	t.Helper()
	ctx := context.Background()

	_, err := h.svc.Register(ctx, RegisterRequest{
		FullName: "Maria Santos", Email: email, PlanSlug: "monthly-unlimited",
	}, "")
	require.NoError(t, err)

	result, err := h.svc.VerifyEmail(ctx, email, h.mail.lastCode(t))
	require.NoError(t, err)
	return result.Member, result.DownloadToken
}

func TestGetVirtualCardUnknownMember(t *testing.T) {
	h := newCardHarness(t)

	_, err := h.cards.GetVirtualCard(context.Background(), 999, "whatever")
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestGetVirtualCardRejectsBadToken(t *testing.T) {
	h := newCardHarness(t)
	ctx := context.Background()
	seedPlan(t, h.conn, "Monthly Unlimited", "monthly-unlimited", enums.PlanStatusActive)
	member, token := h.registerAndVerify(t, "maria@example.com")

	_, err := h.cards.GetVirtualCard(ctx, member.ID, "")
	requireCode(t, err, pkgerrors.CodeUnauthorized)

	_, err = h.cards.GetVirtualCard(ctx, member.ID, "deadbeef")
	requireCode(t, err, pkgerrors.CodeUnauthorized)

	h.clock.Advance(24*time.Hour + time.Minute)
	_, err = h.cards.GetVirtualCard(ctx, member.ID, token)
	requireCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestGetVirtualCardRequiresVerifiedMember(t *testing.T) {
	h := newCardHarness(t)
	ctx := context.Background()

	// Token planted directly so the unverified branch is reachable.
	raw, err := security.GenerateToken(32)
	require.NoError(t, err)
	hash := security.HashSecret(raw)
	expires := h.clock.Now().Add(time.Hour)
	membershipID := "DSTARS-000042"
	member := &models.Member{
		MembershipID:           &membershipID,
		FullName:               "Pending Person",
		Email:                  "pending@example.com",
		Status:                 enums.MemberStatusActive,
		DownloadTokenHash:      &hash,
		DownloadTokenExpiresAt: &expires,
	}
	require.NoError(t, h.conn.Create(member).Error)

	_, err = h.cards.GetVirtualCard(ctx, member.ID, raw)
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestGetVirtualCardRendersOnceAndCaches(t *testing.T) {
	h := newCardHarness(t)
	ctx := context.Background()
	seedPlan(t, h.conn, "Monthly Unlimited", "monthly-unlimited", enums.PlanStatusActive)
	member, token := h.registerAndVerify(t, "maria@example.com")

	first, err := h.cards.GetVirtualCard(ctx, member.ID, token)
	require.NoError(t, err)
	require.True(t, len(first) > 4)
	require.Equal(t, "%PDF", string(first[:4]))

	stored, err := h.repo.FindByID(ctx, member.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.VirtualCardPath)

	exists, err := h.store.Exists(ctx, *stored.VirtualCardPath)
	require.NoError(t, err)
	require.True(t, exists)

	// Second download serves the cached artifact byte for byte.
	second, err := h.cards.GetVirtualCard(ctx, member.ID, token)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestGetVirtualCardRerendersAfterRename(t *testing.T) {
	h := newCardHarness(t)
	ctx := context.Background()
	seedPlan(t, h.conn, "Monthly Unlimited", "monthly-unlimited", enums.PlanStatusActive)
	member, token := h.registerAndVerify(t, "maria@example.com")

	_, err := h.cards.GetVirtualCard(ctx, member.ID, token)
	require.NoError(t, err)
	before, err := h.repo.FindByID(ctx, member.ID)
	require.NoError(t, err)

	before.FullName = "Maria Santos-Reyes"
	require.NoError(t, h.repo.Update(ctx, before))

	_, err = h.cards.GetVirtualCard(ctx, member.ID, token)
	require.NoError(t, err)
	after, err := h.repo.FindByID(ctx, member.ID)
	require.NoError(t, err)
	require.NotEqual(t, *before.VirtualCardPath, *after.VirtualCardPath)
}

func TestIssueDownloadToken(t *testing.T) {
	h := newCardHarness(t)
	ctx := context.Background()
	seedPlan(t, h.conn, "Monthly Unlimited", "monthly-unlimited", enums.PlanStatusActive)
	member, oldToken := h.registerAndVerify(t, "maria@example.com")

	fresh, err := h.cards.IssueDownloadToken(ctx, member.ID)
	require.NoError(t, err)
	require.Len(t, fresh, 64)
	require.NotEqual(t, oldToken, fresh)

	_, err = h.cards.GetVirtualCard(ctx, member.ID, oldToken)
	requireCode(t, err, pkgerrors.CodeUnauthorized)
	_, err = h.cards.GetVirtualCard(ctx, member.ID, fresh)
	require.NoError(t, err)
}

func TestIssueDownloadTokenRequiresVerification(t *testing.T) {
	h := newCardHarness(t)
	ctx := context.Background()
	seedPlan(t, h.conn, "Monthly Unlimited", "monthly-unlimited", enums.PlanStatusActive)

	_, err := h.svc.Register(ctx, RegisterRequest{
		FullName: "Maria Santos", Email: "maria@example.com", PlanSlug: "monthly-unlimited",
	}, "")
	require.NoError(t, err)

	stored, err := h.repo.FindByEmail(ctx, "maria@example.com")
	require.NoError(t, err)

	_, err = h.cards.IssueDownloadToken(ctx, stored.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestValidateCard(t *testing.T) {
	h := newCardHarness(t)
	ctx := context.Background()
	seedPlan(t, h.conn, "Monthly Unlimited", "monthly-unlimited", enums.PlanStatusActive)
	member, _ := h.registerAndVerify(t, "maria@example.com")

	signed, err := h.signer.Sign(*member.MembershipID, h.clock.Now())
	require.NoError(t, err)

	result, err := h.cards.Validate(ctx, signed)
	require.NoError(t, err)
	require.Equal(t, *member.MembershipID, result.MembershipID)
	require.Equal(t, "Maria Santos", result.FullName)
	require.True(t, result.IsVerified)
}

func TestValidateMasksUnverifiedAndUnknown(t *testing.T) {
	h := newCardHarness(t)
	ctx := context.Background()
	seedPlan(t, h.conn, "Monthly Unlimited", "monthly-unlimited", enums.PlanStatusActive)

	_, err := h.svc.Register(ctx, RegisterRequest{
		FullName: "Maria Santos", Email: "maria@example.com", PlanSlug: "monthly-unlimited",
	}, "")
	require.NoError(t, err)
	stored, err := h.repo.FindByEmail(ctx, "maria@example.com")
	require.NoError(t, err)

	signed, err := h.signer.Sign(*stored.MembershipID, h.clock.Now())
	require.NoError(t, err)
	_, err = h.cards.Validate(ctx, signed)
	requireCode(t, err, pkgerrors.CodeNotFound)

	unknown, err := h.signer.Sign("DSTARS-999999", h.clock.Now())
	require.NoError(t, err)
	_, err = h.cards.Validate(ctx, unknown)
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = h.cards.Validate(ctx, "garbage-token")
	requireCode(t, err, pkgerrors.CodeNotFound)
}
