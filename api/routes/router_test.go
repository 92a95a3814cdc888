package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dstarsfitness/dstars-backend/internal/accounts"
	"github.com/dstarsfitness/dstars-backend/internal/billing"
	"github.com/dstarsfitness/dstars-backend/internal/members"
	"github.com/dstarsfitness/dstars-backend/internal/plans"
	pkgauth "github.com/dstarsfitness/dstars-backend/pkg/auth"
	"github.com/dstarsfitness/dstars-backend/pkg/config"
	"github.com/dstarsfitness/dstars-backend/pkg/db/models"
	"github.com/dstarsfitness/dstars-backend/pkg/enums"
	"github.com/dstarsfitness/dstars-backend/pkg/logger"
	"github.com/dstarsfitness/dstars-backend/pkg/pagination"
)

type stubSessionChecker struct{}

func (stubSessionChecker) HasSession(ctx context.Context, accessID string) (bool, error) {
	return true, nil
}

type stubMembersService struct{}

func (stubMembersService) Register(ctx context.Context, req members.RegisterRequest, cooldownKey string) (*models.Member, error) {
	return &models.Member{FullName: req.FullName, Email: req.Email}, nil
}

func (stubMembersService) VerifyEmail(ctx context.Context, email, code string) (*members.VerifyResult, error) {
	return &members.VerifyResult{Member: &models.Member{Email: email}}, nil
}

func (stubMembersService) ResendCode(ctx context.Context, email, cooldownKey string) error {
	return nil
}

type stubCardService struct{}

func (stubCardService) IssueDownloadToken(ctx context.Context, memberID int64) (string, error) {
	return "token", nil
}

func (stubCardService) GetVirtualCard(ctx context.Context, memberID int64, rawToken string) ([]byte, error) {
	return []byte("%PDF-1.7"), nil
}

func (stubCardService) Validate(ctx context.Context, signedToken string) (*members.ValidationResult, error) {
	return &members.ValidationResult{MembershipID: "DSTARS-000001", IsVerified: true}, nil
}

type stubAdminService struct{}

func (stubAdminService) GetMember(ctx context.Context, id int64) (*models.Member, error) {
	return &models.Member{ID: id}, nil
}

func (stubAdminService) ListMembers(ctx context.Context, search string, page pagination.Params) (*members.MemberPage, error) {
	return &members.MemberPage{}, nil
}

func (stubAdminService) UpdateMember(ctx context.Context, id int64, input members.UpdateMemberInput) (*models.Member, error) {
	return &models.Member{ID: id}, nil
}

func (stubAdminService) DeleteMember(ctx context.Context, id int64) error {
	return nil
}

type stubPlansService struct{}

func (stubPlansService) CreatePlan(ctx context.Context, input plans.CreatePlanInput) (*models.MembershipPlan, error) {
	return &models.MembershipPlan{Name: input.Name}, nil
}

func (stubPlansService) UpdatePlan(ctx context.Context, id int64, input plans.UpdatePlanInput) (*models.MembershipPlan, error) {
	return &models.MembershipPlan{ID: id}, nil
}

func (stubPlansService) DeletePlan(ctx context.Context, id int64) error {
	return nil
}

func (stubPlansService) GetPlan(ctx context.Context, id int64) (*models.MembershipPlan, error) {
	return &models.MembershipPlan{ID: id}, nil
}

func (stubPlansService) GetPlanBySlug(ctx context.Context, slugValue string) (*models.MembershipPlan, error) {
	return &models.MembershipPlan{Slug: slugValue}, nil
}

func (stubPlansService) ListPlans(ctx context.Context, includeInactive bool) ([]models.MembershipPlan, error) {
	return []models.MembershipPlan{}, nil
}

type stubAccountsService struct{}

func (stubAccountsService) CreateAccount(ctx context.Context, input accounts.CreateAccountInput) (*models.Account, error) {
	return &models.Account{Email: input.Email, FullName: input.FullName}, nil
}

func (stubAccountsService) VerifyAccount(ctx context.Context, email, code string) (*models.Account, error) {
	return &models.Account{Email: email, IsVerified: true}, nil
}

func (stubAccountsService) ResendAccountCode(ctx context.Context, email, cooldownKey string) error {
	return nil
}

func (stubAccountsService) Login(ctx context.Context, email, password string) (*accounts.TokenPair, error) {
	return &accounts.TokenPair{AccessToken: "a", RefreshToken: "r"}, nil
}

func (stubAccountsService) Refresh(ctx context.Context, accessToken, refreshToken string) (*accounts.TokenPair, error) {
	return &accounts.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, nil
}

func (stubAccountsService) Logout(ctx context.Context, accessID string) error {
	return nil
}

type stubInvoiceService struct{}

func (stubInvoiceService) CreateForMember(ctx context.Context, memberID int64) (*models.Invoice, error) {
	return &models.Invoice{MemberID: memberID, Status: enums.InvoiceStatusPending}, nil
}

func (stubInvoiceService) LatestForMember(ctx context.Context, memberID int64) (*models.Invoice, error) {
	return &models.Invoice{MemberID: memberID}, nil
}

func (stubInvoiceService) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	return &models.Invoice{ID: id}, nil
}

func (stubInvoiceService) CancelInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	return &models.Invoice{ID: id, Status: enums.InvoiceStatusCancelled}, nil
}

func (stubInvoiceService) ListInvoices(ctx context.Context, filter billing.InvoiceFilter, page pagination.Params) (*billing.InvoicePage, error) {
	return &billing.InvoicePage{}, nil
}

type stubPaymentService struct{}

func (stubPaymentService) RecordPayment(ctx context.Context, input billing.RecordPaymentInput) (*models.Payment, error) {
	return &models.Payment{InvoiceID: input.InvoiceID, Method: input.Method}, nil
}

func (stubPaymentService) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	return &models.Payment{ID: id}, nil
}

func (stubPaymentService) ListPayments(ctx context.Context, filter billing.PaymentFilter, page pagination.Params) (*billing.PaymentPage, error) {
	return &billing.PaymentPage{}, nil
}

type stubSummaryService struct{}

func (stubSummaryService) Summary(ctx context.Context) (*billing.Summary, error) {
	return &billing.Summary{}, nil
}

func testConfig(env string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: env, Port: "0"},
		JWT: config.JWTConfig{
			Secret:                 "test-signing-secret",
			Issuer:                 "dstars-test",
			ExpirationMinutes:      15,
			RefreshTokenTTLMinutes: 1440,
		},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(Dependencies{
		Config:      cfg,
		Logger:      logg,
		Sessions:    stubSessionChecker{},
		Members:     stubMembersService{},
		Cards:       stubCardService{},
		MemberAdmin: stubAdminService{},
		Plans:       stubPlansService{},
		Accounts:    stubAccountsService{},
		Invoices:    stubInvoiceService{},
		Payments:    stubPaymentService{},
		Summary:     stubSummaryService{},
	})
}

func buildToken(t *testing.T, cfg *config.Config) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		AccountID: 1,
		Email:     "admin@dstars.example.com",
		JTI:       "jti-router-test",
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(testConfig("test"))
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPublicPlansRoute(t *testing.T) {
	router := newTestRouter(testConfig("test"))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestRegisterRejectsBadJSON(t *testing.T) {
	router := newTestRouter(testConfig("test"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/members/register", strings.NewReader("{"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestRegisterAcceptsGoodJSON(t *testing.T) {
	router := newTestRouter(testConfig("test"))
	body := `{"full_name":"Maria Santos","email":"maria@example.com","plan_slug":"monthly"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/members/register", strings.NewReader(body))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
}

func TestAdminGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig("test"))
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/members/", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestAdminGroupAcceptsJWT(t *testing.T) {
	cfg := testConfig("test")
	router := newTestRouter(cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/summary", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with token got %d", resp.Code)
	}
}

func TestAdminRegisterHiddenInProd(t *testing.T) {
	router := newTestRouter(testConfig("production"))
	body := `{"email":"staff@dstars.example.com","password":"longenough","full_name":"Staff"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/auth/register", strings.NewReader(body))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code == http.StatusCreated {
		t.Fatalf("register must not be mounted in prod, got %d", resp.Code)
	}

	devRouter := newTestRouter(testConfig("dev"))
	req = httptest.NewRequest(http.MethodPost, "/api/admin/v1/auth/register", strings.NewReader(body))
	resp = httptest.NewRecorder()
	devRouter.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 in dev got %d", resp.Code)
	}
}

func TestMemberCardRoute(t *testing.T) {
	router := newTestRouter(testConfig("test"))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/members/42/virtual-card?token=abc", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("expected pdf content type got %q", got)
	}
}
