package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/makebankguru/onboarding-system/internal/middleware"
	"github.com/makebankguru/onboarding-system/internal/model"
	"github.com/makebankguru/onboarding-system/internal/reconcile"
	"github.com/makebankguru/onboarding-system/internal/service"
)

type stubService struct {
	startReference string
	startLink      string
	startErr       error

	verifyConfirmed bool
	verifyErr       error

	agreementErr error

	links    model.AccessLinks
	linksErr error

	state    service.FlowState
	stateErr error
}

func (s *stubService) StartFlow(ctx context.Context, userID int64, username string) (string, string, error) {
	return s.startReference, s.startLink, s.startErr
}

func (s *stubService) VerifyReference(ctx context.Context, userID int64, reference string) (bool, error) {
	return s.verifyConfirmed, s.verifyErr
}

func (s *stubService) AcceptAgreement(ctx context.Context, userID int64, documentRef string) error {
	return s.agreementErr
}

func (s *stubService) AccessLinks(ctx context.Context, userID int64) (model.AccessLinks, error) {
	return s.links, s.linksErr
}

func (s *stubService) Status(ctx context.Context, userID int64) (service.FlowState, error) {
	return s.state, s.stateErr
}

type stubResolver struct {
	outcome reconcile.Outcome
	err     error

	lastNotification model.Notification
}

func (r *stubResolver) Resolve(ctx context.Context, n model.Notification, payload []byte) (reconcile.Outcome, error) {
	r.lastNotification = n
	return r.outcome, r.err
}

func newTestHandler(t *testing.T, svc Service, resolver Resolver, webhookSecret string) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	return NewHandler(svc, resolver, logger, middleware.NewSignatureMiddleware(webhookSecret))
}

func TestWebhook_OutcomeMapping(t *testing.T) {
	tests := []struct {
		name    string
		outcome reconcile.Outcome
		status  int
	}{
		{
			name:    "reconciled",
			outcome: reconcile.OutcomeOK,
			status:  http.StatusOK,
		},
		{
			name:    "ignored event",
			outcome: reconcile.OutcomeIgnored,
			status:  http.StatusOK,
		},
		{
			name:    "invalid amount",
			outcome: reconcile.OutcomeInvalidAmount,
			status:  http.StatusBadRequest,
		},
		{
			name:    "reference not found",
			outcome: reconcile.OutcomeNotFound,
			status:  http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &stubResolver{outcome: tt.outcome}
			h := newTestHandler(t, &stubService{}, resolver, "")

			body := []byte(`{"event":"charge.success","data":{"reference":"MBG-1001-1000","amount":20000,"currency":"NGN"}}`)
			req := httptest.NewRequest(http.MethodPost, "/api/webhook/korapay", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			h.Webhook(rec, req)

			res := rec.Result()
			if res.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.status)
			}
			if resolver.lastNotification.Data.Reference != "MBG-1001-1000" {
				t.Fatalf("notification not passed to resolver: %+v", resolver.lastNotification)
			}
		})
	}
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	h := newTestHandler(t, &stubService{}, &stubResolver{outcome: reconcile.OutcomeOK}, "whsec")

	router := h.SetupRouter()

	body := []byte(`{"event":"charge.success","data":{"reference":"MBG-1001-1000","amount":20000,"currency":"NGN"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/korapay", bytes.NewReader(body))
	req.Header.Set(middleware.SignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestWebhook_AcceptsValidSignature(t *testing.T) {
	signer := middleware.NewSignatureMiddleware("whsec")
	h := newTestHandler(t, &stubService{}, &stubResolver{outcome: reconcile.OutcomeOK}, "whsec")

	router := h.SetupRouter()

	body := []byte(`{"event":"charge.success","data":{"reference":"MBG-1001-1000","amount":20000,"currency":"NGN"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/korapay", bytes.NewReader(body))
	req.Header.Set(middleware.SignatureHeader, signer.Sign(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusOK)
	}
}

func TestStartFlow_Success(t *testing.T) {
	svc := &stubService{
		startReference: "MBG-1001-1000",
		startLink:      "https://checkout.korapay.com/mbg",
	}
	h := newTestHandler(t, svc, &stubResolver{}, "")

	body, _ := json.Marshal(startFlowRequest{UserID: 1001, Username: "guru"})
	req := httptest.NewRequest(http.MethodPost, "/api/flow/start", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.StartFlow(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp startFlowResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reference != "MBG-1001-1000" || resp.PaymentLink == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestStartFlow_RejectsInvalidUser(t *testing.T) {
	h := newTestHandler(t, &stubService{}, &stubResolver{}, "")

	body, _ := json.Marshal(startFlowRequest{UserID: 0})
	req := httptest.NewRequest(http.MethodPost, "/api/flow/start", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.StartFlow(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestVerify_PaymentRequiredWhenUnconfirmed(t *testing.T) {
	h := newTestHandler(t, &stubService{verifyConfirmed: false}, &stubResolver{}, "")

	body, _ := json.Marshal(verifyRequest{UserID: 1001, Reference: "MBG-1001-1000"})
	req := httptest.NewRequest(http.MethodPost, "/api/flow/verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Verify(rec, req)

	if rec.Result().StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusPaymentRequired)
	}
}

func TestUploadAgreement_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{
			name:   "not paid",
			err:    service.ErrNotPaid,
			status: http.StatusPaymentRequired,
		},
		{
			name:   "invalid format",
			err:    service.ErrInvalidFormat,
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "already signed",
			err:    service.ErrAlreadySigned,
			status: http.StatusConflict,
		},
		{
			name:   "accepted",
			err:    nil,
			status: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{agreementErr: tt.err}, &stubResolver{}, "")

			body, _ := json.Marshal(agreementRequest{UserID: 1001, Document: "agreement.pdf"})
			req := httptest.NewRequest(http.MethodPost, "/api/agreement", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			h.UploadAgreement(rec, req)

			if rec.Result().StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", rec.Result().StatusCode, tt.status)
			}
		})
	}
}

func TestStatus_ViaRouter(t *testing.T) {
	h := newTestHandler(t, &stubService{state: service.FlowStatePaid}, &stubResolver{}, "")

	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/status/1001", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp statusResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(service.FlowStatePaid) {
		t.Fatalf("status = %q, want %q", resp.Status, service.FlowStatePaid)
	}
}

func TestLinks_ForbiddenBeforeSigning(t *testing.T) {
	h := newTestHandler(t, &stubService{linksErr: service.ErrNotSigned}, &stubResolver{}, "")

	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/links/1001", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusForbidden)
	}
}
