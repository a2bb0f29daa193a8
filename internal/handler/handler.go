// Package handler содержит HTTP-обработчики API сервиса онбординга.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/makebankguru/onboarding-system/internal/middleware"
	"github.com/makebankguru/onboarding-system/internal/model"
	"github.com/makebankguru/onboarding-system/internal/reconcile"
	"github.com/makebankguru/onboarding-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	StartFlow(ctx context.Context, userID int64, username string) (string, string, error)
	VerifyReference(ctx context.Context, userID int64, reference string) (bool, error)
	AcceptAgreement(ctx context.Context, userID int64, documentRef string) error
	AccessLinks(ctx context.Context, userID int64) (model.AccessLinks, error)
	Status(ctx context.Context, userID int64) (service.FlowState, error)
}

// Resolver определяет контракт резолвера платёжных уведомлений.
type Resolver interface {
	Resolve(ctx context.Context, n model.Notification, payload []byte) (reconcile.Outcome, error)
}

// Handler реализует HTTP-обработчики API сервиса онбординга.
type Handler struct {
	service   Service
	resolver  Resolver
	logger    *zap.Logger
	signature *middleware.SignatureMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, resolver Resolver, logger *zap.Logger, signature *middleware.SignatureMiddleware) *Handler {
	return &Handler{
		service:   s,
		resolver:  resolver,
		logger:    logger,
		signature: signature,
	}
}

// Webhook принимает уведомление платёжного шлюза и передаёт его резолверу.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var n model.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	outcome, err := h.resolver.Resolve(r.Context(), n, payload)
	if err != nil {
		h.logger.Error("resolve notification error", zap.Error(err), zap.String("reference", n.Data.Reference))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	switch outcome {
	case reconcile.OutcomeInvalidAmount:
		http.Error(w, string(outcome), http.StatusBadRequest)
	case reconcile.OutcomeNotFound:
		http.Error(w, string(outcome), http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

type startFlowRequest struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type startFlowResponse struct {
	Reference   string `json:"reference"`
	PaymentLink string `json:"payment_link"`
}

// StartFlow инициирует оплату для пользователя.
func (h *Handler) StartFlow(w http.ResponseWriter, r *http.Request) {
	var req startFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.UserID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	reference, paymentLink, err := h.service.StartFlow(r.Context(), req.UserID, req.Username)
	if err != nil {
		h.logger.Error("start flow error", zap.Error(err), zap.Int64("userID", req.UserID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(startFlowResponse{
		Reference:   reference,
		PaymentLink: paymentLink,
	}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type verifyRequest struct {
	UserID    int64  `json:"user_id"`
	Reference string `json:"reference"`
}

// Verify выполняет ручную проверку платежа по референсу.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.UserID <= 0 || req.Reference == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	confirmed, err := h.service.VerifyReference(r.Context(), req.UserID, req.Reference)
	if err != nil {
		h.logger.Error("verify reference error", zap.Error(err),
			zap.Int64("userID", req.UserID), zap.String("reference", req.Reference))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if !confirmed {
		http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type agreementRequest struct {
	UserID   int64  `json:"user_id"`
	Document string `json:"document"`
}

// UploadAgreement принимает ссылку на сохранённый документ соглашения.
func (h *Handler) UploadAgreement(w http.ResponseWriter, r *http.Request) {
	var req agreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.UserID <= 0 || req.Document == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.AcceptAgreement(r.Context(), req.UserID, req.Document)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotPaid):
			http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
		case errors.Is(err, service.ErrInvalidFormat):
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		case errors.Is(err, service.ErrAlreadySigned):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("upload agreement error", zap.Error(err), zap.Int64("userID", req.UserID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type statusResponse struct {
	Status string `json:"status"`
}

// Status возвращает состояние пользователя в онбординге.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromURL(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	state, err := h.service.Status(r.Context(), userID)
	if err != nil {
		h.logger.Error("get status error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(statusResponse{Status: string(state)}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// Links возвращает ссылки доступа для пользователя с подписанным соглашением.
func (h *Handler) Links(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromURL(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	links, err := h.service.AccessLinks(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotPaid):
			http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
		case errors.Is(err, service.ErrNotSigned):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			h.logger.Error("get links error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(links); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}
