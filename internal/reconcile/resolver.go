// Package reconcile сопоставляет входящие платёжные уведомления с заявками на оплату.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/makebankguru/onboarding-system/internal/model"
	"github.com/makebankguru/onboarding-system/internal/repository"
)

// EventChargeSuccess — единственный тип события, приводящий к зачислению.
const EventChargeSuccess = "charge.success"

// Outcome описывает результат обработки уведомления.
type Outcome string

const (
	// OutcomeIgnored — событие постороннего типа, состояние не менялось.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeInvalidAmount — сумма или валюта не прошли валидацию, записана аномалия.
	OutcomeInvalidAmount Outcome = "invalid amount"
	// OutcomeNotFound — подходящая заявка не найдена, состояние не менялось.
	OutcomeNotFound Outcome = "reference not found"
	// OutcomeOK — платёж сопоставлен и зачислен.
	OutcomeOK Outcome = "ok"
)

// Store описывает контракт хранилища, используемый резолвером.
type Store interface {
	PromoteToVerified(ctx context.Context, reference, externalReference string) (bool, error)
	MostRecentPending(ctx context.Context) (*model.PendingRequest, error)
	RecordAnomaly(ctx context.Context, a model.Anomaly) error
}

// Resolver решает, какому пользователю зачислить входящее подтверждение оплаты.
type Resolver struct {
	store    Store
	logger   *zap.Logger
	amount   int64 // ожидаемая сумма в кобо
	currency string
	fallback bool
}

// NewResolver создаёт резолвер с ожидаемой суммой (в кобо) и валютой платежа.
// fallback включает эвристическое сопоставление по самой свежей заявке;
// по умолчанию в продуктиве действует только точное совпадение референса.
func NewResolver(store Store, logger *zap.Logger, amount int64, currency string, fallback bool) *Resolver {
	return &Resolver{
		store:    store,
		logger:   logger,
		amount:   amount,
		currency: currency,
		fallback: fallback,
	}
}

// Resolve обрабатывает уведомление шлюза: отбрасывает посторонние события,
// валидирует сумму и валюту, находит заявку по референсу и зачисляет платёж.
// payload — сырое тело уведомления, сохраняемое при записи аномалии.
func (r *Resolver) Resolve(ctx context.Context, n model.Notification, payload []byte) (Outcome, error) {
	if n.Event != EventChargeSuccess {
		r.logger.Debug("ignoring gateway event",
			zap.String("event", n.Event),
			zap.String("reference", n.Data.Reference),
		)
		return OutcomeIgnored, nil
	}

	amountKobo := int64(math.Round(n.Data.Amount * 100))

	if !strings.EqualFold(n.Data.Currency, r.currency) || amountKobo < r.amount {
		anomaly := model.Anomaly{
			ID:         uuid.NewString(),
			Reason:     fmt.Sprintf("expected at least %d %s, got %d %s", r.amount, r.currency, amountKobo, n.Data.Currency),
			Reference:  n.Data.Reference,
			Amount:     amountKobo,
			Currency:   n.Data.Currency,
			Payload:    payload,
			ReceivedAt: time.Now(),
		}
		if err := r.store.RecordAnomaly(ctx, anomaly); err != nil {
			return OutcomeInvalidAmount, fmt.Errorf("record anomaly: %w", err)
		}

		r.logger.Warn("payment failed validation",
			zap.String("reference", n.Data.Reference),
			zap.Int64("amount", amountKobo),
			zap.String("currency", n.Data.Currency),
			zap.String("anomalyID", anomaly.ID),
			zap.String("outcome", string(OutcomeInvalidAmount)),
		)
		return OutcomeInvalidAmount, nil
	}

	found, err := r.store.PromoteToVerified(ctx, n.Data.Reference, n.Data.Reference)
	if err != nil {
		return OutcomeNotFound, fmt.Errorf("promote by reference: %w", err)
	}

	if !found && r.fallback {
		found, err = r.resolveByMostRecent(ctx, n.Data.Reference)
		if err != nil {
			return OutcomeNotFound, err
		}
	}

	if !found {
		r.logger.Info("no matching pending request",
			zap.String("reference", n.Data.Reference),
			zap.String("outcome", string(OutcomeNotFound)),
		)
		return OutcomeNotFound, nil
	}

	r.logger.Info("payment reconciled",
		zap.String("reference", n.Data.Reference),
		zap.Int64("amount", amountKobo),
		zap.String("outcome", string(OutcomeOK)),
	)
	return OutcomeOK, nil
}

// resolveByMostRecent зачисляет платёж самой свежей заявке во всей системе.
// Референс шлюза не всегда совпадает со сгенерированным при инициации, поэтому
// эвристика существует, но она не различает нескольких одновременных заявок
// и всегда оставляет след в журнале.
func (r *Resolver) resolveByMostRecent(ctx context.Context, reference string) (bool, error) {
	p, err := r.store.MostRecentPending(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNoPendingRequests) {
			return false, nil
		}
		return false, fmt.Errorf("most recent pending: %w", err)
	}

	r.logger.Warn("falling back to most recent pending request",
		zap.String("reference", reference),
		zap.String("pendingReference", p.Reference),
		zap.Int64("userID", p.UserID),
	)

	found, err := r.store.PromoteToVerified(ctx, p.Reference, reference)
	if err != nil {
		return false, fmt.Errorf("promote most recent pending: %w", err)
	}
	return found, nil
}
