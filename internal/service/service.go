// Package service реализует бизнес-логику онбординга: инициацию оплаты,
// ручную проверку платежа и приём подписанного соглашения.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/makebankguru/onboarding-system/internal/gateway"
	"github.com/makebankguru/onboarding-system/internal/model"
	"github.com/makebankguru/onboarding-system/internal/reconcile"
	"github.com/makebankguru/onboarding-system/internal/repository"
	"github.com/makebankguru/onboarding-system/internal/validation"
)

// ErrNotPaid возвращается при попытке действия, требующего подтверждённой оплаты.
var (
	ErrNotPaid = errors.New("payment not confirmed")
	// ErrInvalidFormat возвращается, если документ соглашения не является PDF.
	ErrInvalidFormat = errors.New("agreement document must be a PDF")
	// ErrAlreadySigned возвращается при повторной загрузке уже принятого соглашения.
	ErrAlreadySigned = errors.New("agreement already signed")
	// ErrNotSigned возвращается при запросе ссылок доступа до подписания соглашения.
	ErrNotSigned = errors.New("agreement not signed")
)

// FlowState описывает положение пользователя в онбординге.
type FlowState string

const (
	FlowStateNoRequest FlowState = "no_request"
	FlowStatePending   FlowState = "pending"
	FlowStatePaid      FlowState = "paid"
	FlowStateSigned    FlowState = "signed"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	UpsertPending(ctx context.Context, userID int64, username, reference string, amount int64) error
	MarkAgreementSigned(ctx context.Context, userID int64, documentRef string) (bool, error)
	IsPaid(ctx context.Context, userID int64) (bool, error)
	GetByUserID(ctx context.Context, userID int64) (*model.Account, error)
	GetByReference(ctx context.Context, reference string) (*model.Account, error)
	GetPendingByUserID(ctx context.Context, userID int64) (*model.PendingRequest, error)
}

// Resolver описывает контракт резолвера платёжных уведомлений.
type Resolver interface {
	Resolve(ctx context.Context, n model.Notification, payload []byte) (reconcile.Outcome, error)
}

// Links содержит внешние ссылки, выдаваемые сервисом.
type Links struct {
	Payment string
	Trader  string
	Group   string
}

// Service содержит бизнес-логику сервиса онбординга.
type Service struct {
	repo          Repository
	gatewayClient *gateway.Client
	resolver      Resolver
	logger        *zap.Logger
	amount        int64 // в кобо
	links         Links
}

// NewService создаёт сервис с указанным репозиторием, клиентом шлюза и резолвером.
func NewService(repo Repository, gatewayClient *gateway.Client, resolver Resolver, amount int64, links Links, logger *zap.Logger) *Service {
	return &Service{
		repo:          repo,
		gatewayClient: gatewayClient,
		resolver:      resolver,
		logger:        logger,
		amount:        amount,
		links:         links,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// StartFlow инициирует оплату: генерирует референс, создаёт заявку и возвращает
// референс со ссылкой на платёжную страницу. Повторная инициация перезаписывает
// прежнюю заявку пользователя.
func (s *Service) StartFlow(ctx context.Context, userID int64, username string) (string, string, error) {
	reference := fmt.Sprintf("MBG-%d-%d", userID, time.Now().Unix())

	if err := s.repo.UpsertPending(ctx, userID, username, reference, s.amount); err != nil {
		return "", "", fmt.Errorf("upsert pending: %w", err)
	}

	s.logger.Info("flow started",
		zap.Int64("userID", userID),
		zap.String("reference", reference),
	)

	return reference, s.links.Payment, nil
}

// VerifyReference выполняет ручную проверку платежа: запрашивает состояние у шлюза
// и проводит результат через тот же резолвер, что и webhook. Возвращает признак
// успешного зачисления. Шлюз опрашивается вне транзакций хранилища.
func (s *Service) VerifyReference(ctx context.Context, userID int64, reference string) (bool, error) {
	// Уже подтверждённый референс не требует повторного похода в шлюз.
	if acc, err := s.repo.GetByReference(ctx, reference); err == nil {
		return acc.Status == model.PaymentStatusPaid, nil
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return false, fmt.Errorf("get account by reference: %w", err)
	}

	charge, err := s.gatewayClient.GetCharge(ctx, reference)
	if err != nil {
		if errors.Is(err, gateway.ErrChargeNotFound) {
			s.logger.Info("charge not found on gateway",
				zap.Int64("userID", userID),
				zap.String("reference", reference),
			)
			return false, nil
		}
		return false, fmt.Errorf("get charge: %w", err)
	}

	event := "charge." + charge.Status
	if charge.Status == gateway.ChargeStatusSuccess {
		event = reconcile.EventChargeSuccess
	}

	n := model.Notification{
		Event: event,
		Data: model.NotificationData{
			Reference: reference,
			Amount:    charge.AmountPaid,
			Currency:  charge.Currency,
		},
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return false, fmt.Errorf("marshal notification: %w", err)
	}

	outcome, err := s.resolver.Resolve(ctx, n, payload)
	if err != nil {
		return false, err
	}

	return outcome == reconcile.OutcomeOK, nil
}

// CanUploadAgreement возвращает true, если оплата пользователя подтверждена.
func (s *Service) CanUploadAgreement(ctx context.Context, userID int64) (bool, error) {
	return s.repo.IsPaid(ctx, userID)
}

// AcceptAgreement принимает подписанное соглашение. Загрузка до оплаты отклоняется
// с ErrNotPaid, повторная загрузка — с ErrAlreadySigned (первый принятый документ
// остаётся в силе), не-PDF — с ErrInvalidFormat.
func (s *Service) AcceptAgreement(ctx context.Context, userID int64, documentRef string) error {
	account, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrNotPaid
		}
		return fmt.Errorf("get account: %w", err)
	}

	if account.Status != model.PaymentStatusPaid {
		return ErrNotPaid
	}

	if account.AgreementSigned {
		return ErrAlreadySigned
	}

	if !validation.IsPDFDocument(documentRef) {
		return ErrInvalidFormat
	}

	signed, err := s.repo.MarkAgreementSigned(ctx, userID, documentRef)
	if err != nil {
		return fmt.Errorf("mark agreement signed: %w", err)
	}
	if !signed {
		// Аккаунт исчез между проверкой и записью — восходящая логика нарушена.
		return ErrNotPaid
	}

	s.logger.Info("agreement accepted",
		zap.Int64("userID", userID),
		zap.String("reference", account.Reference),
		zap.String("document", documentRef),
	)

	return nil
}

// AccessLinks возвращает ссылки на торговый аккаунт и закрытое сообщество.
// Доступ выдаётся только после подтверждённой оплаты и подписанного соглашения.
func (s *Service) AccessLinks(ctx context.Context, userID int64) (model.AccessLinks, error) {
	account, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return model.AccessLinks{}, ErrNotPaid
		}
		return model.AccessLinks{}, fmt.Errorf("get account: %w", err)
	}

	if account.Status != model.PaymentStatusPaid {
		return model.AccessLinks{}, ErrNotPaid
	}

	if !account.AgreementSigned {
		return model.AccessLinks{}, ErrNotSigned
	}

	return model.AccessLinks{
		TraderLink: s.links.Trader,
		GroupLink:  s.links.Group,
	}, nil
}

// Status возвращает текущее состояние пользователя в онбординге.
func (s *Service) Status(ctx context.Context, userID int64) (FlowState, error) {
	account, err := s.repo.GetByUserID(ctx, userID)
	if err == nil {
		if account.AgreementSigned {
			return FlowStateSigned, nil
		}
		if account.Status == model.PaymentStatusPaid {
			return FlowStatePaid, nil
		}
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return "", fmt.Errorf("get account: %w", err)
	}

	_, err = s.repo.GetPendingByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNoPendingRequests) {
			return FlowStateNoRequest, nil
		}
		return "", fmt.Errorf("get pending: %w", err)
	}

	return FlowStatePending, nil
}
