// Package bot преобразует события транспорта сообщений в ответные реплики.
// Доставкой сообщений занимается внешний адаптер платформы; здесь только
// диспозиции: какой текст и какую ссылку вернуть пользователю.
package bot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/makebankguru/onboarding-system/internal/model"
	"github.com/makebankguru/onboarding-system/internal/service"
	"github.com/makebankguru/onboarding-system/internal/validation"
)

// EventKind описывает тип входящего действия пользователя.
type EventKind string

const (
	// EventStart — первое обращение пользователя к боту.
	EventStart EventKind = "start"
	// EventConfirm — запрос платёжных инструкций.
	EventConfirm EventKind = "confirm"
	// EventVerify — ручная проверка оплаты, payload содержит референс.
	EventVerify EventKind = "verify"
	// EventDocument — загрузка соглашения, payload содержит путь к сохранённому файлу.
	EventDocument EventKind = "document"
)

// Event представляет входящее действие пользователя.
type Event struct {
	UserID   int64
	Username string
	Kind     EventKind
	Payload  string
}

// Reply представляет диспозицию: сообщение для отправки пользователю.
type Reply struct {
	Text string
	Link string
}

// Service описывает контракт бизнес-логики, используемой диспетчером.
type Service interface {
	StartFlow(ctx context.Context, userID int64, username string) (string, string, error)
	VerifyReference(ctx context.Context, userID int64, reference string) (bool, error)
	AcceptAgreement(ctx context.Context, userID int64, documentRef string) error
	AccessLinks(ctx context.Context, userID int64) (model.AccessLinks, error)
}

// Dispatcher сопоставляет события пользователя с действиями сервиса онбординга.
type Dispatcher struct {
	service Service
	logger  *zap.Logger
}

// NewDispatcher создаёт диспетчер событий транспорта сообщений.
func NewDispatcher(s Service, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		service: s,
		logger:  logger,
	}
}

// Handle обрабатывает событие и возвращает реплику для пользователя.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) (Reply, error) {
	switch ev.Kind {
	case EventStart:
		return Reply{
			Text: "Welcome to MakeBankGuru! This bot confirms your payment and gives you access to our premium flipping service.",
		}, nil

	case EventConfirm:
		reference, paymentLink, err := d.service.StartFlow(ctx, ev.UserID, ev.Username)
		if err != nil {
			return Reply{}, fmt.Errorf("start flow: %w", err)
		}
		return Reply{
			Text: fmt.Sprintf("Pay the access fee and keep your reference: %s. Once paid, send it back with the verify command.", reference),
			Link: paymentLink,
		}, nil

	case EventVerify:
		if !validation.IsValidReference(ev.Payload) {
			return Reply{Text: "That does not look like a payment reference. It should be in the form MBG-<id>-<number>."}, nil
		}
		confirmed, err := d.service.VerifyReference(ctx, ev.UserID, ev.Payload)
		if err != nil {
			return Reply{}, fmt.Errorf("verify reference: %w", err)
		}
		if !confirmed {
			return Reply{Text: "We could not confirm this payment yet. Please check the reference or try again in a few minutes."}, nil
		}
		return Reply{Text: "Payment confirmed! Please upload your signed agreement as a PDF document."}, nil

	case EventDocument:
		return d.handleDocument(ctx, ev)

	default:
		d.logger.Debug("unknown transport event", zap.String("kind", string(ev.Kind)), zap.Int64("userID", ev.UserID))
		return Reply{Text: "Sorry, I did not understand that. Send /start to begin."}, nil
	}
}

func (d *Dispatcher) handleDocument(ctx context.Context, ev Event) (Reply, error) {
	err := d.service.AcceptAgreement(ctx, ev.UserID, ev.Payload)
	switch {
	case errors.Is(err, service.ErrNotPaid):
		return Reply{Text: "Please complete your payment before uploading the agreement."}, nil
	case errors.Is(err, service.ErrInvalidFormat):
		return Reply{Text: "Please send the signed agreement as a PDF file."}, nil
	case errors.Is(err, service.ErrAlreadySigned):
		return Reply{Text: "We already received your signed agreement."}, nil
	case err != nil:
		return Reply{}, fmt.Errorf("accept agreement: %w", err)
	}

	links, err := d.service.AccessLinks(ctx, ev.UserID)
	if err != nil {
		return Reply{}, fmt.Errorf("access links: %w", err)
	}

	return Reply{
		Text: fmt.Sprintf("Agreement received! Open your trading account here: %s and join the private community: %s", links.TraderLink, links.GroupLink),
	}, nil
}
