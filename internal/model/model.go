// Package model содержит доменные сущности сервиса онбординга.
package model

import "time"

// PaymentStatus описывает статус оплаты заявки.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// PendingRequest представляет инициированную, но ещё не подтверждённую оплату.
// На одного пользователя существует не более одной актуальной заявки:
// повторная инициация перезаписывает прежнюю и сбрасывает референс.
type PendingRequest struct {
	UserID    int64
	Username  string
	Reference string
	Amount    int64 // в кобо
	Status    PaymentStatus
	CreatedAt time.Time
}

// Account представляет пользователя с подтверждённой оплатой и отслеживает
// подписание соглашения. Статус оплаты меняется только вперёд: pending → paid.
type Account struct {
	UserID            int64
	Username          string
	Reference         string
	ExternalReference string
	Status            PaymentStatus
	ConfirmedAt       time.Time
	AgreementSigned   bool
	AgreementSignedAt *time.Time
	AgreementDocument string
}

// NotificationData содержит платёжные поля уведомления шлюза.
// Сумма приходит в найрах и конвертируется в кобо на границе системы.
type NotificationData struct {
	Reference string  `json:"reference"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
}

// Notification описывает входящее уведомление платёжного шлюза.
type Notification struct {
	Event string           `json:"event"`
	Data  NotificationData `json:"data"`
}

// Anomaly описывает уведомление, не прошедшее валидацию суммы или валюты.
// Сырой payload сохраняется для ручного разбора оператором.
type Anomaly struct {
	ID         string
	Reason     string
	Reference  string
	Amount     int64 // в кобо
	Currency   string
	Payload    []byte
	ReceivedAt time.Time
}

// AccessLinks содержит ссылки, выдаваемые после подписания соглашения.
type AccessLinks struct {
	TraderLink string `json:"trader_link"`
	GroupLink  string `json:"group_link"`
}
