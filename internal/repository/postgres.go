// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/makebankguru/onboarding-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrAccountNotFound возвращается, если подтверждённый аккаунт не найден.
var (
	ErrAccountNotFound = errors.New("verified account not found")
	// ErrNoPendingRequests возвращается, если нет ни одной заявки в статусе pending.
	ErrNoPendingRequests = errors.New("no pending requests")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Повторяем только конфликты сериализации, дедлоки и сетевые обрывы.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// UpsertPending создаёт заявку на оплату или перезаписывает прежнюю заявку пользователя.
// Операция идемпотентна: повторный вызов сбрасывает референс и статус заявки.
func (r *PostgresRepository) UpsertPending(ctx context.Context, userID int64, username, reference string, amount int64) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO pending_requests (user_id, username, reference, amount, status)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (user_id) DO UPDATE
			 SET username = EXCLUDED.username,
			     reference = EXCLUDED.reference,
			     amount = EXCLUDED.amount,
			     status = EXCLUDED.status,
			     created_at = now()`,
			userID, username, reference, amount, string(model.PaymentStatusPending),
		)
		if err != nil {
			return fmt.Errorf("upsert pending request: %w", err)
		}
		return nil
	})
}

// PromoteToVerified находит заявку по референсу (сначала внешнему, затем внутреннему),
// помечает её оплаченной и создаёт либо обновляет подтверждённый аккаунт в одной
// транзакции. Возвращает false, если подходящей заявки нет; состояние при этом не меняется.
// Повторный вызов с тем же референсом заново применяет то же состояние и не ошибается.
func (r *PostgresRepository) PromoteToVerified(ctx context.Context, reference, externalReference string) (bool, error) {
	candidates := make([]string, 0, 2)
	if externalReference != "" {
		candidates = append(candidates, externalReference)
	}
	if reference != "" && reference != externalReference {
		candidates = append(candidates, reference)
	}

	var found bool
	err := r.withRetry(ctx, func() error {
		found = false

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var (
			userID   int64
			username string
			pendRef  string
			matched  bool
		)
		for _, ref := range candidates {
			err := tx.QueryRow(ctx,
				`SELECT user_id, username, reference FROM pending_requests WHERE reference = $1`,
				ref,
			).Scan(&userID, &username, &pendRef)
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("select pending request: %w", err)
			}
			matched = true
			break
		}
		if !matched {
			return nil
		}

		if _, err := tx.Exec(ctx,
			`UPDATE pending_requests SET status = $2 WHERE user_id = $1`,
			userID, string(model.PaymentStatusPaid),
		); err != nil {
			return fmt.Errorf("mark pending paid: %w", err)
		}

		extRef := externalReference
		if extRef == "" {
			extRef = pendRef
		}

		// confirmed_at не перезаписывается при повторном подтверждении того же платежа.
		if _, err := tx.Exec(ctx,
			`INSERT INTO verified_accounts (user_id, username, reference, external_reference, status)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (user_id) DO UPDATE
			 SET username = EXCLUDED.username,
			     reference = EXCLUDED.reference,
			     external_reference = EXCLUDED.external_reference,
			     status = EXCLUDED.status`,
			userID, username, pendRef, extRef, string(model.PaymentStatusPaid),
		); err != nil {
			return fmt.Errorf("upsert verified account: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		found = true
		return nil
	})

	return found, err
}

// MarkAgreementSigned устанавливает флаг и время подписания соглашения.
// Возвращает false, если оплаченный аккаунт для пользователя не существует.
func (r *PostgresRepository) MarkAgreementSigned(ctx context.Context, userID int64, documentRef string) (bool, error) {
	var signed bool
	err := r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE verified_accounts
			 SET agreement_signed = TRUE,
			     agreement_signed_at = now(),
			     agreement_document = $2
			 WHERE user_id = $1 AND status = $3`,
			userID, documentRef, string(model.PaymentStatusPaid),
		)
		if err != nil {
			return fmt.Errorf("mark agreement signed: %w", err)
		}
		signed = cmdTag.RowsAffected() == 1
		return nil
	})
	return signed, err
}

// IsPaid возвращает признак подтверждённой оплаты пользователя.
func (r *PostgresRepository) IsPaid(ctx context.Context, userID int64) (bool, error) {
	var paid bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM verified_accounts WHERE user_id = $1 AND status = $2)`,
		userID, string(model.PaymentStatusPaid),
	).Scan(&paid)
	if err != nil {
		return false, fmt.Errorf("check paid: %w", err)
	}
	return paid, nil
}

// GetByUserID возвращает подтверждённый аккаунт по идентификатору пользователя.
func (r *PostgresRepository) GetByUserID(ctx context.Context, userID int64) (*model.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT user_id, username, reference, external_reference, status, confirmed_at,
		        agreement_signed, agreement_signed_at, agreement_document
		 FROM verified_accounts
		 WHERE user_id = $1`,
		userID,
	)
	return scanAccount(row)
}

// GetByReference возвращает подтверждённый аккаунт по внутреннему или внешнему референсу.
func (r *PostgresRepository) GetByReference(ctx context.Context, reference string) (*model.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT user_id, username, reference, external_reference, status, confirmed_at,
		        agreement_signed, agreement_signed_at, agreement_document
		 FROM verified_accounts
		 WHERE reference = $1 OR external_reference = $1
		 LIMIT 1`,
		reference,
	)
	return scanAccount(row)
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a        model.Account
		status   string
		signedAt *time.Time
	)
	err := row.Scan(&a.UserID, &a.Username, &a.Reference, &a.ExternalReference, &status,
		&a.ConfirmedAt, &a.AgreementSigned, &signedAt, &a.AgreementDocument)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	a.Status = model.PaymentStatus(status)
	a.AgreementSignedAt = signedAt

	return &a, nil
}

// GetPendingByUserID возвращает актуальную заявку пользователя.
func (r *PostgresRepository) GetPendingByUserID(ctx context.Context, userID int64) (*model.PendingRequest, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT user_id, username, reference, amount, status, created_at
		 FROM pending_requests
		 WHERE user_id = $1`,
		userID,
	)
	return scanPending(row)
}

// MostRecentPending возвращает самую свежую заявку в статусе pending во всей системе.
// Используется только как резервный эвристический матчер при расхождении референсов.
func (r *PostgresRepository) MostRecentPending(ctx context.Context) (*model.PendingRequest, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT user_id, username, reference, amount, status, created_at
		 FROM pending_requests
		 WHERE status = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		string(model.PaymentStatusPending),
	)
	return scanPending(row)
}

func scanPending(row pgx.Row) (*model.PendingRequest, error) {
	var (
		p      model.PendingRequest
		status string
	)
	err := row.Scan(&p.UserID, &p.Username, &p.Reference, &p.Amount, &status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoPendingRequests
		}
		return nil, fmt.Errorf("scan pending request: %w", err)
	}

	p.Status = model.PaymentStatus(status)

	return &p, nil
}

// RecordAnomaly сохраняет уведомление, не прошедшее валидацию, вместе с сырым payload.
func (r *PostgresRepository) RecordAnomaly(ctx context.Context, a model.Anomaly) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO payment_anomalies (id, reason, reference, amount, currency, payload)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			a.ID, a.Reason, a.Reference, a.Amount, a.Currency, a.Payload,
		)
		if err != nil {
			return fmt.Errorf("record anomaly: %w", err)
		}
		return nil
	})
}
