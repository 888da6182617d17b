package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

const paymentColumns = `
	id, user_id, order_id, gateway_order_id, gateway_payment_id, signature,
	amount_minor, currency, status, method, contact, email,
	error_code, error_description, failure_reason,
	refund_id, refund_minor, refunded_at, created_at, updated_at, version`

type paymentRepository struct {
	q querier
}

// Create вставляет платёж. Уникальный индекс по gateway_payment_id разрешает гонку checkout и webhook.
func (r *paymentRepository) Create(ctx context.Context, p domain.Payment) error {
	if p.GatewayPaymentID == "" {
		return domain.ErrGatewayIDsRequired
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`,
		p.ID, p.UserID, nullString(p.OrderID), p.GatewayOrderID, p.GatewayPaymentID, p.Signature,
		p.AmountMinor, p.Currency, string(p.Status), p.Method, p.Contact, p.Email,
		p.ErrorCode, p.ErrorDescription, p.FailureReason,
		p.RefundID, p.RefundMinor, p.RefundedAt, p.CreatedAt, p.UpdatedAt, p.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPaymentConflict
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (domain.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *paymentRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (domain.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE gateway_payment_id = $1`, gatewayPaymentID)
}

// Save обновляет строку только если версия не менялась с момента чтения.
func (r *paymentRepository) Save(ctx context.Context, p domain.Payment) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE payments
		SET user_id = $2,
		    order_id = $3,
		    gateway_order_id = $4,
		    gateway_payment_id = $5,
		    signature = $6,
		    amount_minor = $7,
		    currency = $8,
		    status = $9,
		    method = $10,
		    contact = $11,
		    email = $12,
		    error_code = $13,
		    error_description = $14,
		    failure_reason = $15,
		    refund_id = $16,
		    refund_minor = $17,
		    refunded_at = $18,
		    updated_at = $19,
		    version = version + 1
		WHERE id = $1
		  AND version = $20
	`,
		p.ID, p.UserID, nullString(p.OrderID), p.GatewayOrderID, p.GatewayPaymentID, p.Signature,
		p.AmountMinor, p.Currency, string(p.Status), p.Method, p.Contact, p.Email,
		p.ErrorCode, p.ErrorDescription, p.FailureReason,
		p.RefundID, p.RefundMinor, p.RefundedAt, p.UpdatedAt, p.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPaymentConflict
		}
		return fmt.Errorf("update payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check payment existence: %w", err)
		}
		if !exists {
			return domain.ErrPaymentNotFound
		}
		return domain.ErrPaymentVersionConflict
	}
	return nil
}

// ListOrphans возвращает непривязанные платежи; аудиторские записи в статусе failed не показываются.
func (r *paymentRepository) ListOrphans(ctx context.Context, limit int) ([]domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE order_id IS NULL
		  AND status <> 'failed'
		ORDER BY created_at ASC, id ASC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.q.QueryContext(ctx, query+" LIMIT $1", limit)
	} else {
		rows, err = r.q.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list orphan payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) getOne(ctx context.Context, query string, arg any) (domain.Payment, error) {
	p, err := scanPayment(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}
	return p, nil
}

func scanPayment(row rowScanner) (domain.Payment, error) {
	var (
		p          domain.Payment
		orderID    sql.NullString
		status     string
		refundedAt sql.NullTime
	)
	if err := row.Scan(
		&p.ID, &p.UserID, &orderID, &p.GatewayOrderID, &p.GatewayPaymentID, &p.Signature,
		&p.AmountMinor, &p.Currency, &status, &p.Method, &p.Contact, &p.Email,
		&p.ErrorCode, &p.ErrorDescription, &p.FailureReason,
		&p.RefundID, &p.RefundMinor, &refundedAt, &p.CreatedAt, &p.UpdatedAt, &p.Version,
	); err != nil {
		return domain.Payment{}, err
	}
	p.OrderID = orderID.String
	p.Status = domain.PaymentStatus(status)
	p.RefundedAt = nullTimePtr(refundedAt)
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
