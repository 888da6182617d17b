package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

type paymentRepository struct {
	st *state
}

func (r *paymentRepository) Create(_ context.Context, payment domain.Payment) error {
	if payment.GatewayPaymentID == "" {
		return domain.ErrGatewayIDsRequired
	}
	if _, exists := r.st.paymentsByGatewayID[payment.GatewayPaymentID]; exists {
		return domain.ErrPaymentConflict
	}
	if _, exists := r.st.payments[payment.ID]; exists {
		return domain.ErrPaymentConflict
	}
	r.st.payments[payment.ID] = payment.Clone()
	r.st.paymentsByGatewayID[payment.GatewayPaymentID] = payment.ID
	return nil
}

func (r *paymentRepository) Get(_ context.Context, id string) (domain.Payment, error) {
	payment, ok := r.st.payments[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return payment.Clone(), nil
}

func (r *paymentRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (domain.Payment, error) {
	id, ok := r.st.paymentsByGatewayID[gatewayPaymentID]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return r.Get(ctx, id)
}

// Save применяет optimistic locking по Version, как и заказы.
func (r *paymentRepository) Save(_ context.Context, payment domain.Payment) error {
	current, ok := r.st.payments[payment.ID]
	switch {
	case !ok:
		return domain.ErrPaymentNotFound
	case current.Version != payment.Version:
		return domain.ErrPaymentVersionConflict
	}
	if current.GatewayPaymentID != payment.GatewayPaymentID {
		if _, taken := r.st.paymentsByGatewayID[payment.GatewayPaymentID]; taken {
			return domain.ErrPaymentConflict
		}
		delete(r.st.paymentsByGatewayID, current.GatewayPaymentID)
		r.st.paymentsByGatewayID[payment.GatewayPaymentID] = payment.ID
	}
	payment.Version = current.Version + 1
	r.st.payments[payment.ID] = payment.Clone()
	return nil
}

func (r *paymentRepository) ListOrphans(_ context.Context, limit int) ([]domain.Payment, error) {
	result := make([]domain.Payment, 0)
	for _, payment := range r.st.payments {
		if payment.IsOrphan() && payment.Status != domain.PaymentStatusFailed {
			result = append(result, payment.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
