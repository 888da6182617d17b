package payment

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

const mockKeyID = "rzp_test_mock"

// MockGateway - in-memory шлюз для локальной разработки и тестов.
// Заказы считаются оплаченными полностью, если не задано иное через SetPaid.
type MockGateway struct {
	mu     sync.Mutex
	orders map[string]domain.GatewayOrder

	CreateErr error
	FetchErr  error

	CreateCalls int
	FetchCalls  int
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{orders: make(map[string]domain.GatewayOrder)}
}

func (m *MockGateway) KeyID() string { return mockKeyID }

// CreateOrder запоминает заказ и возвращает его.
func (m *MockGateway) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string) (domain.GatewayOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.CreateErr != nil {
		return domain.GatewayOrder{}, m.CreateErr
	}
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	order := domain.GatewayOrder{
		ID:              "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14],
		AmountMinor:     amountMinor,
		AmountPaidMinor: amountMinor,
		Currency:        currency,
		Receipt:         receipt,
		Status:          "paid",
	}
	m.orders[order.ID] = order
	return order, nil
}

// FetchOrder возвращает ранее созданный или зарегистрированный заказ.
func (m *MockGateway) FetchOrder(_ context.Context, gatewayOrderID string) (domain.GatewayOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FetchCalls++
	if m.FetchErr != nil {
		return domain.GatewayOrder{}, m.FetchErr
	}
	order, ok := m.orders[gatewayOrderID]
	if !ok {
		return domain.GatewayOrder{}, &GatewayError{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Description: "The id provided does not exist"}
	}
	return order, nil
}

// SetPaid регистрирует заказ шлюза с указанной оплаченной суммой.
func (m *MockGateway) SetPaid(gatewayOrderID string, amountMinor int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders[gatewayOrderID] = domain.GatewayOrder{
		ID:              gatewayOrderID,
		AmountMinor:     amountMinor,
		AmountPaidMinor: amountMinor,
		Currency:        domain.DefaultCurrency,
		Status:          "paid",
	}
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
