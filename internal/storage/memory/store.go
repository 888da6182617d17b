package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

// state - данные in-memory хранилища. Все репозитории транзакции работают с одним state.
type state struct {
	products map[string]domain.Product
	users    map[string]domain.User
	carts    map[string]domain.Cart
	orders   map[string]domain.Order
	payments map[string]domain.Payment
	// paymentsByGatewayID - уникальный индекс gateway payment id -> payment id.
	paymentsByGatewayID map[string]string
	timeline            map[string][]domain.TimelineEvent
}

func newState() *state {
	return &state{
		products:            make(map[string]domain.Product),
		users:               make(map[string]domain.User),
		carts:               make(map[string]domain.Cart),
		orders:              make(map[string]domain.Order),
		payments:            make(map[string]domain.Payment),
		paymentsByGatewayID: make(map[string]string),
		timeline:            make(map[string][]domain.TimelineEvent),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = v.Clone()
	}
	for k, v := range s.orders {
		c.orders[k] = v.Clone()
	}
	for k, v := range s.payments {
		c.payments[k] = v.Clone()
	}
	for k, v := range s.paymentsByGatewayID {
		c.paymentsByGatewayID[k] = v
	}
	for k, v := range s.timeline {
		c.timeline[k] = append([]domain.TimelineEvent(nil), v...)
	}
	return c
}

func (s *state) repositories() domain.Repositories {
	return domain.Repositories{
		Products: &productRepository{st: s},
		Users:    &userRepository{st: s},
		Carts:    &cartRepository{st: s},
		Orders:   &orderRepository{st: s},
		Payments: &paymentRepository{st: s},
		Timeline: &timelineRepository{st: s},
	}
}

// Store - in-memory хранилище для локальной разработки и тестов.
// Транзакции сериализуются одним мьютексом; при ошибке state откатывается к снимку.
// Вложенный WithinTx из fn приведёт к deadlock.
type Store struct {
	mu sync.Mutex
	st *state
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{st: newState()}
}

// WithinTx выполняет fn атомарно.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, s.st.repositories()); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Ping всегда успешен; нужен для health-check.
func (s *Store) Ping(context.Context) error {
	return nil
}

var _ domain.TxManager = (*Store)(nil)
