package domain

import (
	"context"
	"time"
)

// ProductRepository описывает хранилище товаров.
type ProductRepository interface {
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// Save создаёт или полностью перезаписывает товар (наполнение каталога).
	Save(ctx context.Context, product Product) error
	// DecrementStock атомарно уменьшает остаток, если товар активен и stock >= qty.
	// ok=false означает, что ни одна строка не подошла под условие.
	DecrementStock(ctx context.Context, id string, qty int) (product Product, ok bool, err error)
	// IncrementStock атомарно возвращает qty единиц на склад.
	IncrementStock(ctx context.Context, id string, qty int) error
}

// UserRepository описывает хранилище пользователей.
type UserRepository interface {
	Get(ctx context.Context, id string) (User, error)
	Save(ctx context.Context, user User) error
	// FindByNormalizedPhone возвращает пользователей с совпадающим 10-значным номером,
	// упорядоченных по дате создания и id.
	FindByNormalizedPhone(ctx context.Context, phone string) ([]User, error)
	// FindByEmail ищет пользователя по email без учёта регистра.
	FindByEmail(ctx context.Context, email string) (User, error)
}

// CartRepository хранит корзины пользователей.
type CartRepository interface {
	// Get возвращает корзину; пустую корзину, если её ещё не было.
	Get(ctx context.Context, userID string) (Cart, error)
	Save(ctx context.Context, cart Cart) error
	Clear(ctx context.Context, userID string) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// PaymentRepository хранит платёжные записи. GatewayPaymentID уникален.
type PaymentRepository interface {
	// Create вставляет запись; ErrPaymentConflict при дубликате gateway payment id.
	Create(ctx context.Context, payment Payment) error
	Get(ctx context.Context, id string) (Payment, error)
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (Payment, error)
	Save(ctx context.Context, payment Payment) error
	// ListOrphans возвращает платежи без заказа, старые первыми.
	ListOrphans(ctx context.Context, limit int) ([]Payment, error)
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// Repositories - набор репозиториев, работающих в одной транзакции.
type Repositories struct {
	Products ProductRepository
	Users    UserRepository
	Carts    CartRepository
	Orders   OrderRepository
	Payments PaymentRepository
	Timeline TimelineRepository
}

// TxManager выполняет fn атомарно: при ошибке все изменения откатываются.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	// Reclaim атомарно переводит упавшую или зависшую (updated_at <= staleBefore) запись
	// обратно в processing. Живая или завершённая запись даёт ErrIdempotencyKeyAlreadyExists.
	Reclaim(ctx context.Context, key, requestHash string, staleBefore, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}
