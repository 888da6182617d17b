package health

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

const defaultCheckTimeout = 2 * time.Second

// Pinger - компонент с проверкой соединения (хранилище заказов).
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageChecker проверяет доступность хранилища заказов и платежей.
type StorageChecker struct {
	name    string
	pinger  Pinger
	timeout time.Duration
}

// NewStorageChecker создаёт проверку хранилища. timeout <= 0 заменяется значением по умолчанию.
func NewStorageChecker(name string, pinger Pinger, timeout time.Duration) *StorageChecker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &StorageChecker{name: name, pinger: pinger, timeout: timeout}
}

// Check пингует хранилище с таймаутом.
func (c *StorageChecker) Check() Check {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	err := c.pinger.Ping(ctx)
	check := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}

// OutboxChecker помечает сервис degraded, если уведомления застряли в outbox.
// Заказы при этом оформляются, поэтому unhealthy не выставляется.
type OutboxChecker struct {
	repo   domain.OutboxRepository
	maxAge time.Duration
	now    func() time.Time
}

// NewOutboxChecker создаёт проверку backlog outbox.
func NewOutboxChecker(repo domain.OutboxRepository, maxAge time.Duration) *OutboxChecker {
	return &OutboxChecker{repo: repo, maxAge: maxAge, now: time.Now}
}

func (c *OutboxChecker) Check() Check {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCheckTimeout)
	defer cancel()

	start := time.Now()
	stats, err := c.repo.Stats(ctx)
	check := Check{Name: "outbox", Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	switch {
	case err != nil:
		check.Status = StatusDegraded
		check.Message = err.Error()
	case stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() && c.now().Sub(stats.OldestPendingAt) > c.maxAge:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("%d notifications pending, oldest %s ago",
			stats.PendingCount, c.now().Sub(stats.OldestPendingAt).Round(time.Second))
	}
	return check
}
