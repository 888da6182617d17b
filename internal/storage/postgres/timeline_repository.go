package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

const (
	insertTimelineSQL = `INSERT INTO timeline_events (order_id, type, reason, occurred) VALUES ($1, $2, $3, $4)`

	// id разрешает порядок событий, записанных в одну и ту же микросекунду.
	selectTimelineSQL = `SELECT order_id, type, reason, occurred FROM timeline_events
		WHERE order_id = $1 ORDER BY occurred, id`
)

type timelineRepository struct {
	q querier
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	occurred := event.Occurred
	if occurred.IsZero() {
		occurred = time.Now()
	}

	_, err := r.q.ExecContext(ctx, insertTimelineSQL, event.OrderID, string(event.Type), event.Reason, occurred.UTC())
	if err != nil {
		return fmt.Errorf("timeline %s: append %s: %w", event.OrderID, event.Type, err)
	}
	return nil
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	rows, err := r.q.QueryContext(ctx, selectTimelineSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("timeline %s: query: %w", orderID, err)
	}
	defer rows.Close()

	var events []domain.TimelineEvent
	for rows.Next() {
		var (
			event     domain.TimelineEvent
			eventType string
		)
		if err := rows.Scan(&event.OrderID, &eventType, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("timeline %s: scan: %w", orderID, err)
		}
		event.Type = domain.TimelineEventType(eventType)
		event.Occurred = event.Occurred.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("timeline %s: rows: %w", orderID, err)
	}
	if events == nil {
		events = []domain.TimelineEvent{}
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
