package memory

import (
	"context"
	"slices"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

type timelineRepository struct {
	st *state
}

// Append вставляет событие с сохранением хронологии. События с одинаковым временем
// остаются в порядке записи.
func (r *timelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	events := r.st.timeline[event.OrderID]
	at := len(events)
	for at > 0 && events[at-1].Occurred.After(event.Occurred) {
		at--
	}
	r.st.timeline[event.OrderID] = slices.Insert(events, at, event)
	return nil
}

func (r *timelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	return append([]domain.TimelineEvent{}, r.st.timeline[orderID]...), nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
