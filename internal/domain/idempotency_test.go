package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdempotencyRecord_Lifecycle(t *testing.T) {
	now := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		record        IdempotencyRecord
		wantRetryable bool
		wantExpired   bool
	}{
		{
			name:   "in flight delivery",
			record: IdempotencyRecord{Status: IdempotencyStatusProcessing, TTLAt: now.Add(time.Hour), UpdatedAt: now.Add(-time.Second)},
		},
		{
			name:          "abandoned processing is taken over after the lease",
			record:        IdempotencyRecord{Status: IdempotencyStatusProcessing, TTLAt: now.Add(time.Hour), UpdatedAt: now.Add(-DefaultProcessingLease)},
			wantRetryable: true,
		},
		{
			name:   "completed delivery",
			record: IdempotencyRecord{Status: IdempotencyStatusDone, TTLAt: now.Add(time.Minute), UpdatedAt: now.Add(-time.Hour)},
		},
		{
			name:          "failed delivery is reprocessed",
			record:        IdempotencyRecord{Status: IdempotencyStatusFailed, TTLAt: now.Add(time.Hour)},
			wantRetryable: true,
		},
		{
			name:        "ttl boundary counts as expired",
			record:      IdempotencyRecord{Status: IdempotencyStatusDone, TTLAt: now},
			wantExpired: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.record.Status.Valid())
			assert.Equal(t, tt.wantRetryable, tt.record.Retryable(now.Add(-DefaultProcessingLease)))
			assert.Equal(t, tt.wantExpired, tt.record.Expired(now))
		})
	}

	assert.False(t, IdempotencyStatus("queued").Valid())
}

func TestIdempotencyRecord_CloneOwnsBody(t *testing.T) {
	original := IdempotencyRecord{Key: "webhook:evt_1", ResponseBody: []byte("ok")}

	clone := original.Clone()
	clone.ResponseBody[0] = 'K'

	assert.Equal(t, "ok", string(original.ResponseBody))
}
