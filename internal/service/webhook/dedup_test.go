package webhook_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/service/payment"
	"github.com/vladislavdragonenkov/teashop/internal/service/webhook"
)

func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// ctxAwareIdempotency отказывает в записи по отменённому контексту, как это делает PostgreSQL.
type ctxAwareIdempotency struct {
	domain.IdempotencyRepository
}

func (r ctxAwareIdempotency) MarkDone(ctx context.Context, key string, body []byte, status int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.IdempotencyRepository.MarkDone(ctx, key, body, status)
}

func (r ctxAwareIdempotency) MarkFailed(ctx context.Context, key string, body []byte, status int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.IdempotencyRepository.MarkFailed(ctx, key, body, status)
}

// conflictingTx отдаёт заданную ошибку на первых failures транзакциях.
type conflictingTx struct {
	domain.TxManager
	err      error
	failures int
	calls    int
}

func (tx *conflictingTx) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	tx.calls++
	if tx.calls <= tx.failures {
		return tx.err
	}
	return tx.TxManager.WithinTx(ctx, fn)
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger.WithField("component", "webhook-test")
}

func TestDedup_StaleProcessingRecordIsReprocessed(t *testing.T) {
	h := newHarness(t)
	body := paymentEvent(t, "payment.captured", paymentFields{ID: "pay_lost", Amount: 31250, Contact: "9876543210"})

	// Обработчик занял доставку и упал, не успев записать результат.
	_, err := h.idempotency.CreateProcessing(context.Background(), "webhook:evt_1", bodyHash(body), h.now.Add(time.Hour))
	require.NoError(t, err)

	h.advance(domain.DefaultProcessingLease + time.Second)
	h.deliver(t, body, "evt_1")

	orphans, err := h.reconciler.ListOrphanPayments(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "pay_lost", orphans[0].GatewayPaymentID)

	record, err := h.idempotency.Get(context.Background(), "webhook:evt_1")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, record.Status)
}

func TestDedup_LiveProcessingRecordStillSkips(t *testing.T) {
	h := newHarness(t)
	body := paymentEvent(t, "payment.captured", paymentFields{ID: "pay_busy", Amount: 31250})

	_, err := h.idempotency.CreateProcessing(context.Background(), "webhook:evt_1", bodyHash(body), h.now.Add(time.Hour))
	require.NoError(t, err)

	h.advance(time.Second)
	h.deliver(t, body, "evt_1")

	orphans, err := h.reconciler.ListOrphanPayments(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, orphans, "delivery in flight elsewhere is not processed twice")
}

func TestDedup_FailedDeliveryIsReprocessed(t *testing.T) {
	h := newHarness(t)
	body := paymentEvent(t, "payment.captured", paymentFields{ID: "pay_retry", Amount: 31250})

	_, err := h.idempotency.CreateProcessing(context.Background(), "webhook:evt_1", bodyHash(body), h.now.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, h.idempotency.MarkFailed(context.Background(), "webhook:evt_1", nil, 500))

	h.deliver(t, body, "evt_1")

	assert.True(t, h.payment(t, "pay_retry").IsOrphan())
}

func TestDedup_OutcomeRecordedAfterRequestCancelled(t *testing.T) {
	h := newHarness(t)
	reconciler := webhook.NewReconciler(h.store, h.checkout.Ledger(), webhook.Config{WebhookSecret: webhookSecret},
		webhook.WithLogger(quietLogger()),
		webhook.WithIdempotency(ctxAwareIdempotency{h.idempotency}),
	)
	body := paymentEvent(t, "payment.captured", paymentFields{ID: "pay_cancel", Amount: 31250})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, reconciler.HandleWebhook(ctx, body, payment.SignWebhook(body, webhookSecret), "evt_1"))

	record, err := h.idempotency.Get(context.Background(), "webhook:evt_1")
	require.NoError(t, err)
	assert.NotEqual(t, domain.IdempotencyStatusProcessing, record.Status, "outcome must not be lost with the request context")
}

func TestProcess_RetriesVersionConflicts(t *testing.T) {
	for _, conflict := range []error{domain.ErrPaymentVersionConflict, domain.ErrOrderVersionConflict, domain.ErrPaymentConflict} {
		t.Run(conflict.Error(), func(t *testing.T) {
			h := newHarness(t)
			tx := &conflictingTx{TxManager: h.store, err: conflict, failures: 2}
			reconciler := webhook.NewReconciler(tx, h.checkout.Ledger(), webhook.Config{WebhookSecret: webhookSecret},
				webhook.WithLogger(quietLogger()),
				webhook.WithIdempotency(h.idempotency),
			)
			body := paymentEvent(t, "payment.captured", paymentFields{ID: "pay_race", Amount: 31250})

			require.NoError(t, reconciler.HandleWebhook(context.Background(), body, payment.SignWebhook(body, webhookSecret), "evt_1"))

			assert.Equal(t, 3, tx.calls)
			assert.True(t, h.payment(t, "pay_race").IsOrphan())
		})
	}
}

func TestProcess_GivesUpAfterPersistentConflict(t *testing.T) {
	h := newHarness(t)
	tx := &conflictingTx{TxManager: h.store, err: domain.ErrPaymentVersionConflict, failures: 10}
	reconciler := webhook.NewReconciler(tx, h.checkout.Ledger(), webhook.Config{WebhookSecret: webhookSecret},
		webhook.WithLogger(quietLogger()),
		webhook.WithIdempotency(h.idempotency),
	)
	body := paymentEvent(t, "payment.captured", paymentFields{ID: "pay_race", Amount: 31250})

	require.NoError(t, reconciler.HandleWebhook(context.Background(), body, payment.SignWebhook(body, webhookSecret), "evt_1"))

	assert.Equal(t, 3, tx.calls)
	record, err := h.idempotency.Get(context.Background(), "webhook:evt_1")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusFailed, record.Status, "redelivery will try again")
}
