package domain

import "time"

// DefaultIdempotencyTTL - сколько хранится запись о доставке, если срок не передан.
// Razorpay повторяет неподтверждённые webhook в течение суток.
const DefaultIdempotencyTTL = 24 * time.Hour

// DefaultProcessingLease - сколько запись может висеть в processing, прежде чем
// повторная доставка заберёт её себе. Обработчик, упавший посреди работы, не
// оставляет после себя вечный дубль.
const DefaultProcessingLease = 2 * time.Minute

// IdempotencyStatus - состояние записи в журнале доставок.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	// IdempotencyStatusFailed - обработка упала, повторная доставка обрабатывается заново.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Valid проверяет, что статус входит в перечисление.
func (s IdempotencyStatus) Valid() bool {
	return s == IdempotencyStatusProcessing || s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// IdempotencyRecord - запись журнала доставок. RequestHash хранит sha256 тела,
// чтобы повтор с тем же ключом, но другим содержимым не считался дублем.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       IdempotencyStatus
	HTTPStatus   int
	ResponseBody []byte
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Retryable сообщает, что запись не мешает повторной обработке: обработка упала
// либо запись в processing не обновлялась с момента staleBefore.
func (r IdempotencyRecord) Retryable(staleBefore time.Time) bool {
	switch r.Status {
	case IdempotencyStatusFailed:
		return true
	case IdempotencyStatusProcessing:
		return !r.UpdatedAt.After(staleBefore)
	default:
		return false
	}
}

// Expired сообщает, что срок хранения записи истёк к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}

// Clone возвращает копию записи с собственным буфером ответа.
func (r IdempotencyRecord) Clone() IdempotencyRecord {
	r.ResponseBody = append([]byte(nil), r.ResponseBody...)
	return r
}
