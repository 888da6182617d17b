package payment

import (
	"errors"
	"sync"
	"time"

	"github.com/eapache/go-resiliency/breaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// ErrCircuitOpen - шлюз считается недоступным, вызов не выполнялся.
var ErrCircuitOpen = errors.New("circuit breaker is open")

var circuitStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "teashop_gateway_circuit_state",
	Help: "Payment gateway circuit breaker state: 0 closed, 1 open, 2 half-open.",
})

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	// CircuitHalfOpen пропускает пробные вызовы после паузы.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

func circuitStateOf(s breaker.State) CircuitState {
	switch s {
	case breaker.Open:
		return CircuitOpen
	case breaker.HalfOpen:
		return CircuitHalfOpen
	default:
		return CircuitClosed
	}
}

// CircuitBreaker размыкается после maxFailures отказов, случившихся с интервалом
// не больше cooldown, и держит цепь разомкнутой cooldown. Первый успешный пробный
// вызов замыкает цепь, неудачный размыкает снова.
type CircuitBreaker struct {
	cb     *breaker.Breaker
	tripOn func(error) bool
	logger *log.Entry

	mu   sync.Mutex
	last CircuitState
}

// NewCircuitBreaker создаёт breaker. tripOn == nil считает отказом любую ошибку.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration, tripOn func(error) bool, logger *log.Entry) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	if tripOn == nil {
		tripOn = func(err error) bool { return err != nil }
	}
	if logger == nil {
		logger = log.WithField("component", "circuit-breaker")
	}
	circuitStateGauge.Set(float64(CircuitClosed))
	return &CircuitBreaker{
		cb:     breaker.New(maxFailures, 1, cooldown),
		tripOn: tripOn,
		logger: logger,
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	return circuitStateOf(cb.cb.GetState())
}

// Execute вызывает fn через breaker. Ошибки, для которых tripOn ложен, возвращаются
// вызывающему, но отказом шлюза не считаются.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	cb.observe(operation)

	var passthrough error
	err := cb.cb.Run(func() error {
		err := fn()
		if err != nil && !cb.tripOn(err) {
			passthrough = err
			return nil
		}
		return err
	})
	cb.observe(operation)

	switch {
	case errors.Is(err, breaker.ErrBreakerOpen):
		return ErrCircuitOpen
	case err != nil:
		return err
	default:
		return passthrough
	}
}

// observe пишет смену состояния в лог и gauge. Переход open -> half-open
// breaker делает по таймеру, поэтому он виден только при следующем вызове.
func (cb *CircuitBreaker) observe(operation string) {
	next := cb.State()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.last == next {
		return
	}
	cb.logger.WithFields(log.Fields{
		"operation": operation,
		"from":      cb.last.String(),
		"to":        next.String(),
	}).Warn("gateway circuit breaker state changed")
	cb.last = next
	circuitStateGauge.Set(float64(next))
}
