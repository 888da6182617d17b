package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

const (
	// DefaultBaseURL - публичный API Razorpay.
	DefaultBaseURL = "https://api.razorpay.com"

	defaultTimeout         = 10 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
	maxErrorBodyBytes      = 4 << 10
)

var gatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "teashop_gateway_request_duration_seconds",
	Help:    "Duration of payment gateway API calls grouped by operation and result.",
	Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
}, []string{"operation", "result"})

// GatewayError - отказ шлюза с кодом 4xx. Повтор запроса его не исправит.
type GatewayError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway rejected request: status=%d code=%s: %s", e.StatusCode, e.Code, e.Description)
}

// Config задаёт параметры клиента Razorpay.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	// Timeout ограничивает каждый вызов шлюза.
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// Option настраивает RazorpayClient.
type Option func(*RazorpayClient)

// WithHTTPClient подменяет HTTP-клиент (тесты, прокси).
func WithHTTPClient(client *http.Client) Option {
	return func(c *RazorpayClient) {
		c.httpClient = client
	}
}

// WithLogger задаёт logger клиента.
func WithLogger(logger *log.Entry) Option {
	return func(c *RazorpayClient) {
		c.logger = logger
	}
}

// RazorpayClient реализует domain.PaymentGateway поверх REST API Razorpay.
type RazorpayClient struct {
	baseURL    string
	keyID      string
	keySecret  string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *CircuitBreaker
	logger     *log.Entry
}

// NewRazorpayClient создаёт клиент шлюза.
func NewRazorpayClient(cfg Config, options ...Option) *RazorpayClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = defaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaultBreakerCooldown
	}

	c := &RazorpayClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		timeout:   cfg.Timeout,
	}
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = log.WithField("component", "razorpay-client")
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	c.breaker = NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerCooldown, func(err error) bool {
		return errors.Is(err, domain.ErrGatewayUnavailable)
	}, c.logger)

	return c
}

// KeyID возвращает публичный ключ для платёжного виджета.
func (c *RazorpayClient) KeyID() string {
	return c.keyID
}

type razorpayOrder struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
}

func (o razorpayOrder) toDomain() domain.GatewayOrder {
	return domain.GatewayOrder{
		ID:              o.ID,
		AmountMinor:     o.Amount,
		AmountPaidMinor: o.AmountPaid,
		Currency:        o.Currency,
		Receipt:         o.Receipt,
		Status:          o.Status,
	}
}

// CreateOrder заводит заказ в Razorpay.
func (c *RazorpayClient) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (domain.GatewayOrder, error) {
	if amountMinor <= 0 {
		return domain.GatewayOrder{}, fmt.Errorf("create gateway order: amount must be positive")
	}
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	body := map[string]any{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
	}

	var out razorpayOrder
	if err := c.call(ctx, "create_order", http.MethodPost, "/v1/orders", body, &out); err != nil {
		return domain.GatewayOrder{}, err
	}
	return out.toDomain(), nil
}

// FetchOrder возвращает заказ Razorpay по идентификатору.
func (c *RazorpayClient) FetchOrder(ctx context.Context, gatewayOrderID string) (domain.GatewayOrder, error) {
	if strings.TrimSpace(gatewayOrderID) == "" {
		return domain.GatewayOrder{}, fmt.Errorf("fetch gateway order: id is required")
	}

	var out razorpayOrder
	path := "/v1/orders/" + url.PathEscape(gatewayOrderID)
	if err := c.call(ctx, "fetch_order", http.MethodGet, path, nil, &out); err != nil {
		return domain.GatewayOrder{}, err
	}
	return out.toDomain(), nil
}

func (c *RazorpayClient) call(ctx context.Context, operation, method, path string, in, out any) error {
	start := time.Now()
	err := c.breaker.Execute(operation, func() error {
		return c.do(ctx, method, path, in, out)
	})
	if errors.Is(err, ErrCircuitOpen) {
		err = fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	gatewayRequestDuration.WithLabelValues(operation, resultLabel(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.WithError(err).WithField("operation", operation).Warn("gateway call failed")
	}
	return err
}

func (c *RazorpayClient) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal gateway request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("%w: status %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeGatewayError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrGatewayUnavailable, err)
	}
	return nil
}

func decodeGatewayError(resp *http.Response) error {
	var envelope struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	_ = json.Unmarshal(raw, &envelope)

	return &GatewayError{
		StatusCode:  resp.StatusCode,
		Code:        envelope.Error.Code,
		Description: envelope.Error.Description,
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return "unavailable"
	default:
		return "rejected"
	}
}

var _ domain.PaymentGateway = (*RazorpayClient)(nil)
