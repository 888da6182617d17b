package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/service/payment"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorTable сопоставляет доменные ошибки с HTTP-ответами. Порядок важен: первая подходящая побеждает.
var errorTable = []errorMapping{
	{domain.ErrDuplicatePayment, http.StatusConflict, "duplicate_payment"},
	{domain.ErrPaymentConflict, http.StatusConflict, "duplicate_payment"},
	{domain.ErrPaymentVerificationFailed, http.StatusBadRequest, "payment_verification_failed"},
	{domain.ErrAmountMismatch, http.StatusBadRequest, "amount_mismatch"},
	{domain.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{domain.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
	{domain.ErrPaymentNotOrphan, http.StatusConflict, "payment_not_orphan"},
	{domain.ErrOrderVersionConflict, http.StatusConflict, "version_conflict"},
	{domain.ErrPaymentVersionConflict, http.StatusConflict, "version_conflict"},
	{domain.ErrInvalidOrderStatus, http.StatusBadRequest, "invalid_order_status"},
	{domain.ErrGatewayUnavailable, http.StatusServiceUnavailable, "gateway_unavailable"},
	{domain.ErrWebhookSignatureInvalid, http.StatusBadRequest, "invalid_signature"},
	{domain.ErrWebhookPayloadInvalid, http.StatusBadRequest, "invalid_payload"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{domain.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{domain.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
	{domain.ErrCartItemNotFound, http.StatusNotFound, "cart_item_not_found"},
	{domain.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{domain.ErrUserRequired, http.StatusBadRequest, "validation_failed"},
	{domain.ErrItemsRequired, http.StatusBadRequest, "validation_failed"},
	{domain.ErrItemQtyInvalid, http.StatusBadRequest, "validation_failed"},
	{domain.ErrItemPriceInvalid, http.StatusBadRequest, "validation_failed"},
	{domain.ErrShippingAddressRequired, http.StatusBadRequest, "validation_failed"},
	{domain.ErrGatewayIDsRequired, http.StatusBadRequest, "validation_failed"},
	{domain.ErrAmountInvalid, http.StatusBadRequest, "validation_failed"},
}

// classify возвращает статус, код и сообщение для ошибки сервиса.
func classify(err error) (int, string, string) {
	var stockErr *domain.StockError
	if errors.As(err, &stockErr) {
		return http.StatusConflict, "insufficient_stock", stockErr.Error()
	}
	var unavailable *domain.UnavailableError
	if errors.As(err, &unavailable) {
		if unavailable.Reason == domain.UnavailableMissing {
			return http.StatusNotFound, "product_unavailable", unavailable.Error()
		}
		return http.StatusConflict, "product_unavailable", unavailable.Error()
	}
	if errors.Is(err, domain.ErrProductUnavailable) {
		return http.StatusConflict, "product_unavailable", err.Error()
	}

	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, m.code, err.Error()
		}
	}

	var gatewayErr *payment.GatewayError
	if errors.As(err, &gatewayErr) {
		return http.StatusBadGateway, "gateway_rejected", "payment gateway rejected the request"
	}
	return http.StatusInternalServerError, "internal", "internal error"
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).
			WithField("route", routeOf(c)).
			WithField("request_id", c.GetString(headerRequestID)).
			Error("request failed")
	}
	abortWithError(c, status, code, message)
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

func badRequest(c *gin.Context, err error) {
	abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
}
