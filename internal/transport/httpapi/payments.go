package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

// handleWebhook отвечает 200 на всё, кроме неверной подписи и нечитаемого тела:
// ошибки обработки шлюз повторять не должен, их разбирают по логам.
// Слишком большое тело не обрезается, а отклоняется с 413.
func (s *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.logger.WithFields(log.Fields{
			"limit_bytes": tooLarge.Limit,
			"event_id":    c.GetHeader(headerWebhookEventID),
		}).Warn("webhook body exceeds limit")
		abortWithError(c, http.StatusRequestEntityTooLarge, "payload_too_large", err.Error())
		return
	}
	if err != nil {
		badRequest(c, err)
		return
	}

	err = s.webhooks.HandleWebhook(c.Request.Context(), body,
		c.GetHeader(headerWebhookSignature),
		c.GetHeader(headerWebhookEventID),
	)
	if errors.Is(err, domain.ErrWebhookSignatureInvalid) {
		abortWithError(c, http.StatusBadRequest, "invalid_signature", err.Error())
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": webhookAcceptedResponse})
}

func (s *Server) handleListOrphans(c *gin.Context) {
	limit := defaultOrphanListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			abortWithError(c, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	payments, err := s.webhooks.ListOrphanPayments(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": paymentsFromDomain(payments)})
}

func (s *Server) handleLinkOrphan(c *gin.Context) {
	var req linkPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := s.webhooks.LinkOrphanPayment(c.Request.Context(), c.Param("id"), req.OrderID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.logger.WithField("payment_id", c.Param("id")).
		WithField("order_id", order.ID).
		WithField("admin_id", currentUser(c).ID).
		Info("orphan payment linked")
	c.JSON(http.StatusOK, orderFromDomain(order))
}
