package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/service/checkout"
)

func (s *Server) handleCreateGatewayOrder(c *gin.Context) {
	var req createGatewayOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	amountMinor, err := domain.MinorFromMajor(req.Amount)
	if err != nil {
		s.writeError(c, err)
		return
	}
	result, err := s.checkout.CreateGatewayOrder(c.Request.Context(), currentUser(c).ID, amountMinor)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gatewayOrderFromResult(result))
}

func (s *Server) handleQuote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	quote, err := s.checkout.Quote(c.Request.Context(), toLines(req.Items))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quoteResponse{
		Items:  orderItemsFromDomain(quote.Items),
		Totals: totalsFromDomain(quote.Totals),
	})
}

func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := s.checkout.PlaceOrder(c.Request.Context(), checkout.PlaceOrderInput{
		UserID:           currentUser(c).ID,
		Items:            toLines(req.Items),
		ShippingAddress:  req.ShippingAddress.toDomain(),
		GatewayOrderID:   req.RazorpayOrderID,
		GatewayPaymentID: req.RazorpayPaymentID,
		GatewaySignature: req.RazorpaySignature,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, orderFromDomain(order))
}

func (s *Server) handleListOrders(c *gin.Context) {
	limit := defaultOrderListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			abortWithError(c, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	orders, err := s.checkout.ListOrders(c.Request.Context(), currentUser(c).ID, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": ordersFromDomain(orders)})
}

func (s *Server) handleGetOrder(c *gin.Context) {
	order, err := s.checkout.GetOrder(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderFromDomain(order))
}

func (s *Server) handleTimeline(c *gin.Context) {
	events, err := s.checkout.Timeline(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": timelineFromDomain(events)})
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	order, err := s.checkout.Cancel(c.Request.Context(), c.Param("id"), currentUser(c), req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderFromDomain(order))
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := s.checkout.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, currentUser(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderFromDomain(order))
}
