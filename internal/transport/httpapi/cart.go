package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleGetCart(c *gin.Context) {
	view, err := s.carts.Get(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartFromView(view))
}

func (s *Server) handleAddCartItem(c *gin.Context) {
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := s.carts.AddItem(c.Request.Context(), currentUser(c).ID, req.ProductID, req.Quantity)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartFromView(view))
}

func (s *Server) handleUpdateCartItem(c *gin.Context) {
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := s.carts.UpdateItem(c.Request.Context(), currentUser(c).ID, c.Param("productId"), req.Quantity)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartFromView(view))
}

func (s *Server) handleRemoveCartItem(c *gin.Context) {
	view, err := s.carts.RemoveItem(c.Request.Context(), currentUser(c).ID, c.Param("productId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartFromView(view))
}

func (s *Server) handleClearCart(c *gin.Context) {
	if err := s.carts.Clear(c.Request.Context(), currentUser(c).ID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
