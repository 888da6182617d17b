package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/tracing"
)

// requestID пробрасывает X-Request-ID или выдаёт новый.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(headerRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// trace открывает серверный span. Имя строится по шаблону маршрута.
func (s *Server) trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.Start(c.Request.Context(), "http "+c.Request.Method+" "+routeOf(c),
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", routeOf(c)),
			attribute.String("request_id", c.GetString(headerRequestID)),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		var err error
		if c.Writer.Status() >= http.StatusInternalServerError {
			err = errors.New(http.StatusText(c.Writer.Status()))
		}
		tracing.End(span, err)
	}
}

// observe пишет метрики и access log.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		if s.metrics != nil {
			s.metrics.ObserveRequest(c.Request.Method, c.FullPath(), status, elapsed)
		}

		entry := s.logger.WithFields(log.Fields{
			"method":      c.Request.Method,
			"route":       routeOf(c),
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
			"request_id":  c.GetString(headerRequestID),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Info("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}

// authenticate загружает пользователя из X-User-ID. Проверка личности выполняется во внешнем шлюзе.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(headerUserID))
		if userID == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthenticated", "X-User-ID header is required")
			return
		}

		var user domain.User
		err := s.tx.WithinTx(c.Request.Context(), func(ctx context.Context, repos domain.Repositories) error {
			var err error
			user, err = repos.Users.Get(ctx, userID)
			return err
		})
		switch {
		case errors.Is(err, domain.ErrUserNotFound):
			abortWithError(c, http.StatusUnauthorized, "unauthenticated", "unknown user")
			return
		case err != nil:
			s.logger.WithError(err).WithField("user_id", userID).Error("load user")
			abortWithError(c, http.StatusInternalServerError, "internal", "internal error")
			return
		}

		c.Set(contextKeyUser, user)
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentUser(c).IsAdmin() {
			abortWithError(c, http.StatusForbidden, "forbidden", domain.ErrForbidden.Error())
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) domain.User {
	if v, ok := c.Get(contextKeyUser); ok {
		if user, ok := v.(domain.User); ok {
			return user
		}
	}
	return domain.User{}
}

func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}
