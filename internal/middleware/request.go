package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parish-reservations/internal/log"
)

// HeaderRequestID carries the correlation ID of a request.
const HeaderRequestID = "X-Request-ID"

// RequestID adds a unique ID to every request and stores it in the request
// context so log lines written while serving it can be correlated.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			reqID := req.Header.Get(HeaderRequestID)
			if reqID == "" || len(reqID) > 128 {
				reqID = uuid.New().String()
			}
			c.Response().Header().Set(HeaderRequestID, reqID)
			c.SetRequest(req.WithContext(log.ContextWithRequestID(req.Context(), reqID)))
			return next(c)
		}
	}
}

// AccessLog writes one structured line per request.
func AccessLog() echo.MiddlewareFunc {
	logger := log.WithComponent("http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			ev := logger.Info()
			if c.Response().Status >= 500 {
				ev = logger.Error().Err(err)
			}
			ev.Str(log.FieldRequestID, log.RequestIDFromContext(req.Context())).
				Str("method", req.Method).
				Str("route", c.Path()).
				Int("status", c.Response().Status).
				Dur("duration", time.Since(start)).
				Msg("request served")
			return nil
		}
	}
}
