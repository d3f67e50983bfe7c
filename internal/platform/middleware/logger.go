package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RunIDFunc reports the id of the pipeline run whose results are being
// served, or "" while no run has completed.
type RunIDFunc func() string

// Logger writes one structured line per request, tagged with the run that
// answered it. Health checks and metrics scrapes log at debug level; client errors
// at warn; server errors at error.
func Logger(logger zerolog.Logger, runID RunIDFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)
			status := statusOf(c, err)

			var evt *zerolog.Event
			switch {
			case status >= http.StatusInternalServerError:
				evt = logger.Error().Err(err)
			case status >= http.StatusBadRequest:
				evt = logger.Warn().Err(err)
			case isHealthCheck(req.URL.Path):
				evt = logger.Debug()
			default:
				evt = logger.Info()
			}

			if rid, _ := c.Get("request_id").(string); rid != "" {
				evt = evt.Str("request_id", rid)
			}
			if runID != nil {
				if id := runID(); id != "" {
					evt = evt.Str("run_id", id)
				}
			}
			evt.
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("route", c.Path()).
				Int("status", status).
				Int64("bytes", c.Response().Size).
				Dur("latency", time.Since(start)).
				Msg("request")

			return err
		}
	}
}

// statusOf returns the status the error handler will write for err. The
// response status is still unset when a handler returns an error.
func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func isHealthCheck(path string) bool {
	return strings.HasPrefix(path, "/health") || path == "/metrics"
}
