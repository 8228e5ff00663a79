package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request and turns panics into 500
// responses.  Server errors are logged at ERROR, client errors at WARN and
// everything else at INFO.
func RequestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			start := time.Now()
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
					log.WithFields(requestFields(c, start)).WithField("stack", string(debug.Stack())).Error(err)
					c.Error(echo.NewHTTPError(http.StatusInternalServerError, "internal server error"))
					err = nil
					return
				}
			}()

			if err = next(c); err != nil {
				c.Error(err)
			}
			entry := log.WithFields(requestFields(c, start))
			if err != nil {
				entry = entry.WithError(err)
			}
			switch status := c.Response().Status; {
			case status >= http.StatusInternalServerError:
				entry.Error("request failed")
			case status >= http.StatusBadRequest:
				entry.Warn("request rejected")
			default:
				entry.Info("request")
			}
			return nil
		}
	}
}

func requestFields(c echo.Context, start time.Time) logrus.Fields {
	r := c.Request()
	f := logrus.Fields{
		"method":    r.Method,
		"path":      r.URL.Path,
		"status":    c.Response().Status,
		"client_ip": c.RealIP(),
		"latency":   time.Since(start).String(),
	}
	if id := r.Header.Get(echo.HeaderXRequestID); id != "" {
		f["request_id"] = id
	}
	if caller := CallerFrom(c); caller.ID != "" {
		f["caller"] = caller.ID
		f["role"] = string(caller.Role)
	}
	return f
}
