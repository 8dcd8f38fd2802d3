package web

import (
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// SentryMiddleware captures errors that happened during request handling
// and reports them to Sentry
func SentryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Client errors are not worth a report.
		if len(c.Errors) == 0 || c.Writer.Status() < http.StatusInternalServerError {
			return
		}
		for _, err := range c.Errors {
			sentry.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("method", c.Request.Method)
				scope.SetTag("path", c.FullPath())
				scope.SetTag("status", http.StatusText(c.Writer.Status()))
				scope.SetExtra("latency", time.Since(start).String())
				scope.SetRequest(c.Request)
				sentry.CaptureException(err.Err)
			})
		}
	}
}

// LoggerMiddleware logs every request with logrus.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithError(c.Errors.Last().Err)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	}
}
