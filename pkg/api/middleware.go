package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cuemby/procpool/pkg/log"
	"github.com/cuemby/procpool/pkg/metrics"
)

// requestLogger logs every request and feeds the API request metrics.
// Client errors log at warn, server errors at error, the rest at debug.
func requestLogger() gin.HandlerFunc {
	logger := log.WithComponent("api")
	return func(c *gin.Context) {
		timer := metrics.NewTimer()
		c.Next()

		status := c.Writer.Status()
		metrics.APIRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, c.Request.Method)

		evt := logger.Debug()
		switch {
		case status >= 500:
			evt = logger.Error()
		case status >= 400:
			evt = logger.Warn()
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("elapsed", timer.Duration()).
			Msg("request handled")
	}
}
