package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/figuregen-backend/internal/observability"
)

var unmeteredRoutes = map[string]bool{
	"/metrics":     true,
	"/healthcheck": true,
}

// Metrics records request count and latency per route template. Probe
// routes are not counted.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || unmeteredRoutes[c.FullPath()] {
			c.Next()
			return
		}
		start := time.Now()
		m.InflightInc()
		defer m.InflightDec()

		c.Next()
		m.ObserveAPI(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
