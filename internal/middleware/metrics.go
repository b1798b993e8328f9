package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"urbansprout/internal/monitor"
)

// Metrics records request counts and latencies per route. The route
// template is used as the path label so parameterized routes do not
// explode label cardinality.
func Metrics(collector *monitor.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		collector.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()))
		collector.RecordHTTPDuration(c.Request.Method, path, time.Since(start))
	}
}
