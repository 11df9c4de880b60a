package metrics

import (
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is the running build's version, injectable at link time.
var Version = "dev"

// Init records static process metadata; called once at composition-root start.
func Init(service string) {
	AppInfo.WithLabelValues(Version, runtime.Version(), service).Set(1)
	AppStartTime.Set(float64(time.Now().Unix()))
}

// Handler returns the Prometheus scrape endpoint handler. Grounded directly on
// metrics/handler.go's Handler.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(
		prometheus.DefaultGatherer,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)

	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
