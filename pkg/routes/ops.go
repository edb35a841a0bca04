package routes

import (
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// RunOpsServer starts the sidecar endpoint every daemon exposes for probes
// and scraping: /healthz, /readyz and /metrics. Returns the bound port.
func RunOpsServer(logger *logrus.Entry, cfg config.OpsServer, registry *prometheus.Registry, ready func() bool) (int, error) {
	if !cfg.Enabled {
		return -1, nil
	}

	engine := NewGinEngine(logger)
	engine.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	})
	engine.GET("/readyz", func(ctx *gin.Context) {
		if ready != nil && !ready() {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.Port))
	if err != nil {
		return -1, err
	}

	usedPort := listener.Addr().(*net.TCPAddr).Port

	go func() {
		if err := http.Serve(listener, engine); err != nil {
			logger.Errorf("ops server stopped: %s", err)
		}
	}()

	logger.Infof("ops server listening on %s:%d", cfg.ListenAddress, usedPort)
	return usedPort, nil
}
