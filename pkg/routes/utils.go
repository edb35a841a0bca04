package routes

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/landslide-monitor/pipeline/pkg/helpers"
	"github.com/sirupsen/logrus"
)

func NewGinEngine(logger *logrus.Entry) *gin.Engine {
	gin.ForceConsoleColor()
	gin.DebugPrintRouteFunc = func(httpMethod, absolutePath, handlerName string, nuHandlers int) {
		logger.Debugf("Endpoint: %-6s %s", httpMethod, absolutePath)
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"*"}

	router := gin.New()
	router.Use(
		cors.New(corsConfig),
		useTraceID(),
		useRequestLogger(logger),
	)

	return router
}

// useTraceID seeds each request context with a trace id so every log line
// emitted while serving the request carries it.
func useTraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := strings.TrimSpace(c.GetHeader("x-trace-id"))
		if traceID == "" {
			traceID = helpers.NewTraceID()
		}

		ctx := context.WithValue(c.Request.Context(), helpers.CtxTraceID, traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(string(helpers.CtxTraceID), traceID)
		c.Next()
	}
}

func useRequestLogger(logger *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		lEntry := helpers.ConfigureLogger(c.Request.Context(), logger)
		lEntry.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request served")
	}
}

func RequestTraceID(c *gin.Context) string {
	if v, ok := c.Get(string(helpers.CtxTraceID)); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return helpers.NewTraceID()
}

func RunHttpRouter(logger *logrus.Entry, routerEngine http.Handler, httpServerCfg config.HttpServer) (int, error) {
	mainLogger := logger
	if !httpServerCfg.HealthCheckLogging {
		nooutLogger := logrus.New()
		nooutLogger.Out = io.Discard

		mainLogger = nooutLogger.WithField("", "")
	}

	healthEngine := NewGinEngine(mainLogger)
	healthHandler := func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	}
	healthEngine.GET("/health", healthHandler)
	healthEngine.POST("/health", healthHandler)

	mainEngine := http.NewServeMux()
	mainEngine.Handle("/", routerEngine)
	mainEngine.Handle("/health", healthEngine)

	addr := fmt.Sprintf("%s:%d", httpServerCfg.ListenAddress, httpServerCfg.Port)

	t := time.Second * 10
	server := http.Server{
		Addr:         addr,
		Handler:      mainEngine,
		ReadTimeout:  t,
		WriteTimeout: t,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return -1, err
	}

	usedPort := listener.Addr().(*net.TCPAddr).Port

	wg := new(sync.WaitGroup)
	wg.Add(1)
	startLaunching := func() {
		wg.Done()
	}

	httpErrChan := make(chan error, 1)

	go func() {
		if httpServerCfg.Protocol == config.HTTPS {
			logger.Infof("HTTPS server listening on %s:%d", httpServerCfg.ListenAddress, usedPort)
			startLaunching()
			err := server.ServeTLS(listener, httpServerCfg.CertFile, httpServerCfg.KeyFile)
			if err != nil {
				logger.Errorf("could not start https server: %s", err)
				httpErrChan <- err
			}
		} else {
			logger.Infof("HTTP server listening on %s:%d", httpServerCfg.ListenAddress, usedPort)
			startLaunching()
			err := server.Serve(listener)
			if err != nil {
				logger.Errorf("could not start http server: %s", err)
				httpErrChan <- err
			}
		}
	}()

	wg.Wait()

	select {
	case err := <-httpErrChan:
		return -1, err
	case <-time.After(50 * time.Millisecond):
	}

	return usedPort, nil
}
