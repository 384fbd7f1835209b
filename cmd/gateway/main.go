// Command gateway runs the EPortal message-transformation gateway.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bne-group/eportal-gateway/internal/app"
	"github.com/bne-group/eportal-gateway/internal/config"
	"github.com/bne-group/eportal-gateway/internal/gwlog"
	"github.com/bne-group/eportal-gateway/internal/metrics"
	"github.com/bne-group/eportal-gateway/internal/registry"
)

var healthGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "eportal_gateway",
	Subsystem: "process",
	Name:      "health_status",
	Help:      "Health status of the gateway process (1=healthy).",
})

func main() {
	cfg := config.GetInstance()
	metrics.MustRegisterAll()
	healthGauge.Set(1)

	schemaRoot := os.Getenv("EPORTAL_GATEWAY_SCHEMA_ROOT")
	if schemaRoot == "" {
		schemaRoot = "schemas"
	}
	reg := registry.New(schemaRoot, nil)

	gw, err := app.New(cfg, reg)
	if err != nil {
		gwlog.L().Fatalw("failed to build gateway topology", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw.Start(ctx)
	defer gw.Stop()

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	httpAddr := os.Getenv("EPORTAL_GATEWAY_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	srv := &http.Server{Addr: httpAddr, Handler: router}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			gwlog.L().Fatalw("http server exited", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	healthGauge.Set(0)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		gwlog.L().Errorw("shutdown http server", "error", err)
	}
}
