package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/carelink/callsignal/internal/adapters/signal"
	"github.com/carelink/callsignal/internal/config"
	"github.com/carelink/callsignal/internal/relay"
	"github.com/carelink/callsignal/internal/rtc"
)

func SetupRouter(ctx context.Context, cfg *config.Config, rly *relay.Relay) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ctl := signal.NewController(cfg, rly)

	api := r.Group("/api")
	api.GET("/ws/signal", func(c *gin.Context) {
		ctl.HandleWS(ctx, c)
	})
	api.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": rly.Sessions()})
	})
	api.GET("/ice", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": rtc.ICEServers(cfg.ICEServerURLs)})
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
