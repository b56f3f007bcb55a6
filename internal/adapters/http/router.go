package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/revcam/revcam/internal/adapters/signal"
	"github.com/revcam/revcam/internal/app"
	"github.com/revcam/revcam/internal/config"
	"github.com/revcam/revcam/internal/wifi"
)

// Deps is everything the router wires together.
type Deps struct {
	Store      *config.Store
	Dispatcher *app.Dispatcher
	Signaling  *signal.Controller
	Wifi       *wifi.Manager
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.App, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RevCamSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/settings", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/settings.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.GET("/config", getConfig(deps.Store))
	api.POST("/config", postConfig(deps.Dispatcher))

	wf := api.Group("/wifi")
	wf.GET("/status", wifiStatus(deps.Wifi))
	wf.GET("/scan", wifiScan(deps.Wifi))
	wf.POST("/ap/start", wifiStartAP(deps.Wifi))
	wf.POST("/ap/stop", wifiStopAP(deps.Wifi))
	wf.POST("/connect", wifiConnect(deps.Wifi))

	r.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		deps.Signaling.HandleSignal(ctx, c)
	})

	return r
}
