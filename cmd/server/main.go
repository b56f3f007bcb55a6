package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/revcam/revcam/internal/adapters/http"
	"github.com/revcam/revcam/internal/adapters/rtc"
	sig "github.com/revcam/revcam/internal/adapters/signal"
	"github.com/revcam/revcam/internal/app"
	"github.com/revcam/revcam/internal/config"
	"github.com/revcam/revcam/internal/core"
	"github.com/revcam/revcam/internal/wifi"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return
	}

	store := config.NewStore(cfg.RecordPath)
	rec, err := store.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load camera record")
		return
	}

	registry := app.NewRegistry(app.ParseViewerMode(cfg.ViewerMode))
	dispatcher := app.NewDispatcher(store, registry)

	role := sig.ParseRole(cfg.Role)
	offerer := role == sig.RoleOfferer
	newMedia := func() (core.MediaSession, error) {
		// Sessions snapshot the record at build time: a fresh load here is
		// what makes restart-required fields take effect on reconnect.
		snap, err := store.Load()
		if err != nil {
			return nil, err
		}
		src, err := rtc.NewIVFSource(cfg.VideoSource, snap.Video.FPS)
		if err != nil {
			return nil, err
		}
		return rtc.NewBroadcaster(snap, src, offerer)
	}

	wm := wifi.NewManager()
	if cfg.WifiWatchdog {
		go wm.Watchdog(ctx, cfg.WifiDelay, cfg.WifiAPSSID)
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Store:      store,
		Dispatcher: dispatcher,
		Signaling:  sig.NewController(role, registry, newMedia),
		Wifi:       wm,
	})

	addr := fmt.Sprintf("%s:%d", rec.Server.Host, rec.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("role", cfg.Role).Str("viewer_mode", cfg.ViewerMode).Msg("RevCam server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
