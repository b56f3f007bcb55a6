package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/revcam/revcam/internal/app"
	"github.com/revcam/revcam/internal/config"
	"github.com/revcam/revcam/internal/wifi"
)

func getConfig(store *config.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := store.Load()
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("load record")
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "config unavailable"})
			return
		}
		c.JSON(http.StatusOK, rec.Public())
	}
}

// configPatch is the POST /api/config body: a partial video patch. Fields are
// kept untyped so each one can be coerced (or rejected) independently.
type configPatch struct {
	Video map[string]any `json:"video"`
}

func postConfig(d *app.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch configPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid json"})
			return
		}
		rep, err := d.Apply(patch.Video)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("apply patch")
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "config write failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":              true,
			"changed":         rep.Changed,
			"live_applied_to": rep.LiveAppliedTo,
			"config":          rep.Config,
		})
	}
}

func wifiStatus(m *wifi.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := m.Status(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"ok": true, "status": st, "ap_state": wifi.ReadState()})
	}
}

func wifiScan(m *wifi.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		nets, err := m.Scan(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "networks": nets})
	}
}

func wifiStartAP(m *wifi.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			SSID string `json:"ssid"`
		}
		_ = c.ShouldBindJSON(&req)
		if req.SSID == "" {
			req.SSID = "RevCam"
		}
		res, err := m.StartOpenAP(c.Request.Context(), req.SSID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func wifiStopAP(m *wifi.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.StopAP(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func wifiConnect(m *wifi.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			SSID     string `json:"ssid" binding:"required"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "ssid required"})
			return
		}
		res, err := m.Connect(c.Request.Context(), req.SSID, req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
