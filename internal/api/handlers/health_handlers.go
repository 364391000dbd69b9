package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/cloudvend/topup-bot/internal/infrastructure/config"
	"github.com/cloudvend/topup-bot/internal/infrastructure/database"
)

// ReadyFunc reports whether the Discord gateway connection is up
type ReadyFunc func() bool

// HealthHandlers exposes liveness and configuration probes
type HealthHandlers struct {
	db       *sqlx.DB
	cfg      *config.Config
	botReady ReadyFunc
}

// NewHealthHandlers creates new health handlers
func NewHealthHandlers(db *sqlx.DB, cfg *config.Config, botReady ReadyFunc) *HealthHandlers {
	return &HealthHandlers{
		db:       db,
		cfg:      cfg,
		botReady: botReady,
	}
}

// HandleHealth reports service, database, and bot gateway health. Always
// answers 200; the payment gateway only needs the webhook path reachable,
// degraded dependencies are visible in the body.
func (h *HealthHandlers) HandleHealth(c *gin.Context) {
	dbStatus := "ok"
	overall := "ok"
	if err := database.HealthCheck(h.db); err != nil {
		dbStatus = "unavailable"
		overall = "degraded"
	}

	botStatus := "ready"
	if h.botReady == nil || !h.botReady() {
		botStatus = "not_ready"
		overall = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    overall,
		"database":  dbStatus,
		"bot":       botStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleTest echoes the non-secret runtime configuration. Useful when
// pointing the gateway dashboard at a fresh deployment.
func (h *HealthHandlers) HandleTest(c *gin.Context) {
	botConnected := h.botReady != nil && h.botReady()
	c.JSON(http.StatusOK, gin.H{
		"service":              "topup-bot",
		"environment":          h.cfg.Environment,
		"midtrans_environment": h.cfg.Midtrans.Environment,
		"webhook_path":         "/webhook/midtrans",
		"bot_connected":        botConnected,
		"server_time":          time.Now().UTC().Format(time.RFC3339),
	})
}
