// Package ops serves the internal operations endpoints on a separate listener
// that is not exposed publicly.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tradeledger/internal/domain"
	"tradeledger/internal/logger"
	"tradeledger/internal/repository"
	"tradeledger/internal/usecase"
)

// Pinger reports database reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Importer is the history import use case
type Importer interface {
	Import(ctx context.Context, days int) (*usecase.ImportResult, error)
	LastRun(ctx context.Context) (time.Time, *usecase.ImportResult, error)
}

// OpenPositions lists positions that are still open
type OpenPositions interface {
	GetOpenPositions(ctx context.Context) ([]*domain.Position, error)
}

// Settings lists the stored operator settings
type Settings interface {
	GetAll(ctx context.Context) ([]*repository.SystemSetting, error)
}

// RouterConfig holds the ops router dependencies
type RouterConfig struct {
	DB         Pinger
	Importer   Importer
	ImportDays int // window of a triggered import
	Positions  OpenPositions
	Settings   Settings
}

// NewRouter builds the operations router
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", handleHealth(cfg.DB))
	r.Post("/import/trigger", handleTriggerImport(cfg.Importer, cfg.ImportDays))
	r.Get("/import/status", handleImportStatus(cfg.Importer))
	r.Get("/positions/open", handleOpenPositions(cfg.Positions))
	r.Get("/settings", handleSettings(cfg.Settings))

	return r
}

func handleHealth(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "healthy"
		if err := db.Ping(ctx); err != nil {
			dbStatus = "unhealthy"
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "healthy",
			"service":   "tradeledger-ops",
			"database":  dbStatus,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

func handleTriggerImport(importer Importer, days int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.WithComponent("ops")
		log.Info("manual history import triggered")

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if _, err := importer.Import(ctx, days); err != nil {
				log.WithError(err).Error("manual history import failed")
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"message": "History import triggered",
			"status":  "processing",
		})
	}
}

func handleImportStatus(importer Importer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		at, result, err := importer.LastRun(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		body := map[string]interface{}{"last_run": nil}
		if !at.IsZero() {
			body["last_run"] = at.Format(time.RFC3339)
		}
		if result != nil {
			body["imported"] = result.Imported
			body["skipped"] = result.Skipped
			body["total"] = result.Total
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func handleOpenPositions(positions OpenPositions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		open, err := positions.GetOpenPositions(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if open == nil {
			open = []*domain.Position{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"positions": open, "count": len(open)})
	}
}

func handleSettings(settings Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := settings.GetAll(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if all == nil {
			all = []*repository.SystemSetting{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"settings": all})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
