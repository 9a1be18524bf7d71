package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/shelfsync/internal/cache"
	"github.com/parsascontentcorner/shelfsync/internal/models"
	"github.com/parsascontentcorner/shelfsync/internal/store"
	"github.com/parsascontentcorner/shelfsync/internal/syncer"
)

// SyncController starts manual passes and reports which sources are busy
type SyncController interface {
	Trigger(service models.Service) error
	Running() map[models.Service]bool
}

// StatusLister returns the bookkeeping row of every source
type StatusLister interface {
	List(ctx context.Context) ([]models.SyncStatus, error)
}

// CacheStats reports cache utilization
type CacheStats interface {
	Stats() cache.Stats
}

// Deps are the components the API reads from
type Deps struct {
	Records store.Repository[models.Record]
	Games   store.Repository[models.BoardGame]
	Books   store.Repository[models.Book]
	Sync    SyncController
	Status  StatusLister
	Cache   CacheStats

	// ImageDir is served under ImagePrefix when both are set
	ImageDir    string
	ImagePrefix string
}

// Handlers serves the catalog, sync control and cache endpoints
type Handlers struct {
	deps   Deps
	logger *zap.Logger
}

// NewHandlers creates the HTTP handlers
func NewHandlers(deps Deps, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{deps: deps, logger: logger}
}

// Routes builds the router
func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestMiddleware(h.logger))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/records", listHandler(h, h.deps.Records, "artist"))
		r.Get("/games", listHandler(h, h.deps.Games, "name"))
		r.Get("/books", listHandler(h, h.deps.Books, "title"))

		r.Get("/sync/status", h.SyncStatus)
		r.Post("/sync/{service}", h.TriggerSync)

		r.Get("/cache/stats", h.CacheStats)
	})

	if h.deps.ImageDir != "" && h.deps.ImagePrefix != "" {
		prefix := "/" + strings.Trim(h.deps.ImagePrefix, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(h.deps.ImageDir))))
	}

	return r
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type listResponse[E any] struct {
	Items []E `json:"items"`
	Count int `json:"count"`
}

// listHandler serves one catalog collection, optionally filtered with
// ?list=collection or ?list=wishlist
func listHandler[E store.Entity](h *Handlers, repo store.Repository[E], orderColumn string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			h.respondError(w, http.StatusNotFound, "source not configured", nil)
			return
		}

		var cond store.Conditions
		switch list := r.URL.Query().Get("list"); list {
		case "":
		case "collection":
			cond = store.Conditions{"in_collection": true}
		case "wishlist":
			cond = store.Conditions{"in_wishlist": true}
		default:
			h.respondError(w, http.StatusBadRequest, "list must be collection or wishlist", nil)
			return
		}

		items, err := repo.FindMany(r.Context(), cond, &store.OrderBy{Column: orderColumn})
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, "failed to load "+store.CollectionOf[E](), err)
			return
		}
		if items == nil {
			items = []E{}
		}
		h.respondJSON(w, http.StatusOK, listResponse[E]{Items: items, Count: len(items)})
	}
}

type syncStatusView struct {
	Service    string     `json:"service"`
	LastSyncAt *time.Time `json:"last_sync_at"`
	InProgress bool       `json:"in_progress"`
	Running    bool       `json:"running"`
	Error      string     `json:"error,omitempty"`
}

// SyncStatus handles GET /api/sync/status
func (h *Handlers) SyncStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.deps.Status.List(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to load sync status", err)
		return
	}

	var running map[models.Service]bool
	if h.deps.Sync != nil {
		running = h.deps.Sync.Running()
	}

	views := make([]syncStatusView, 0, len(statuses))
	for _, s := range statuses {
		v := syncStatusView{
			Service:    s.Service,
			InProgress: s.InProgress,
			Running:    running[models.Service(s.Service)],
		}
		if s.LastSyncAt.Valid {
			t := s.LastSyncAt.Time
			v.LastSyncAt = &t
		}
		if s.Failed() {
			v.Error = s.ErrorMessage.String
		}
		views = append(views, v)
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"services": views})
}

// TriggerSync handles POST /api/sync/{service}
func (h *Handlers) TriggerSync(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "service")
	service, ok := models.ParseService(name)
	if !ok || h.deps.Sync == nil {
		h.respondError(w, http.StatusNotFound, "unknown service: "+name, nil)
		return
	}

	err := h.deps.Sync.Trigger(service)
	switch {
	case err == nil:
		h.logger.Info("Manual sync triggered", zap.String("service", name))
		h.respondJSON(w, http.StatusAccepted, map[string]string{"service": name, "status": "started"})
	case errors.Is(err, syncer.ErrSyncInProgress):
		h.respondError(w, http.StatusConflict, "sync already in progress for "+name, nil)
	case errors.Is(err, syncer.ErrUnknownService):
		h.respondError(w, http.StatusNotFound, "service not configured: "+name, nil)
	case errors.Is(err, syncer.ErrSchedulerStopped):
		h.respondError(w, http.StatusServiceUnavailable, "shutting down", nil)
	default:
		h.respondError(w, http.StatusInternalServerError, "failed to trigger sync", err)
	}
}

// CacheStats handles GET /api/cache/stats
func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		h.respondJSON(w, http.StatusOK, cache.Stats{})
		return
	}
	h.respondJSON(w, http.StatusOK, h.deps.Cache.Stats())
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		h.logger.Error("Failed to marshal JSON response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("Failed to write JSON response", zap.Error(err))
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		h.logger.Error("API error", zap.String("message", message), zap.Error(err))
	}
	h.respondJSON(w, status, map[string]string{"error": message})
}
