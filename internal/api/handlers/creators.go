package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tipkoro/internal/core"
	"tipkoro/internal/creators"
	"tipkoro/internal/types"
)

// CreatorService reads the creator directory, creator pages and received tips.
type CreatorService interface {
	Directory(ctx context.Context, search string, limit int) ([]creators.DirectoryEntry, error)
	PublicPage(ctx context.Context, username string) (*creators.Page, error)
	ReceivedTips(ctx context.Context, actor types.Actor, limit int) ([]types.Tip, error)
	FeedChannel(ctx context.Context, actor types.Actor) (string, error)
}

// TipFeed upgrades a request into a live tip subscription for one creator.
type TipFeed interface {
	Serve(w http.ResponseWriter, r *http.Request, creatorID string)
}

// CreatorHandler serves public creator pages and a creator's own tips.
type CreatorHandler struct {
	service CreatorService
	feed    TipFeed
	logger  *slog.Logger
}

// NewCreatorHandler creates a CreatorHandler.
func NewCreatorHandler(service CreatorService, feed TipFeed, l *slog.Logger) *CreatorHandler {
	if l == nil {
		l = slog.Default()
	}
	return &CreatorHandler{service: service, feed: feed, logger: l}
}

// RegisterPublicRoutes mounts the creator directory and public creator pages.
func (h *CreatorHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/creators", h.ListCreators)
	r.Get("/creators/{username}", h.GetPage)
}

// RegisterRoutes mounts the creator's own tip endpoints.
func (h *CreatorHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me/tips", h.ListTips)
	r.Get("/me/tips/live", h.LiveTips)
}

// ListCreators handles GET /v1/creators?q=&limit=N.
func (h *CreatorHandler) ListCreators(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	list, err := h.service.Directory(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, list)
}

// GetPage handles GET /v1/creators/{username}.
func (h *CreatorHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.PublicPage(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, page)
}

// ListTips handles GET /v1/me/tips?limit=N.
func (h *CreatorHandler) ListTips(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	tips, err := h.service.ReceivedTips(r.Context(), actor, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, tips)
}

// LiveTips handles GET /v1/me/tips/live, upgrading to a websocket that
// streams every tip the caller receives while connected.
func (h *CreatorHandler) LiveTips(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	channel, err := h.service.FeedChannel(r.Context(), actor)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.DebugContext(r.Context(), "live tip feed subscribed", "creator_id", channel)
	h.feed.Serve(w, r, channel)
}

// limitParam reads an optional positive ?limit. Zero means the service default.
func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidFormat, "limit must be a positive integer", err))
		return 0, false
	}
	return n, true
}
