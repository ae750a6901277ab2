package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/valuetrack/valuetrack/internal/platform/httpx"
	"github.com/valuetrack/valuetrack/internal/shared"
)

// Middleware is the authorization middleware contract used by the handler.
type Middleware interface {
	RequireAny(perms ...string) func(http.Handler) http.Handler
}

// Handler exposes the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: authz}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermSecurityAudit))
		r.Get("/", h.timeline)
		r.Get("/export", h.export)
	})
}

type entryResponse struct {
	ID            int64          `json:"id"`
	ActionType    string         `json:"action_type"`
	RoleID        *int64         `json:"role_id,omitempty"`
	UserID        *int64         `json:"user_id,omitempty"`
	PermissionKey string         `json:"permission_key,omitempty"`
	OldValue      map[string]any `json:"old_value,omitempty"`
	NewValue      map[string]any `json:"new_value,omitempty"`
	ChangedBy     int64          `json:"changed_by"`
	Reason        string         `json:"reason,omitempty"`
	Success       bool           `json:"success"`
	At            time.Time      `json:"at"`
}

type timelineResponse struct {
	Entries  []entryResponse `json:"entries"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	HasNext  bool            `json:"has_next"`
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters := parseFilters(r)
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{
		Entries:  toResponses(result.Rows),
		Page:     result.Paging.Page,
		PageSize: result.Paging.PageSize,
		HasNext:  result.Paging.HasNext,
	})
}

type exportResponse struct {
	ExportID    string          `json:"export_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Entries     []entryResponse `json:"entries"`
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Export(r.Context(), parseFilters(r))
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	exportID := uuid.NewString()
	h.logger.Info("audit export generated",
		slog.String("export_id", exportID), slog.Int("entries", len(rows)))
	httpx.JSON(w, http.StatusOK, exportResponse{
		ExportID:    exportID,
		GeneratedAt: time.Now().UTC(),
		Entries:     toResponses(rows),
	})
}

func toResponses(rows []Entry) []entryResponse {
	entries := make([]entryResponse, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, entryResponse{
			ID:            row.ID,
			ActionType:    row.ActionType,
			RoleID:        row.RoleID,
			UserID:        row.UserID,
			PermissionKey: row.PermissionKey,
			OldValue:      row.OldValue,
			NewValue:      row.NewValue,
			ChangedBy:     row.ChangedBy,
			Reason:        row.Reason,
			Success:       row.Success,
			At:            row.At,
		})
	}
	return entries
}

func parseFilters(r *http.Request) TimelineFilters {
	q := r.URL.Query()
	filters := TimelineFilters{
		Action:   q.Get("action"),
		Actor:    parseInt(q.Get("actor")),
		RoleID:   parseInt(q.Get("role_id")),
		UserID:   parseInt(q.Get("user_id")),
		Page:     int(parseInt(q.Get("page"))),
		PageSize: int(parseInt(q.Get("page_size"))),
	}
	if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filters.From = from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filters.To = to
	}
	return filters
}

func parseInt(value string) int64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
