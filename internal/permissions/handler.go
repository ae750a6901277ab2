package permissions

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/valuetrack/valuetrack/internal/platform/httpx"
	"github.com/valuetrack/valuetrack/internal/shared"
)

// Middleware is the authorization middleware contract used by the handler.
type Middleware interface {
	RequireAny(perms ...string) func(http.Handler) http.Handler
}

// Handler exposes the permission catalog.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: authz}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermPermissionsView, shared.PermRolesView))
		r.Get("/", h.listByCategory)
	})
}

type permissionResponse struct {
	Key              string `json:"key"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	Category         string `json:"category"`
	DangerLevel      int    `json:"danger_level"`
	RequiresApproval bool   `json:"requires_approval"`
	IsSystem         bool   `json:"is_system"`
}

type categoryResponse struct {
	Category    string               `json:"category"`
	Title       string               `json:"title"`
	Permissions []permissionResponse `json:"permissions"`
}

func (h *Handler) listByCategory(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListByCategory(r.Context())
	if err != nil {
		h.logger.Error("list permission catalog", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	resp := make([]categoryResponse, 0, len(groups))
	for _, group := range groups {
		perms := make([]permissionResponse, 0, len(group.Permissions))
		for _, p := range group.Permissions {
			perms = append(perms, permissionResponse{
				Key:              p.Key,
				Name:             p.Name,
				Description:      p.Description,
				Category:         p.Category,
				DangerLevel:      p.DangerLevel,
				RequiresApproval: p.RequiresApproval,
				IsSystem:         p.IsSystem,
			})
		}
		resp = append(resp, categoryResponse{Category: group.Category, Title: group.Title, Permissions: perms})
	}
	httpx.JSON(w, http.StatusOK, resp)
}
