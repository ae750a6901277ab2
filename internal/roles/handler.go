package roles

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/valuetrack/valuetrack/internal/platform/httpx"
	"github.com/valuetrack/valuetrack/internal/shared"
)

// Middleware is the authorization middleware contract used by read routes.
// Mutations re-check authority inside the service against the live actor.
type Middleware interface {
	RequireAny(perms ...string) func(http.Handler) http.Handler
}

// EffectiveResolver answers what a user can do right now.
type EffectiveResolver interface {
	EffectivePermissions(ctx context.Context, userID int64) (map[string]struct{}, error)
}

// Handler exposes the role hierarchy over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	resolver EffectiveResolver
	authz    Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver EffectiveResolver, authz Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		resolver: resolver,
		authz:    authz,
		validate: validator.New(),
	}
}

// MountRoutes registers role management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermRolesView, shared.PermRolesEdit))
		r.Get("/", h.listRoles)
		r.Get("/hierarchy", h.hierarchy)
		r.Get("/templates", h.listTemplates)
		r.Get("/{roleID}", h.getRole)
		r.Get("/{roleID}/ancestors", h.ancestors)
		r.Get("/{roleID}/descendants", h.descendants)
		r.Get("/{roleID}/stats", h.stats)
		r.Get("/{roleID}/permissions", h.listGrants)
	})
	r.Post("/", h.createRole)
	r.Post("/templates/{templateName}/apply", h.applyTemplate)
	r.Put("/{roleID}/parent", h.reparentRole)
	r.Post("/{roleID}/deactivate", h.deactivateRole)
	r.Delete("/{roleID}", h.deleteRole)
	r.Post("/{roleID}/permissions", h.grantPermission)
	r.Delete("/{roleID}/permissions/{permissionKey}", h.revokePermission)
}

// MountUserRoutes registers the assignment routes under the /users prefix.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(shared.PermRolesView, shared.PermRolesAssign))
		r.Get("/{userID}/roles", h.listUserRoles)
		r.Get("/{userID}/permissions", h.effectivePermissions)
	})
	r.Post("/{userID}/roles", h.assignRole)
	r.Delete("/{userID}/roles/{roleID}", h.removeRole)
}

type roleResponse struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	DisplayName        string     `json:"display_name"`
	Description        string     `json:"description,omitempty"`
	ParentRoleID       *int64     `json:"parent_role_id"`
	Level              int        `json:"level"`
	Color              string     `json:"color,omitempty"`
	Icon               string     `json:"icon,omitempty"`
	Priority           int        `json:"priority"`
	IsSystem           bool       `json:"is_system"`
	IsActive           bool       `json:"is_active"`
	MaxUsers           *int32     `json:"max_users,omitempty"`
	AutoAssign         bool       `json:"auto_assign"`
	InheritPermissions bool       `json:"inherit_permissions"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:                 role.ID,
		Name:               role.Name,
		DisplayName:        role.DisplayName,
		Description:        role.Description,
		ParentRoleID:       role.ParentRoleID,
		Level:              role.Level,
		Color:              role.Color,
		Icon:               role.Icon,
		Priority:           role.Priority,
		IsSystem:           role.IsSystem,
		IsActive:           role.IsActive,
		MaxUsers:           role.MaxUsers,
		AutoAssign:         role.AutoAssign,
		InheritPermissions: role.InheritPermissions,
		CreatedAt:          role.CreatedAt,
		UpdatedAt:          role.UpdatedAt,
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrExpired):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	case errors.Is(err, ErrInsufficientAuthority):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrConflict), errors.Is(err, ErrCycle), errors.Is(err, ErrUserCap):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrRoleInactive), errors.Is(err, ErrSystemRole), errors.Is(err, ErrRoleReferenced):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		h.logger.Error("role request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity missing")
		return 0, false
	}
	return actorID, true
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrValidation
	}
	return id, nil
}

type createRoleRequest struct {
	Name               string         `json:"name" validate:"required,min=2,max=64"`
	DisplayName        string         `json:"display_name" validate:"max=128"`
	Description        string         `json:"description" validate:"max=1024"`
	ParentRoleID       *int64         `json:"parent_role_id" validate:"omitempty,gt=0"`
	Color              string         `json:"color" validate:"omitempty,hexcolor"`
	Icon               string         `json:"icon" validate:"max=64"`
	Priority           int            `json:"priority" validate:"gte=0,lte=100"`
	MaxUsers           *int32         `json:"max_users" validate:"omitempty,gt=0"`
	AutoAssign         bool           `json:"auto_assign"`
	InheritPermissions bool           `json:"inherit_permissions"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), actorID, CreateRoleInput{
		Name:               req.Name,
		DisplayName:        req.DisplayName,
		Description:        req.Description,
		ParentRoleID:       req.ParentRoleID,
		Color:              req.Color,
		Icon:               req.Icon,
		Priority:           req.Priority,
		MaxUsers:           req.MaxUsers,
		AutoAssign:         req.AutoAssign,
		InheritPermissions: req.InheritPermissions,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		resp = append(resp, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	role, err := h.service.GetRole(r.Context(), roleID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

type nodeResponse struct {
	Role     roleResponse   `json:"role"`
	Children []nodeResponse `json:"children"`
}

func toNodeResponse(node *Node) nodeResponse {
	children := make([]nodeResponse, 0, len(node.Children))
	for _, child := range node.Children {
		children = append(children, toNodeResponse(child))
	}
	return nodeResponse{Role: toRoleResponse(node.Role), Children: children}
}

func (h *Handler) hierarchy(w http.ResponseWriter, r *http.Request) {
	forest, err := h.service.Hierarchy(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := make([]nodeResponse, 0, len(forest))
	for _, root := range forest {
		resp = append(resp, toNodeResponse(root))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) ancestors(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	chain, err := h.service.GetAncestors(r.Context(), roleID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := make([]roleResponse, 0, len(chain))
	for _, role := range chain {
		resp = append(resp, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) descendants(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	subtree, err := h.service.GetDescendants(r.Context(), roleID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := make([]roleResponse, 0, len(subtree))
	for _, role := range subtree {
		resp = append(resp, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type statsResponse struct {
	Role           roleResponse `json:"role"`
	ActiveUsers    int64        `json:"active_users"`
	GrantedKeys    int          `json:"granted_keys"`
	DirectChildren int          `json:"direct_children"`
	AncestorDepth  int          `json:"ancestor_depth"`
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	stats, err := h.service.RoleStatistics(r.Context(), roleID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, statsResponse{
		Role:           toRoleResponse(stats.Role),
		ActiveUsers:    stats.ActiveUsers,
		GrantedKeys:    stats.GrantedKeys,
		DirectChildren: stats.DirectChildren,
		AncestorDepth:  stats.AncestorDepth,
	})
}

type grantResponse struct {
	PermissionKey string         `json:"permission_key"`
	Conditions    map[string]any `json:"conditions,omitempty"`
	GrantedBy     int64          `json:"granted_by"`
	GrantedAt     time.Time      `json:"granted_at"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	if _, err := h.service.GetRole(r.Context(), roleID); err != nil {
		h.respondError(w, err)
		return
	}
	grants, err := h.service.repo.ListGrants(r.Context(), roleID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	now := time.Now()
	resp := make([]grantResponse, 0, len(grants))
	for _, grant := range grants {
		if grant.Expired(now) {
			continue
		}
		resp = append(resp, grantResponse{
			PermissionKey: grant.PermissionKey,
			Conditions:    grant.Conditions,
			GrantedBy:     grant.GrantedBy,
			GrantedAt:     grant.GrantedAt,
			ExpiresAt:     grant.ExpiresAt,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type templateResponse struct {
	Name               string   `json:"name"`
	DisplayName        string   `json:"display_name"`
	Description        string   `json:"description,omitempty"`
	Category           string   `json:"category"`
	Permissions        []string `json:"permissions"`
	Color              string   `json:"color,omitempty"`
	Icon               string   `json:"icon,omitempty"`
	Priority           int      `json:"priority"`
	InheritPermissions bool     `json:"inherit_permissions"`
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.ListTemplates(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := make([]templateResponse, 0, len(templates))
	for _, tpl := range templates {
		resp = append(resp, templateResponse{
			Name:               tpl.Name,
			DisplayName:        tpl.DisplayName,
			Description:        tpl.Description,
			Category:           tpl.Category,
			Permissions:        tpl.Permissions,
			Color:              tpl.Color,
			Icon:               tpl.Icon,
			Priority:           tpl.Priority,
			InheritPermissions: tpl.InheritPermissions,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type applyTemplateRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=64"`
	DisplayName  string `json:"display_name" validate:"max=128"`
	ParentRoleID *int64 `json:"parent_role_id" validate:"omitempty,gt=0"`
}

func (h *Handler) applyTemplate(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	templateName := chi.URLParam(r, "templateName")
	if templateName == "" {
		h.respondError(w, ErrValidation)
		return
	}
	var req applyTemplateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	role, err := h.service.ApplyTemplate(r.Context(), actorID, ApplyTemplateInput{
		TemplateName: templateName,
		RoleName:     req.Name,
		DisplayName:  req.DisplayName,
		ParentRoleID: req.ParentRoleID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

type reparentRequest struct {
	ParentRoleID *int64 `json:"parent_role_id" validate:"omitempty,gt=0"`
}

func (h *Handler) reparentRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req reparentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.service.ReparentRole(r.Context(), actorID, roleID, req.ParentRoleID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deactivateRequest struct {
	Reason string `json:"reason" validate:"max=512"`
}

func (h *Handler) deactivateRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req deactivateRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
			return
		}
	}
	if err := h.service.DeactivateRole(r.Context(), actorID, roleID, req.Reason); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.service.DeleteRole(r.Context(), actorID, roleID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type grantRequest struct {
	PermissionKey string         `json:"permission_key" validate:"required,max=128"`
	Conditions    map[string]any `json:"conditions"`
	ExpiresAt     *time.Time     `json:"expires_at"`
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	err = h.service.GrantPermission(r.Context(), actorID, GrantInput{
		RoleID:        roleID,
		PermissionKey: req.PermissionKey,
		Conditions:    req.Conditions,
		ExpiresAt:     req.ExpiresAt,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	permissionKey := chi.URLParam(r, "permissionKey")
	if permissionKey == "" {
		h.respondError(w, ErrValidation)
		return
	}
	if err := h.service.RevokePermission(r.Context(), actorID, roleID, permissionKey); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type userRoleResponse struct {
	Role       roleResponse `json:"role"`
	AssignedBy int64        `json:"assigned_by"`
	AssignedAt time.Time    `json:"assigned_at"`
	ExpiresAt  *time.Time   `json:"expires_at,omitempty"`
	IsPrimary  bool         `json:"is_primary"`
}

func (h *Handler) listUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	memberships, err := h.service.ListUserRoles(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := make([]userRoleResponse, 0, len(memberships))
	for _, m := range memberships {
		resp = append(resp, userRoleResponse{
			Role:       toRoleResponse(m.Role),
			AssignedBy: m.Assignment.AssignedBy,
			AssignedAt: m.Assignment.AssignedAt,
			ExpiresAt:  m.Assignment.ExpiresAt,
			IsPrimary:  m.Assignment.IsPrimary,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	keys, err := h.resolver.EffectivePermissions(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := make([]string, 0, len(keys))
	for key := range keys {
		resp = append(resp, key)
	}
	sort.Strings(resp)
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "permissions": resp})
}

type assignRequest struct {
	RoleID    int64          `json:"role_id" validate:"required,gt=0"`
	ExpiresAt *time.Time     `json:"expires_at"`
	IsPrimary bool           `json:"is_primary"`
	Context   map[string]any `json:"context"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	err = h.service.AssignRole(r.Context(), actorID, AssignInput{
		UserID:         userID,
		RoleID:         req.RoleID,
		ExpiresAt:      req.ExpiresAt,
		IsPrimary:      req.IsPrimary,
		Context:        req.Context,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		h.respondError(w, err)
		return
	}
	reason := r.URL.Query().Get("reason")
	if err := h.service.RemoveRole(r.Context(), actorID, userID, roleID, reason); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
