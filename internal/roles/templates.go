package roles

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/valuetrack/valuetrack/internal/permissions"
)

// Template is a named role preset: display attributes plus the permission
// bundle a role created from it starts with.
type Template struct {
	ID                 int64
	Name               string
	DisplayName        string
	Description        string
	Category           string
	Permissions        []string
	Color              string
	Icon               string
	Priority           int
	InheritPermissions bool
	CreatedAt          time.Time
}

// DefaultTemplates returns the built-in presets. Seeding skips names that
// already exist, so operator edits to a seeded template survive restarts.
func DefaultTemplates() []Template {
	catalog := permissions.DefaultCatalog()
	allKeys := make([]string, 0, len(catalog))
	for _, p := range catalog {
		allKeys = append(allKeys, p.Key)
	}
	return []Template{
		{
			Name:        "admin_full",
			DisplayName: "Full Administrator",
			Description: "Complete system access with all permissions",
			Category:    "system",
			Permissions: allKeys,
			Color:       "#f44336", Icon: "admin_panel_settings",
			Priority: 90, InheritPermissions: true,
		},
		{
			Name:        "moderator",
			DisplayName: "Content Moderator",
			Description: "Content and user moderation capabilities",
			Category:    "moderation",
			Permissions: []string{
				"users.view", "users.ban", "content.view", "content.moderate",
				"content.delete", "trading.view", "analytics.view",
			},
			Color:    "#ff9800", Icon: "shield",
			Priority: 50, InheritPermissions: true,
		},
		{
			Name:        "trader_advanced",
			DisplayName: "Advanced Trader",
			Description: "Enhanced trading capabilities and market access",
			Category:    "trading",
			Permissions: []string{
				"trading.view", "trading.execute", "analytics.view",
				"content.view", "content.create",
			},
			Color:    "#4caf50", Icon: "work",
			Priority: 30, InheritPermissions: true,
		},
		{
			Name:        "support_agent",
			DisplayName: "Support Agent",
			Description: "Customer support and basic user management",
			Category:    "support",
			Permissions: []string{
				"users.view", "users.edit", "content.view", "trading.view",
				"notifications.send", "messages.admin",
			},
			Color:    "#2196f3", Icon: "support_agent",
			Priority: 40, InheritPermissions: true,
		},
	}
}

// ListTemplates returns the stored presets.
func (s *Service) ListTemplates(ctx context.Context) ([]Template, error) {
	return s.repo.ListTemplates(ctx)
}

// SeedTemplates stores the built-in presets, leaving existing rows alone.
func (s *Service) SeedTemplates(ctx context.Context) error {
	for _, tpl := range DefaultTemplates() {
		if err := s.repo.SaveTemplate(ctx, tpl); err != nil {
			return fmt.Errorf("seed template %s: %w", tpl.Name, err)
		}
	}
	return nil
}

// ApplyTemplateInput names the template and the role to mint from it.
type ApplyTemplateInput struct {
	TemplateName string
	RoleName     string
	DisplayName  string
	ParentRoleID *int64
}

// ApplyTemplate creates a role preconfigured from a template and grants its
// permission bundle. Creation and each grant run through the normal guarded
// operations, so authority checks, auditing and cache invalidation apply
// exactly as if the actor had issued them one by one.
func (s *Service) ApplyTemplate(ctx context.Context, actorID int64, in ApplyTemplateInput) (Role, error) {
	tpl, err := s.repo.GetTemplate(ctx, in.TemplateName)
	if err != nil {
		return Role{}, err
	}
	displayName := in.DisplayName
	if displayName == "" {
		displayName = tpl.DisplayName
	}
	role, err := s.CreateRole(ctx, actorID, CreateRoleInput{
		Name:               in.RoleName,
		DisplayName:        displayName,
		Description:        tpl.Description,
		ParentRoleID:       in.ParentRoleID,
		Color:              tpl.Color,
		Icon:               tpl.Icon,
		Priority:           tpl.Priority,
		InheritPermissions: tpl.InheritPermissions,
	})
	if err != nil {
		return Role{}, err
	}
	for _, key := range tpl.Permissions {
		if err := s.GrantPermission(ctx, actorID, GrantInput{RoleID: role.ID, PermissionKey: key}); err != nil {
			return Role{}, fmt.Errorf("template %s: grant %s: %w", tpl.Name, key, err)
		}
	}
	s.logger.Info("role template applied",
		slog.String("template", tpl.Name),
		slog.Int64("role_id", role.ID),
		slog.Int64("actor_id", actorID))
	return role, nil
}
