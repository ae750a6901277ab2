package permissions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RepositoryPort defines data access methods for the registry.
type RepositoryPort interface {
	Get(ctx context.Context, key string) (Permission, error)
	Upsert(ctx context.Context, p Permission) error
	List(ctx context.Context) ([]Permission, error)
	LookupKeys(ctx context.Context, keys []string) ([]Permission, error)
}

// Service orchestrates the permission registry.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Register upserts a permission keyed by its permission key. Re-registering
// with a different category or is_system flag is rejected because those
// attributes are immutable.
func (s *Service) Register(ctx context.Context, p Permission) error {
	p.Key = strings.TrimSpace(strings.ToLower(p.Key))
	if p.Key == "" || !strings.Contains(p.Key, ".") {
		return fmt.Errorf("%w: permission key must be of the form resource.action", ErrValidation)
	}
	if p.Category == "" {
		return fmt.Errorf("%w: category required", ErrValidation)
	}
	if p.DangerLevel < 1 || p.DangerLevel > 5 {
		return fmt.Errorf("%w: danger level must be within 1..5", ErrValidation)
	}
	existing, err := s.repo.Get(ctx, p.Key)
	switch {
	case err == nil:
		if existing.Category != p.Category || existing.IsSystem != p.IsSystem {
			return fmt.Errorf("%w: %s", ErrConflict, p.Key)
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}
	return s.repo.Upsert(ctx, p)
}

// Seed registers the built-in catalog. Safe to call on every startup.
func (s *Service) Seed(ctx context.Context) error {
	for _, p := range DefaultCatalog() {
		if err := s.Register(ctx, p); err != nil {
			return fmt.Errorf("seed %s: %w", p.Key, err)
		}
	}
	return nil
}

// Lookup batch-resolves permission keys. Unknown keys are silently dropped;
// callers compare the returned size against the request to detect typos.
func (s *Service) Lookup(ctx context.Context, keys []string) (map[string]Permission, error) {
	if len(keys) == 0 {
		return map[string]Permission{}, nil
	}
	rows, err := s.repo.LookupKeys(ctx, keys)
	if err != nil {
		return nil, err
	}
	result := make(map[string]Permission, len(rows))
	for _, p := range rows {
		result[p.Key] = p
	}
	return result, nil
}

// CategoryGroup holds the catalog slice for a single category.
type CategoryGroup struct {
	Category    string
	Title       string
	Permissions []Permission
}

// ListByCategory groups the catalog for display, ordered by category then
// danger level then name.
func (s *Service) ListByCategory(ctx context.Context) ([]CategoryGroup, error) {
	perms, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]Permission)
	for _, p := range perms {
		grouped[p.Category] = append(grouped[p.Category], p)
	}
	categories := make([]string, 0, len(grouped))
	for category := range grouped {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	titler := cases.Title(language.English)
	groups := make([]CategoryGroup, 0, len(categories))
	for _, category := range categories {
		groups = append(groups, CategoryGroup{
			Category:    category,
			Title:       titler.String(strings.ReplaceAll(category, "_", " ")),
			Permissions: grouped[category],
		})
	}
	return groups, nil
}
