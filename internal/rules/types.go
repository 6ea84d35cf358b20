package rules

import (
	"context"

	"github.com/mohamedkhairy/stock-screener/internal/models"
)

// RuleStore defines the interface for storing and retrieving saved rules
type RuleStore interface {
	// GetRule retrieves a rule by ID
	GetRule(ctx context.Context, id string) (*models.SavedRule, error)

	// GetAllRules retrieves all rules, newest first
	GetAllRules(ctx context.Context) ([]*models.SavedRule, error)

	// AddRule adds a new rule
	AddRule(ctx context.Context, rule *models.SavedRule) error

	// UpdateRule replaces an existing rule, keeping its creation time
	UpdateRule(ctx context.Context, rule *models.SavedRule) error

	// DeleteRule deletes a rule by ID
	DeleteRule(ctx context.Context, id string) error

	// EnableRule enables a rule
	EnableRule(ctx context.Context, id string) error

	// DisableRule disables a rule
	DisableRule(ctx context.Context, id string) error
}

// ScheduledRules returns the enabled rules that carry a schedule
func ScheduledRules(ctx context.Context, store RuleStore) ([]*models.SavedRule, error) {
	all, err := store.GetAllRules(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.SavedRule, 0, len(all))
	for _, r := range all {
		if r.Enabled && r.Schedule != "" {
			out = append(out, r)
		}
	}
	return out, nil
}
