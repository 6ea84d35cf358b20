package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mohamedkhairy/stock-screener/internal/models"
)

// InMemoryRuleStore is an in-memory implementation of RuleStore
type InMemoryRuleStore struct {
	mu    sync.RWMutex
	rules map[string]*models.SavedRule
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]*models.SavedRule),
	}
}

// GetRule retrieves a rule by ID
func (s *InMemoryRuleStore) GetRule(_ context.Context, id string) (*models.SavedRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", models.ErrRuleNotFound, id)
	}

	return copyRule(rule), nil
}

// GetAllRules retrieves all rules, newest first
func (s *InMemoryRuleStore) GetAllRules(_ context.Context) ([]*models.SavedRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]*models.SavedRule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, copyRule(rule))
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.After(rules[j].CreatedAt)
	})

	return rules, nil
}

// AddRule adds a new rule
func (s *InMemoryRuleStore) AddRule(_ context.Context, rule *models.SavedRule) error {
	if rule == nil {
		return fmt.Errorf("rule cannot be nil")
	}

	if err := ValidateRule(rule); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule already exists: %s", rule.ID)
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now
	}

	s.rules[rule.ID] = copyRule(rule)

	return nil
}

// UpdateRule updates an existing rule
func (s *InMemoryRuleStore) UpdateRule(_ context.Context, rule *models.SavedRule) error {
	if rule == nil {
		return fmt.Errorf("rule cannot be nil")
	}

	if err := ValidateRule(rule); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("%w: %s", models.ErrRuleNotFound, rule.ID)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()

	s.rules[rule.ID] = copyRule(rule)

	return nil
}

// DeleteRule deletes a rule by ID
func (s *InMemoryRuleStore) DeleteRule(_ context.Context, id string) error {
	if id == "" {
		return models.ErrInvalidRuleID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("%w: %s", models.ErrRuleNotFound, id)
	}

	delete(s.rules, id)

	return nil
}

// EnableRule enables a rule
func (s *InMemoryRuleStore) EnableRule(_ context.Context, id string) error {
	return s.setRuleEnabled(id, true)
}

// DisableRule disables a rule
func (s *InMemoryRuleStore) DisableRule(_ context.Context, id string) error {
	return s.setRuleEnabled(id, false)
}

func (s *InMemoryRuleStore) setRuleEnabled(id string, enabled bool) error {
	if id == "" {
		return models.ErrInvalidRuleID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rule, exists := s.rules[id]
	if !exists {
		return fmt.Errorf("%w: %s", models.ErrRuleNotFound, id)
	}

	rule.Enabled = enabled
	rule.UpdatedAt = time.Now().UTC()

	return nil
}

// Count returns the number of rules in the store
func (s *InMemoryRuleStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.rules)
}

func copyRule(rule *models.SavedRule) *models.SavedRule {
	if rule == nil {
		return nil
	}
	copied := *rule
	copied.AST = rule.AST.Clone()
	return &copied
}
