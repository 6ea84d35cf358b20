package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mohamedkhairy/stock-screener/internal/models"
)

func newTestRule(id string) *models.SavedRule {
	return &models.SavedRule{
		ID:   id,
		Name: "Momentum " + id,
		AST: models.And(
			models.Condition(IDExchange, params{"value": "NASDAQ"}),
			models.Condition(IDPriceChangePctN, params{"days": 20.0, "pct": 5.0}),
		),
		Limit:   25,
		Enabled: true,
	}
}

// storeFactories lists every RuleStore backend the shared tests run against
func storeFactories(t *testing.T) map[string]func() RuleStore {
	return map[string]func() RuleStore{
		"memory": func() RuleStore { return NewInMemoryRuleStore() },
		"sqlite": func() RuleStore {
			store, err := NewSQLiteRuleStore(context.Background(), ":memory:")
			if err != nil {
				t.Fatalf("NewSQLiteRuleStore() error = %v", err)
			}
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
}

func TestRuleStore_AddAndGet(t *testing.T) {
	ctx := context.Background()
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()

			rule := newTestRule("rule-1")
			if err := store.AddRule(ctx, rule); err != nil {
				t.Fatalf("AddRule() error = %v", err)
			}
			if rule.CreatedAt.IsZero() || rule.UpdatedAt.IsZero() {
				t.Error("AddRule() should stamp timestamps")
			}

			// Adding the same rule again should fail
			if err := store.AddRule(ctx, newTestRule("rule-1")); err == nil {
				t.Error("Expected error when adding duplicate rule")
			}

			got, err := store.GetRule(ctx, "rule-1")
			if err != nil {
				t.Fatalf("GetRule() error = %v", err)
			}
			if got.Name != rule.Name || got.Limit != 25 || !got.Enabled {
				t.Errorf("GetRule() = %+v", got)
			}
			conds := got.AST.Conditions()
			if len(conds) != 2 || conds[1].ID != IDPriceChangePctN {
				t.Errorf("AST not round-tripped: %+v", got.AST)
			}
			if got.CreatedAt.UnixMilli() != rule.CreatedAt.UnixMilli() {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, rule.CreatedAt)
			}
		})
	}
}

func TestRuleStore_GetRule_NotFound(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := newStore().GetRule(context.Background(), "missing")
			if !errors.Is(err, models.ErrRuleNotFound) {
				t.Errorf("GetRule() error = %v, want ErrRuleNotFound", err)
			}
		})
	}
}

func TestRuleStore_AddRule_Invalid(t *testing.T) {
	ctx := context.Background()
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()

			if err := store.AddRule(ctx, nil); err == nil {
				t.Error("Expected error for nil rule")
			}

			noAST := newTestRule("rule-1")
			noAST.AST = nil
			if err := store.AddRule(ctx, noAST); !errors.Is(err, models.ErrInvalidAST) {
				t.Errorf("AddRule(no ast) error = %v", err)
			}

			badCron := newTestRule("rule-2")
			badCron.Schedule = "every monday"
			if err := store.AddRule(ctx, badCron); !errors.Is(err, models.ErrInvalidSchedule) {
				t.Errorf("AddRule(bad schedule) error = %v", err)
			}
		})
	}
}

func TestRuleStore_UpdateRule(t *testing.T) {
	ctx := context.Background()
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()

			created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			rule := newTestRule("rule-1")
			rule.CreatedAt = created
			rule.UpdatedAt = created
			if err := store.AddRule(ctx, rule); err != nil {
				t.Fatalf("AddRule() error = %v", err)
			}

			update := newTestRule("rule-1")
			update.Name = "Oversold"
			update.AST = models.Condition(IDRSI, params{"value": 30})
			update.Schedule = "@hourly"
			if err := store.UpdateRule(ctx, update); err != nil {
				t.Fatalf("UpdateRule() error = %v", err)
			}

			got, err := store.GetRule(ctx, "rule-1")
			if err != nil {
				t.Fatalf("GetRule() error = %v", err)
			}
			if got.Name != "Oversold" || got.Schedule != "@hourly" || got.AST.ID != IDRSI {
				t.Errorf("update not applied: %+v", got)
			}
			if !got.CreatedAt.Equal(created) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
			}
			if !got.UpdatedAt.After(created) {
				t.Errorf("UpdatedAt = %v should be after %v", got.UpdatedAt, created)
			}

			if err := store.UpdateRule(ctx, newTestRule("missing")); !errors.Is(err, models.ErrRuleNotFound) {
				t.Errorf("UpdateRule(missing) error = %v", err)
			}
		})
	}
}

func TestRuleStore_DeleteRule(t *testing.T) {
	ctx := context.Background()
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			if err := store.AddRule(ctx, newTestRule("rule-1")); err != nil {
				t.Fatalf("AddRule() error = %v", err)
			}

			if err := store.DeleteRule(ctx, "rule-1"); err != nil {
				t.Fatalf("DeleteRule() error = %v", err)
			}
			if _, err := store.GetRule(ctx, "rule-1"); !errors.Is(err, models.ErrRuleNotFound) {
				t.Errorf("rule still present after delete: %v", err)
			}
			if err := store.DeleteRule(ctx, "rule-1"); !errors.Is(err, models.ErrRuleNotFound) {
				t.Errorf("second DeleteRule() error = %v", err)
			}
		})
	}
}

func TestRuleStore_EnableDisableRule(t *testing.T) {
	ctx := context.Background()
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			if err := store.AddRule(ctx, newTestRule("rule-1")); err != nil {
				t.Fatalf("AddRule() error = %v", err)
			}

			if err := store.DisableRule(ctx, "rule-1"); err != nil {
				t.Fatalf("DisableRule() error = %v", err)
			}
			if got, _ := store.GetRule(ctx, "rule-1"); got.Enabled {
				t.Error("Expected rule to be disabled")
			}

			if err := store.EnableRule(ctx, "rule-1"); err != nil {
				t.Fatalf("EnableRule() error = %v", err)
			}
			if got, _ := store.GetRule(ctx, "rule-1"); !got.Enabled {
				t.Error("Expected rule to be enabled")
			}

			if err := store.EnableRule(ctx, "missing"); !errors.Is(err, models.ErrRuleNotFound) {
				t.Errorf("EnableRule(missing) error = %v", err)
			}
		})
	}
}

func TestRuleStore_GetAllRules_NewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			for i := 0; i < 3; i++ {
				rule := newTestRule(fmt.Sprintf("rule-%d", i))
				rule.CreatedAt = base.Add(time.Duration(i) * time.Hour)
				if err := store.AddRule(ctx, rule); err != nil {
					t.Fatalf("AddRule() error = %v", err)
				}
			}

			rules, err := store.GetAllRules(ctx)
			if err != nil {
				t.Fatalf("GetAllRules() error = %v", err)
			}
			var ids []string
			for _, r := range rules {
				ids = append(ids, r.ID)
			}
			if fmt.Sprint(ids) != "[rule-2 rule-1 rule-0]" {
				t.Errorf("GetAllRules() order = %v", ids)
			}
		})
	}
}

func TestScheduledRules(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryRuleStore()

	manual := newTestRule("manual")
	scheduled := newTestRule("scheduled")
	scheduled.Schedule = "*/5 * * * *"
	disabled := newTestRule("disabled")
	disabled.Schedule = "@daily"
	disabled.Enabled = false

	for _, r := range []*models.SavedRule{manual, scheduled, disabled} {
		if err := store.AddRule(ctx, r); err != nil {
			t.Fatalf("AddRule() error = %v", err)
		}
	}

	rules, err := ScheduledRules(ctx, store)
	if err != nil {
		t.Fatalf("ScheduledRules() error = %v", err)
	}
	if len(rules) != 1 || rules[0].ID != "scheduled" {
		t.Errorf("ScheduledRules() = %+v", rules)
	}
}

func TestInMemoryRuleStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryRuleStore()
	rule := newTestRule("rule-1")
	if err := store.AddRule(ctx, rule); err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}

	// Mutating the caller's value or a returned value must not reach the store
	rule.AST.Children[0].Params["value"] = "NYSE"
	got, _ := store.GetRule(ctx, "rule-1")
	got.AST.Children = nil

	again, _ := store.GetRule(ctx, "rule-1")
	if len(again.AST.Children) != 2 || again.AST.Children[0].Params["value"] != "NASDAQ" {
		t.Errorf("stored rule was mutated: %+v", again.AST)
	}
}

func TestInMemoryRuleStore_Concurrency(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryRuleStore()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			store.AddRule(ctx, newTestRule(fmt.Sprintf("rule-%d", i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			store.GetRule(ctx, fmt.Sprintf("rule-%d", i))
		}
	}()
	wg.Wait()

	if store.Count() != 100 {
		t.Errorf("Expected count 100, got %d", store.Count())
	}
}
