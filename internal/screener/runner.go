package screener

import (
	"context"
	"time"

	"github.com/mohamedkhairy/stock-screener/internal/models"
	"github.com/mohamedkhairy/stock-screener/internal/rules"
	"github.com/mohamedkhairy/stock-screener/pkg/logger"
)

// PlanExecutor executes compiled plans
type PlanExecutor interface {
	Execute(ctx context.Context, plan models.QueryPlan, limit int, creds Credentials) ([]models.ScreenerRow, error)
}

// Runner compiles and executes rules with one configured API key. It is the
// entry point shared by the HTTP API, the CLI and the scheduler.
type Runner struct {
	executor     PlanExecutor
	compiler     *rules.Compiler
	creds        Credentials
	defaultLimit int
	now          func() time.Time
}

// RunnerOption configures the Runner
type RunnerOption func(*Runner)

// WithCompiler replaces the built-in compiler
func WithCompiler(c *rules.Compiler) RunnerOption {
	return func(r *Runner) {
		r.compiler = c
	}
}

// WithDefaultLimit sets the limit used when a run asks for none
func WithDefaultLimit(limit int) RunnerOption {
	return func(r *Runner) {
		if limit > 0 {
			r.defaultLimit = limit
		}
	}
}

// WithRunnerClock sets the clock used for the asOf stamp
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a runner
func NewRunner(executor PlanExecutor, creds Credentials, opts ...RunnerOption) *Runner {
	r := &Runner{
		executor:     executor,
		compiler:     rules.NewCompiler(),
		creds:        creds,
		defaultLimit: DefaultLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Compile compiles ast with the runner's compiler
func (r *Runner) Compile(ast *models.Node) models.QueryPlan {
	return r.compiler.Compile(ast)
}

// Run compiles ast, executes the plan and stamps the result
func (r *Runner) Run(ctx context.Context, ast *models.Node, limit int) (models.RunResult, error) {
	if limit <= 0 {
		limit = r.defaultLimit
	}

	plan := r.compiler.Compile(ast)
	for _, w := range plan.Warnings {
		logger.WithContext(ctx).Warn("Plan warning", logger.String("warning", w))
	}

	rows, err := r.executor.Execute(ctx, plan, limit, r.creds)
	if err != nil {
		return models.RunResult{}, err
	}

	return models.RunResult{
		Rows:     rows,
		AsOf:     r.now().UTC(),
		Warnings: plan.Warnings,
	}, nil
}

// RunRule runs a saved rule and labels the result with its id and name
func (r *Runner) RunRule(ctx context.Context, rule *models.SavedRule) (models.RunResult, error) {
	ctx = logger.WithRuleID(ctx, rule.ID)
	result, err := r.Run(ctx, rule.AST, rule.Limit)
	if err != nil {
		return models.RunResult{}, err
	}
	result.RuleID = rule.ID
	result.RuleName = rule.Name
	return result, nil
}
