package rules

import (
	"fmt"

	"github.com/mohamedkhairy/stock-screener/internal/models"
	"github.com/robfig/cron/v3"
)

// MaxLimit caps the screener result size a rule may request
const MaxLimit = 1000

// ScheduleParser accepts five-field cron specs, an optional leading
// seconds field and descriptors such as @hourly
var ScheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateRule validates a saved rule, including its schedule
func ValidateRule(rule *models.SavedRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.Limit > MaxLimit {
		return fmt.Errorf("%w: %d exceeds %d", models.ErrInvalidLimit, rule.Limit, MaxLimit)
	}
	if rule.Schedule != "" {
		if err := ValidateSchedule(rule.Schedule); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSchedule checks a cron spec
func ValidateSchedule(spec string) error {
	if _, err := ScheduleParser.Parse(spec); err != nil {
		return fmt.Errorf("%w %q: %v", models.ErrInvalidSchedule, spec, err)
	}
	return nil
}

// ValidateAST checks the shape of a rule tree and reports condition ids the
// compiler does not know. Unknown ids are not errors; callers may surface
// them as warnings.
func ValidateAST(ast *models.Node) (unknown []string, err error) {
	if err := ast.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidAST, err)
	}
	for _, c := range ast.Conditions() {
		if _, ok := defaultCompiler.Resolve(c.ID); !ok {
			unknown = append(unknown, c.ID)
		}
	}
	return unknown, nil
}
