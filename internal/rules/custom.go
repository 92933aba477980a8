package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/cooperative-finance/kestrel/internal/domain"
)

// CustomEngine compiles and evaluates operator-authored CEL screening
// rules. Custom rules run after the fixed catalog, in rule-id order, so
// alert numbering stays deterministic across runs.
type CustomEngine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewCustomEngine creates the CEL environment exposing normalized
// account fields.
func NewCustomEngine() (*CustomEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("account", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("account_no", cel.StringType),
		cel.Variable("account_name", cel.StringType),
		cel.Variable("customer_no", cel.StringType),
		cel.Variable("product_name", cel.StringType),
		cel.Variable("branch_no", cel.StringType),
		cel.Variable("mobile_no", cel.StringType),
		cel.Variable("aadhaar_no", cel.StringType),
		cel.Variable("limit_sanctioned", cel.DoubleType),
		cel.Variable("prev_year_limit", cel.DoubleType),
		cel.Variable("drawing_power", cel.DoubleType),
		cel.Variable("outstanding", cel.DoubleType),
		cel.Variable("unpaid_principal", cel.DoubleType),
		cel.Variable("irregularity", cel.DoubleType),
		cel.Variable("line_outstanding", cel.DoubleType),
		cel.Variable("atm_distance_km", cel.IntType),
		cel.Variable("full_withdrawal_count", cel.IntType),
		cel.Variable("has_last_activity", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CustomEngine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without mutating the loaded set.
func (e *CustomEngine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: rule config is required", domain.ErrInvalidInput)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *CustomEngine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple rules, skipping disabled ones.
func (e *CustomEngine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces the loaded set. Enables hot-reloading
// from the repository.
func (e *CustomEngine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *CustomEngine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// RulesCount returns the number of loaded rules.
func (e *CustomEngine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// Close cleans up the engine.
func (e *CustomEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

// Evaluate runs every loaded rule over every account and returns the
// resulting drafts plus the number of rules evaluated. An expression
// that errors on one account skips that account only.
func (e *CustomEngine) Evaluate(ctx context.Context, snap *domain.Snapshot) ([]Draft, int) {
	e.mu.RLock()
	rules := make(map[string]*CompiledRule, len(e.compiledRules))
	for id, r := range e.compiledRules {
		rules[id] = r
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, 0
	}

	var drafts []Draft
	for _, id := range sortedRuleIDs(rules) {
		if ctx.Err() != nil {
			break
		}
		rule := rules[id]
		for _, a := range snap.Accounts {
			out, _, err := rule.Program.Eval(activation(a))
			if err != nil {
				continue
			}
			matched, ok := out.(types.Bool)
			if !ok || !bool(matched) {
				continue
			}
			drafts = append(drafts, Draft{
				Type: domain.AlertType("CUSTOM:" + rule.Config.ID),
				Description: fmt.Sprintf("%s: account %s matched",
					rule.Config.Name, a.AccountNo),
				Account: a,
			})
		}
	}
	return drafts, len(rules)
}

// sortedRuleIDs gives custom rules a stable evaluation order.
func sortedRuleIDs(rules map[string]*CompiledRule) []string {
	ids := make([]string, 0, len(rules))
	for id := range rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// activation maps one normalized account into CEL variables. Amounts
// are exposed as doubles; the authoritative decimals stay in the fixed
// catalog.
func activation(a *domain.Account) map[string]any {
	fields := map[string]any{
		"account_no":            a.AccountNo,
		"account_name":          a.AccountName,
		"customer_no":           a.CustomerNo,
		"product_name":          a.ProductName,
		"branch_no":             a.BranchNo,
		"mobile_no":             a.MobileNo,
		"aadhaar_no":            a.AadhaarNo,
		"limit_sanctioned":      a.LimitSanctioned.InexactFloat64(),
		"prev_year_limit":       a.PrevYearLimit.InexactFloat64(),
		"drawing_power":         a.DrawingPower.InexactFloat64(),
		"outstanding":           a.Outstanding.InexactFloat64(),
		"unpaid_principal":      a.UnpaidPrincipal.InexactFloat64(),
		"irregularity":          a.Irregularity.InexactFloat64(),
		"line_outstanding":      a.LineOutstanding.InexactFloat64(),
		"atm_distance_km":       a.AtmDistanceKm,
		"full_withdrawal_count": a.FullWithdrawalCount,
		"has_last_activity":     a.HasLastActivity,
	}

	activation := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		activation[k] = v
	}
	activation["account"] = fields
	return activation
}

func (e *CustomEngine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
