// Package rules provides the CEL-Go engine for merchant-defined
// attribution rules.
package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-commerce/kestrel/internal/attribution"
	"github.com/opensource-commerce/kestrel/internal/domain"
)

// CustomEngine evaluates merchant-defined CEL predicates over order
// traffic signals. It implements attribution.CustomMatcher.
type CustomEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled []*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program with its configuration.
type CompiledRule struct {
	Config  *domain.CustomRule
	Program cel.Program
}

// NewCustomEngine creates a rule engine with the signal variables exposed
// to CEL expressions.
func NewCustomEngine() (*CustomEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("referrer", cel.StringType),
		cel.Variable("referrer_domain", cel.StringType),
		cel.Variable("landing_page", cel.StringType),
		cel.Variable("landing_domain", cel.StringType),
		cel.Variable("utm_source", cel.StringType),
		cel.Variable("utm_medium", cel.StringType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("notes", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CustomEngine{env: env}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *CustomEngine) ValidateRule(cfg *domain.CustomRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and appends a rule. Rules match in load order.
func (e *CustomEngine) LoadRule(cfg *domain.CustomRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiled = append(e.compiled, compiled)
	return nil
}

// LoadRules compiles and loads all enabled rules.
func (e *CustomEngine) LoadRules(configs []*domain.CustomRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules replaces all loaded rules. Enables hot-reloading from the
// repository after rule edits.
func (e *CustomEngine) ReloadRules(configs []*domain.CustomRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make([]*CompiledRule, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules = append(newRules, compiled)
	}

	e.compiled = newRules
	return nil
}

// Match evaluates loaded rules in order against the order's signals.
// The first rule whose predicate evaluates true wins. Evaluation errors
// skip the rule rather than failing the classification.
func (e *CustomEngine) Match(in attribution.Input) (domain.Channel, string, bool) {
	e.mu.RLock()
	rules := e.compiled
	e.mu.RUnlock()

	if len(rules) == 0 {
		return domain.ChannelNone, "", false
	}

	notes := make(map[string]string, len(in.NoteAttributes))
	for _, n := range in.NoteAttributes {
		notes[n.Name] = n.Value
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	activation := map[string]any{
		"referrer":        in.Referrer,
		"referrer_domain": attribution.HostOf(in.Referrer),
		"landing_page":    in.LandingPage,
		"landing_domain":  attribution.HostOf(in.LandingPage),
		"utm_source":      in.UTMSource,
		"utm_medium":      in.UTMMedium,
		"tags":            tags,
		"notes":           notes,
	}

	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			continue
		}
		if matched, ok := out.(types.Bool); ok && bool(matched) {
			return rule.Config.Channel, rule.Config.Name, true
		}
	}
	return domain.ChannelNone, "", false
}

// RulesCount returns the number of loaded rules.
func (e *CustomEngine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *CustomEngine) GetLoadedRules() []*domain.CustomRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.CustomRule, 0, len(e.compiled))
	for _, compiled := range e.compiled {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *CustomEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = nil
	return nil
}

func (e *CustomEngine) compileRule(cfg *domain.CustomRule) (*CompiledRule, error) {
	if cfg.Channel == domain.ChannelNone {
		return nil, fmt.Errorf("rule %s: a target channel is required", cfg.ID)
	}

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
