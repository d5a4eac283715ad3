package catalog

import (
	"context"
)

// Store loads the RuleSet for the tenant on ctx.
type Store interface {
	RuleSet(ctx context.Context) (*RuleSet, error)
}

// Invalidator is implemented by stores that cache rule sets.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Invalidate drops the cached rule set for the tenant on ctx so the next
// read reloads it. Stores without a cache are left alone.
func Invalidate(ctx context.Context, s Store) error {
	if inv, ok := s.(Invalidator); ok {
		return inv.Invalidate(ctx)
	}
	return nil
}

// Static serves one RuleSet to every tenant.
type Static struct {
	rs *RuleSet
}

func NewStatic(rs *RuleSet) *Static {
	return &Static{rs: rs}
}

func (s *Static) RuleSet(context.Context) (*RuleSet, error) {
	return s.rs, nil
}

// withDefaults fills empty modifier tables from the built-in defaults.
func withDefaults(rules []ModifierRule, mods []ModifierInfo) ([]ModifierRule, []ModifierInfo) {
	if len(rules) == 0 {
		rules = DefaultModifierRules()
	}
	if len(mods) == 0 {
		mods = DefaultModifiers()
	}
	return rules, mods
}
