// Package validation builds the validation rule set for one execution:
// the GraphQL specification's baseline rules merged with the configured
// depth, complexity and introspection limits.
package validation

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/validator/core"
	"github.com/vektah/gqlparser/v2/validator/rules"

	"github.com/dalsh/lighthouse/internal/config"
)

// Rule identifiers. A configured rule sharing an identifier with a baseline
// rule replaces it; otherwise rules are additive.
const (
	RuleMaxQueryDepth        = "MaxQueryDepth"
	RuleMaxQueryComplexity   = "MaxQueryComplexity"
	RuleDisableIntrospection = "DisableIntrospection"
)

// Rules returns the merged rule set for the given security configuration.
// It is a pure function of its input; callers rebuild it per execution so
// live configuration changes take effect immediately.
func Rules(cfg config.SecurityConfig) *rules.Rules {
	rs := rules.NewDefaultRules()
	if cfg.MaxQueryDepth > 0 {
		setRule(rs, RuleMaxQueryDepth, maxDepth(cfg.MaxQueryDepth))
	}
	if cfg.MaxQueryComplexity > 0 {
		setRule(rs, RuleMaxQueryComplexity, maxComplexity(cfg.MaxQueryComplexity))
	}
	if cfg.DisableIntrospection {
		setRule(rs, RuleDisableIntrospection, disableIntrospection())
	}
	return rs
}

// setRule installs f under name, replacing any baseline rule with the same
// identifier.
func setRule(rs *rules.Rules, name string, f core.RuleFunc) {
	rs.RemoveRule(name)
	rs.AddRule(name, f)
}

// maxDepth limits the nesting depth of the expanded selection. Fragment
// spreads add the depth of their selection at the spread site.
func maxDepth(limit int) core.RuleFunc {
	return func(observers *core.Events, addError core.AddErrFunc) {
		observers.OnOperation(func(walker *core.Walker, operation *ast.OperationDefinition) {
			depth := selectionDepth(walker.Document, operation.SelectionSet, make(map[string]bool))
			if depth > limit {
				addError(
					core.Message("Query depth %d exceeds the maximum allowed depth of %d.", depth, limit),
					core.At(operation.Position),
				)
			}
		})
	}
}

func selectionDepth(doc *ast.QueryDocument, set ast.SelectionSet, visiting map[string]bool) int {
	max := 0
	for _, sel := range set {
		d := 0
		switch sel := sel.(type) {
		case *ast.Field:
			d = 1 + selectionDepth(doc, sel.SelectionSet, visiting)
		case *ast.InlineFragment:
			d = selectionDepth(doc, sel.SelectionSet, visiting)
		case *ast.FragmentSpread:
			if visiting[sel.Name] {
				continue // cycles are rejected by the baseline rules
			}
			frag := doc.Fragments.ForName(sel.Name)
			if frag == nil {
				continue
			}
			visiting[sel.Name] = true
			d = selectionDepth(doc, frag.SelectionSet, visiting)
			delete(visiting, sel.Name)
		}
		if d > max {
			max = d
		}
	}
	return max
}

// maxComplexity limits the total field count of the expanded selection: each
// field costs one plus the cost of its children, and fragments are charged
// once per spread.
func maxComplexity(limit int) core.RuleFunc {
	return func(observers *core.Events, addError core.AddErrFunc) {
		observers.OnOperation(func(walker *core.Walker, operation *ast.OperationDefinition) {
			cost := selectionComplexity(walker.Document, operation.SelectionSet, make(map[string]bool))
			if cost > limit {
				addError(
					core.Message("Query complexity %d exceeds the maximum allowed complexity of %d.", cost, limit),
					core.At(operation.Position),
				)
			}
		})
	}
}

func selectionComplexity(doc *ast.QueryDocument, set ast.SelectionSet, visiting map[string]bool) int {
	total := 0
	for _, sel := range set {
		switch sel := sel.(type) {
		case *ast.Field:
			total += 1 + selectionComplexity(doc, sel.SelectionSet, visiting)
		case *ast.InlineFragment:
			total += selectionComplexity(doc, sel.SelectionSet, visiting)
		case *ast.FragmentSpread:
			if visiting[sel.Name] {
				continue
			}
			frag := doc.Fragments.ForName(sel.Name)
			if frag == nil {
				continue
			}
			visiting[sel.Name] = true
			total += selectionComplexity(doc, frag.SelectionSet, visiting)
			delete(visiting, sel.Name)
		}
	}
	return total
}

// disableIntrospection rejects any use of the __schema and __type meta
// fields.
func disableIntrospection() core.RuleFunc {
	return func(observers *core.Events, addError core.AddErrFunc) {
		observers.OnField(func(walker *core.Walker, field *ast.Field) {
			if field.Name == "__schema" || field.Name == "__type" {
				addError(
					core.Message("Introspection is disabled."),
					core.At(field.Position),
				)
			}
		})
	}
}
