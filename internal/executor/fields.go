package executor

import (
	"github.com/dalsh/lighthouse/internal/language"
)

// collectedFieldMap preserves field order from the original query.
type collectedFieldMap struct {
	fields []collectedField
	index  map[string]int
}

type collectedField struct {
	ResponseName string
	Fields       []*language.Field
}

func newCollectedFieldMap() *collectedFieldMap {
	return &collectedFieldMap{index: make(map[string]int)}
}

func (cfm *collectedFieldMap) add(responseName string, field *language.Field) {
	if idx, exists := cfm.index[responseName]; exists {
		cfm.fields[idx].Fields = append(cfm.fields[idx].Fields, field)
		return
	}
	cfm.index[responseName] = len(cfm.fields)
	cfm.fields = append(cfm.fields, collectedField{
		ResponseName: responseName,
		Fields:       []*language.Field{field},
	})
}

func (cfm *collectedFieldMap) orderedFields() []collectedField {
	return cfm.fields
}

// collectFields groups the selections applying to objectType by response
// name, expanding fragments and honoring @skip/@include.
func collectFields(state *executionState, objectType *language.Definition, selectionSet language.SelectionSet) *collectedFieldMap {
	grouped := newCollectedFieldMap()
	collectFieldsImpl(state, objectType, selectionSet, grouped, make(map[string]bool))
	return grouped
}

func collectFieldsImpl(state *executionState, objectType *language.Definition, selectionSet language.SelectionSet, grouped *collectedFieldMap, visitedFragments map[string]bool) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if !shouldIncludeNode(state, sel.Directives) {
				continue
			}
			responseName := sel.Alias
			if responseName == "" {
				responseName = sel.Name
			}
			grouped.add(responseName, sel)

		case *language.InlineFragment:
			if !shouldIncludeNode(state, sel.Directives) {
				continue
			}
			if !typeConditionApplies(state, sel.TypeCondition, objectType) {
				continue
			}
			collectFieldsImpl(state, objectType, sel.SelectionSet, grouped, visitedFragments)

		case *language.FragmentSpread:
			if !shouldIncludeNode(state, sel.Directives) {
				continue
			}
			if visitedFragments[sel.Name] {
				continue
			}
			visitedFragments[sel.Name] = true

			frag := state.document.Fragments.ForName(sel.Name)
			if frag == nil {
				continue
			}
			if !typeConditionApplies(state, frag.TypeCondition, objectType) {
				continue
			}
			collectFieldsImpl(state, objectType, frag.SelectionSet, grouped, visitedFragments)
		}
	}
}

// typeConditionApplies reports whether a fragment with the given type
// condition selects into objectType, including interface implementations
// and union membership.
func typeConditionApplies(state *executionState, condition string, objectType *language.Definition) bool {
	if condition == "" || condition == objectType.Name {
		return true
	}
	for _, possible := range state.schema.PossibleTypes[condition] {
		if possible.Name == objectType.Name {
			return true
		}
	}
	return false
}

// shouldIncludeNode evaluates the @skip and @include directives.
func shouldIncludeNode(state *executionState, directives language.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if v, ok := directiveArgBool(state, skip, "if"); ok && v {
			return false
		}
	}
	if include := directives.ForName("include"); include != nil {
		if v, ok := directiveArgBool(state, include, "if"); ok && !v {
			return false
		}
	}
	return true
}

func directiveArgBool(state *executionState, directive *language.Directive, name string) (bool, bool) {
	arg := directive.Arguments.ForName(name)
	if arg == nil {
		return false, false
	}
	raw, err := arg.Value.Value(state.variables)
	if err != nil {
		return false, false
	}
	b, ok := raw.(bool)
	return b, ok
}

// mergeSelectionSets merges the subselections of all fields sharing one
// response name.
func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}
