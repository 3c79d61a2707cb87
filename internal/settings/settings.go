// Package settings resolves the effective budget configuration of a route from
// the global settings, the named shared groups and the route's own overrides.
package settings

import (
	"fmt"
	"reflect"

	"github.com/cx-miguel-neiva/lightkeeper/internal/budget"
	"github.com/go-viper/mapstructure/v2"
)

// Fragment is an untyped settings object as it appears in the configuration
// document.
type Fragment map[string]any

// RouteSettings is the effective, typed configuration of one route.
type RouteSettings struct {
	Categories map[string]budget.Budget `mapstructure:"categories"`
	Budgets    []budget.ResourceGroup   `mapstructure:"budgets"`
	Lighthouse any                      `mapstructure:"lighthouse"`
	ReportOnly bool                     `mapstructure:"reportOnly"`
}

// HasBudgets reports whether there is anything to compare against.
func (s RouteSettings) HasBudgets() bool {
	return len(s.Categories) > 0 || len(s.Budgets) > 0
}

// ConfigurationError reports settings that cannot be merged or decoded.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Msg, e.Err)
	}
	return "configuration error: " + e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ErrNoBudgets is returned when a route resolves to settings without any
// categories or resource budgets.
var ErrNoBudgets = &ConfigurationError{Msg: "no budgets were found in config"}

const extendKey = "extend"

// Resolve produces the effective settings for a route. override is the route's
// raw `settings` value: nil inherits global, false disables the route, a string
// extends the named shared group, and an object applies its `extend` directive.
// None of the inputs are modified.
func Resolve(global Fragment, shared map[string]any, override any) (Fragment, error) {
	base := global

	switch v := override.(type) {
	case nil:
		return clone(base), nil
	case bool:
		if !v {
			return Fragment{}, nil
		}
		return clone(base), nil
	case string:
		return extendNamed(base, shared, v, nil)
	}

	local, ok := asMap(override)
	if !ok {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("route settings must be an object, got %T", override)}
	}
	extend := local[extendKey]
	local = without(local, extendKey)

	switch e := extend.(type) {
	case nil:
		return clone(local), nil
	case bool:
		if !e {
			return clone(local), nil
		}
		return merge(base, local), nil
	case string:
		return extendNamed(base, shared, e, local)
	default:
		return nil, &ConfigurationError{Msg: fmt.Sprintf("extend must be true or a shared settings name, got %T", extend)}
	}
}

func extendNamed(base Fragment, shared map[string]any, name string, local Fragment) (Fragment, error) {
	raw, found := shared[name]
	if !found {
		// unknown groups fall back to the global settings
		return merge(base, local), nil
	}
	group, ok := asMap(raw)
	if !ok {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("shared settings %q must be an object", name)}
	}
	if extend, _ := group[extendKey].(bool); extend {
		return merge(merge(base, without(group, extendKey)), local), nil
	}
	return merge(without(group, extendKey), local), nil
}

// Decode converts a resolved fragment into typed settings.
func Decode(f Fragment) (RouteSettings, error) {
	var out RouteSettings
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: budgetHook,
		Result:     &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(map[string]any(f)); err != nil {
		return out, &ConfigurationError{Msg: "invalid route settings", Err: err}
	}
	return out, nil
}

var (
	budgetType         = reflect.TypeOf(budget.Budget{})
	resourceBudgetType = reflect.TypeOf(budget.ResourceBudget{})
)

// budgetHook turns the number|object shape of category budgets into
// budget.Budget. Values of any other type decode to a zero budget, which the
// evaluator skips. A resource budget whose warning is not a number loses it,
// so the default warning applies as it does for categories.
func budgetHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to == resourceBudgetType {
		if m, ok := asMap(data); ok {
			if w, set := m["warning"]; set {
				if _, isNumber := number(w); !isNumber {
					return map[string]any(without(m, "warning")), nil
				}
			}
		}
		return data, nil
	}
	if to != budgetType {
		return data, nil
	}
	if n, ok := number(data); ok {
		return budget.Flat(n), nil
	}
	m, ok := asMap(data)
	if !ok {
		return budget.Budget{}, nil
	}
	target, _ := number(m["target"])
	threshold, _ := number(m["threshold"])
	var warning *float64
	if w, ok := number(m["warning"]); ok {
		warning = &w
	}
	return budget.Detailed(target, threshold, warning), nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asMap(v any) (Fragment, bool) {
	switch m := v.(type) {
	case Fragment:
		return m, true
	case map[string]any:
		return Fragment(m), true
	default:
		return nil, false
	}
}

func without(f Fragment, key string) Fragment {
	out := make(Fragment, len(f))
	for k, v := range f {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// Merge is the deep merge used by Resolve, exposed for other option objects.
func Merge(base, override map[string]any) map[string]any {
	return merge(base, override)
}

// merge deep-merges override into a copy of base. Nested objects merge key by
// key; every other value, arrays included, replaces the base value.
func merge(base, override Fragment) Fragment {
	out := clone(base)
	for k, v := range override {
		if src, ok := asMap(v); ok {
			if dst, ok := asMap(out[k]); ok {
				out[k] = map[string]any(merge(dst, src))
				continue
			}
		}
		out[k] = cloneValue(v)
	}
	return out
}

func clone(f Fragment) Fragment {
	out := make(Fragment, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	if m, ok := asMap(v); ok {
		return map[string]any(clone(m))
	}
	if s, ok := v.([]any); ok {
		cp := make([]any, len(s))
		for i := range s {
			cp[i] = cloneValue(s[i])
		}
		return cp
	}
	return v
}

