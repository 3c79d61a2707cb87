package budget

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Category is one scored audit category, e.g. performance or seo. Score is in
// the 0..1 range as returned by the audit runner.
type Category struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Percentage is the integer percentage used for comparisons, floor(score*100)
// without rounding, so 0.29 yields 28.
func (c Category) Percentage() float64 {
	return math.Floor(c.Score * 100)
}

// CategoryList keeps audit categories in the order the runner returned them.
// It decodes from a JSON object keyed by category id.
type CategoryList []Category

func (l *CategoryList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("categories: expected object, got %v", tok)
	}
	var out CategoryList
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var c Category
		if err := dec.Decode(&c); err != nil {
			return fmt.Errorf("categories: decoding %q: %w", key, err)
		}
		if c.ID == "" {
			c.ID = key
		}
		out = append(out, c)
	}
	*l = out
	return nil
}

// Resource is one resource summary row from the audit's budget report.
type Resource struct {
	ResourceType string  `json:"resourceType"`
	Label        string  `json:"label"`
	Size         float64 `json:"size,omitempty"`
	RequestCount float64 `json:"requestCount,omitempty"`
}

// ResourceBudget caps the size (in kb) or request count of one resource type.
type ResourceBudget struct {
	ResourceType string   `json:"resourceType" mapstructure:"resourceType"`
	Budget       float64  `json:"budget" mapstructure:"budget"`
	Threshold    float64  `json:"threshold,omitempty" mapstructure:"threshold"`
	Warning      *float64 `json:"warning,omitempty" mapstructure:"warning"`
}

// Canonical converts the resource budget into a Budget.
func (r ResourceBudget) Canonical() Budget {
	return Detailed(r.Budget, r.Threshold, r.Warning)
}

// ResourceGroup mirrors one entry of a Lighthouse budgets.json file.
type ResourceGroup struct {
	Path           string           `json:"path,omitempty" mapstructure:"path"`
	ResourceSizes  []ResourceBudget `json:"resourceSizes,omitempty" mapstructure:"resourceSizes"`
	ResourceCounts []ResourceBudget `json:"resourceCounts,omitempty" mapstructure:"resourceCounts"`
}
