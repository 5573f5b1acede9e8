// Package filter defines structured search filters translated into FT query syntax.
package filter

import "fmt"

// MaxConditions is the maximum number of conditions per group.
const MaxConditions = 16

// Expression is a structured filter with must/must_not semantics.
type Expression struct {
	must    []Condition
	mustNot []Condition
}

// NewExpression validates and creates a filter expression.
func NewExpression(must, mustNot []Condition) (Expression, error) {
	if len(must) > MaxConditions {
		return Expression{}, fmt.Errorf("too many must conditions (max %d)", MaxConditions)
	}
	if len(mustNot) > MaxConditions {
		return Expression{}, fmt.Errorf("too many must_not conditions (max %d)", MaxConditions)
	}
	return Expression{must: must, mustNot: mustNot}, nil
}

// Must returns the must conditions.
func (e Expression) Must() []Condition { return e.must }

// MustNot returns the must-not conditions.
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.mustNot) == 0
}

// Range bounds a numeric condition. Nil bounds are open.
type Range struct {
	GTE *float64
	LTE *float64
}

// Condition is a single filter clause: either a tag match or a numeric range.
type Condition struct {
	key       string
	match     string
	rangeExpr *Range
}

// NewMatch creates an exact tag match condition.
func NewMatch(key, match string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if match == "" {
		return Condition{}, fmt.Errorf("match value is required for key %q", key)
	}
	return Condition{key: key, match: match}, nil
}

// NewRange creates a numeric range condition. At least one bound is required.
func NewRange(key string, r Range) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if r.GTE == nil && r.LTE == nil {
		return Condition{}, fmt.Errorf("range for key %q needs at least one bound", key)
	}
	if r.GTE != nil && r.LTE != nil && *r.GTE > *r.LTE {
		return Condition{}, fmt.Errorf("range for key %q has gte > lte", key)
	}
	return Condition{key: key, rangeExpr: &r}, nil
}

// Key returns the field name the condition applies to.
func (c Condition) Key() string { return c.key }

// Match returns the tag match value ("" for range conditions).
func (c Condition) Match() string { return c.match }

// Range returns the numeric range (nil for match conditions).
func (c Condition) Range() *Range { return c.rangeExpr }

// IsMatch reports whether the condition is a tag match.
func (c Condition) IsMatch() bool { return c.match != "" }

// IsRange reports whether the condition is a numeric range.
func (c Condition) IsRange() bool { return c.rangeExpr != nil }
