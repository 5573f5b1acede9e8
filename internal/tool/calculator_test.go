package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

func TestCalculator_Evaluate(t *testing.T) {
	cases := []struct {
		expr string
		want string
	}{
		{"2 + 3 * 4", "2 + 3 * 4 = 14"},
		{"(2 + 3) * 4", "(2 + 3) * 4 = 20"},
		{"10 / 4", "10 / 4 = 2.5"},
		{"2 ^ 10", "2 ^ 10 = 1024"},
		{"2 ^ 3 ^ 2", "2 ^ 3 ^ 2 = 512"}, // right associative
		{"-3 + 5", "-3 + 5 = 2"},
		{"2 * -3", "2 * -3 = -6"},
		{"10 % 3", "10 % 3 = 1"},
		{"19.5 * 0.2", "19.5 * 0.2 = 3.9"},
	}

	c := NewCalculator()
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			input := json.RawMessage(fmt.Sprintf(`{"expression": %q}`, tc.expr))
			if err := c.Validate(input); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			res, err := c.Invoke(context.Background(), input)
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if res.Content != tc.want {
				t.Errorf("got %q, want %q", res.Content, tc.want)
			}
		})
	}
}

func TestCalculator_Errors(t *testing.T) {
	cases := []string{
		"1 / 0",
		"(1 + 2",
		"1 + 2)",
		"2 +",
		"two plus two",
	}

	c := NewCalculator()
	for _, expr := range cases {
		t.Run(expr, func(t *testing.T) {
			input := json.RawMessage(fmt.Sprintf(`{"expression": %q}`, expr))
			if _, err := c.Invoke(context.Background(), input); err == nil {
				t.Errorf("expected error for %q", expr)
			}
		})
	}
}

func TestCalculator_ValidateRejectsEmpty(t *testing.T) {
	c := NewCalculator()
	if err := c.Validate(json.RawMessage(`{"expression": "  "}`)); err == nil {
		t.Error("expected validation error for empty expression")
	}
}
