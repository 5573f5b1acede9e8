package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Calculator evaluates arithmetic expressions deterministically, keeping
// numeric work out of the language model.
type Calculator struct{}

// NewCalculator creates the calculator tool.
func NewCalculator() *Calculator { return &Calculator{} }

type calculatorInput struct {
	Expression string `json:"expression"`
}

// Name implements Tool.
func (c *Calculator) Name() string { return "calculator" }

// Description implements Tool.
func (c *Calculator) Description() string {
	return `Evaluate an arithmetic expression with + - * / % ^ and parentheses. Input: {"expression": "..."}.`
}

// Validate implements Tool.
func (c *Calculator) Validate(input json.RawMessage) error {
	var in calculatorInput
	if err := json.Unmarshal(input, &in); err != nil {
		return fmt.Errorf("parse input: %w", err)
	}
	if strings.TrimSpace(in.Expression) == "" {
		return errors.New("expression is required")
	}
	return nil
}

// Invoke implements Tool.
func (c *Calculator) Invoke(_ context.Context, input json.RawMessage) (Result, error) {
	var in calculatorInput
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{}, fmt.Errorf("parse input: %w", err)
	}

	value, err := evaluate(in.Expression)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate %q: %w", in.Expression, err)
	}

	return Result{
		Content: fmt.Sprintf("%s = %s", strings.TrimSpace(in.Expression),
			strconv.FormatFloat(value, 'g', -1, 64)),
	}, nil
}

type operator struct {
	precedence int
	rightAssoc bool
	apply      func(a, b float64) (float64, error)
}

var operators = map[string]operator{
	"+": {1, false, func(a, b float64) (float64, error) { return a + b, nil }},
	"-": {1, false, func(a, b float64) (float64, error) { return a - b, nil }},
	"*": {2, false, func(a, b float64) (float64, error) { return a * b, nil }},
	"/": {2, false, func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, errors.New("division by zero")
		}
		return a / b, nil
	}},
	"%": {2, false, func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, errors.New("division by zero")
		}
		return math.Mod(a, b), nil
	}},
	"^": {3, true, func(a, b float64) (float64, error) { return math.Pow(a, b), nil }},
	// unary minus, rewritten during tokenization
	"~": {4, true, func(_, b float64) (float64, error) { return -b, nil }},
}

// evaluate runs a shunting-yard pass into RPN and folds it.
func evaluate(expr string) (float64, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return 0, err
	}

	var output []string
	var stack []string
	for _, tok := range tokens {
		switch {
		case tok == "(":
			stack = append(stack, tok)
		case tok == ")":
			for {
				if len(stack) == 0 {
					return 0, errors.New("mismatched parentheses")
				}
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top == "(" {
					break
				}
				output = append(output, top)
			}
		default:
			op, isOp := operators[tok]
			if !isOp {
				output = append(output, tok)
				continue
			}
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				topOp, ok := operators[top]
				if !ok || topOp.precedence < op.precedence ||
					(topOp.precedence == op.precedence && op.rightAssoc) {
					break
				}
				output = append(output, top)
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, tok)
		}
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top == "(" {
			return 0, errors.New("mismatched parentheses")
		}
		output = append(output, top)
	}

	return foldRPN(output)
}

func foldRPN(rpn []string) (float64, error) {
	var vals []float64
	for _, tok := range rpn {
		op, isOp := operators[tok]
		if !isOp {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return 0, fmt.Errorf("bad number %q", tok)
			}
			vals = append(vals, v)
			continue
		}

		if tok == "~" {
			if len(vals) < 1 {
				return 0, errors.New("malformed expression")
			}
			v, err := op.apply(0, vals[len(vals)-1])
			if err != nil {
				return 0, err
			}
			vals[len(vals)-1] = v
			continue
		}

		if len(vals) < 2 {
			return 0, errors.New("malformed expression")
		}
		a, b := vals[len(vals)-2], vals[len(vals)-1]
		vals = vals[:len(vals)-2]
		v, err := op.apply(a, b)
		if err != nil {
			return 0, err
		}
		vals = append(vals, v)
	}

	if len(vals) != 1 {
		return 0, errors.New("malformed expression")
	}
	return vals[0], nil
}

// tokenize splits the expression, rewriting unary minus to "~".
func tokenize(expr string) ([]string, error) {
	var tokens []string
	i := 0
	for i < len(expr) {
		ch := rune(expr[i])
		switch {
		case unicode.IsSpace(ch):
			i++
		case unicode.IsDigit(ch) || ch == '.':
			j := i
			for j < len(expr) && (unicode.IsDigit(rune(expr[j])) || expr[j] == '.') {
				j++
			}
			tokens = append(tokens, expr[i:j])
			i = j
		case ch == '(' || ch == ')':
			tokens = append(tokens, string(ch))
			i++
		case strings.ContainsRune("+-*/%^", ch):
			tok := string(ch)
			if ch == '-' && expectsOperand(tokens) {
				tok = "~"
			}
			tokens = append(tokens, tok)
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q", ch)
		}
	}
	if len(tokens) == 0 {
		return nil, errors.New("empty expression")
	}
	return tokens, nil
}

// expectsOperand reports whether the next token starts an operand, which
// makes a following minus unary.
func expectsOperand(tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}
	last := tokens[len(tokens)-1]
	if last == "(" {
		return true
	}
	_, isOp := operators[last]
	return isOp
}
