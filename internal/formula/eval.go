package formula

import (
	"log/slog"
	"math"
	"strings"

	"github.com/roach88/forge/internal/ir"
)

// Context resolves variable paths during evaluation.
type Context interface {
	Lookup(path []string) (ir.Value, bool)
}

// Vars is a Context backed by a nested object.
type Vars ir.Object

// Lookup implements Context.
func (v Vars) Lookup(path []string) (ir.Value, bool) {
	return ir.Object(v).Lookup(path)
}

// ContextFunc adapts a function to Context.
type ContextFunc func(path []string) (ir.Value, bool)

// Lookup implements Context.
func (f ContextFunc) Lookup(path []string) (ir.Value, bool) {
	return f(path)
}

// zeroContext resolves every variable to 0.
type zeroContext struct{}

func (zeroContext) Lookup([]string) (ir.Value, bool) {
	return ir.Number(0), true
}

// interp walks one program against one context.
type interp struct {
	src    string
	ctx    Context
	logger *slog.Logger
}

func (in *interp) eval(n node) ir.Value {
	switch n := n.(type) {
	case literal:
		return n.Value
	case variable:
		return in.lookup(n.Path)
	case binary:
		return in.binary(n)
	case call:
		return in.call(n)
	}
	return ir.Number(0)
}

func (in *interp) lookup(path []string) ir.Value {
	if in.ctx != nil {
		if v, ok := in.ctx.Lookup(path); ok {
			if ir.IsNull(v) {
				return ir.Number(0)
			}
			return v
		}
	}
	in.logger.Warn("formula variable not found, using 0",
		"formula", in.src,
		"variable", strings.Join(path, "."),
	)
	return ir.Number(0)
}

func (in *interp) binary(n binary) ir.Value {
	left := in.eval(n.Left)
	right := in.eval(n.Right)

	switch n.Op {
	case "==", "!=", ">", "<", ">=", "<=":
		return ir.Bool(compare(n.Op, left, right))
	case "+":
		if isText(left) || isText(right) {
			return ir.Text(ir.FormatValue(left) + ir.FormatValue(right))
		}
	}

	l := in.number(left)
	r := in.number(right)

	var out float64
	switch n.Op {
	case "+":
		out = l + r
	case "-":
		out = l - r
	case "*":
		out = l * r
	case "/":
		if r == 0 {
			in.logger.Debug("formula division by zero, using 0", "formula", in.src)
			return ir.Number(0)
		}
		out = l / r
	case "%":
		if r == 0 {
			in.logger.Debug("formula modulo by zero, using 0", "formula", in.src)
			return ir.Number(0)
		}
		out = math.Mod(l, r)
	}
	return finite(out)
}

func (in *interp) number(v ir.Value) float64 {
	f, ok := ir.AsNumber(v)
	if !ok {
		in.logger.Debug("formula operand is not numeric, using 0",
			"formula", in.src,
			"operand", ir.FormatValue(v),
		)
		return 0
	}
	return f
}

func (in *interp) call(n call) ir.Value {
	if n.Fn == "if" {
		// Lazy: only the taken branch is evaluated.
		if ir.Truthy(in.eval(n.Args[0])) {
			return in.eval(n.Args[1])
		}
		return in.eval(n.Args[2])
	}

	args := make([]float64, len(n.Args))
	for i, a := range n.Args {
		args[i] = in.number(in.eval(a))
	}

	var out float64
	switch n.Fn {
	case "floor":
		out = math.Floor(args[0])
	case "ceil":
		out = math.Ceil(args[0])
	case "round":
		out = math.Floor(args[0] + 0.5)
	case "abs":
		out = math.Abs(args[0])
	case "max":
		out = args[0]
		for _, a := range args[1:] {
			out = math.Max(out, a)
		}
	case "min":
		out = args[0]
		for _, a := range args[1:] {
			out = math.Min(out, a)
		}
	case "clamp":
		out = math.Min(math.Max(args[0], args[1]), args[2])
	}
	return finite(out)
}

// isText reports whether v is text with no numeric reading.
func isText(v ir.Value) bool {
	t, ok := v.(ir.Text)
	if !ok {
		return false
	}
	_, numeric := ir.AsNumber(t)
	return !numeric
}

// compare applies a comparison operator. Values compare numerically when
// both have a numeric reading, otherwise as text.
func compare(op string, left, right ir.Value) bool {
	if !isText(left) && !isText(right) {
		l, lok := ir.AsNumber(left)
		r, rok := ir.AsNumber(right)
		if lok && rok {
			switch op {
			case "==":
				return l == r
			case "!=":
				return l != r
			case ">":
				return l > r
			case "<":
				return l < r
			case ">=":
				return l >= r
			case "<=":
				return l <= r
			}
		}
	}

	ls, rs := ir.FormatValue(left), ir.FormatValue(right)
	switch op {
	case "==":
		return ls == rs
	case "!=":
		return ls != rs
	case ">":
		return ls > rs
	case "<":
		return ls < rs
	case ">=":
		return ls >= rs
	case "<=":
		return ls <= rs
	}
	return false
}

// Compare is the comparison used by rule conditions. It adds the contains
// operator to the formula comparisons.
func Compare(op ir.Operator, left, right ir.Value) bool {
	if op == ir.OpContains {
		return strings.Contains(strings.ToLower(ir.FormatValue(left)), strings.ToLower(ir.FormatValue(right)))
	}
	return compare(string(op), left, right)
}

func finite(f float64) ir.Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ir.Number(0)
	}
	return ir.Number(f)
}
