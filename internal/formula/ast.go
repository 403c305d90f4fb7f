package formula

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/forge/internal/ir"
)

// node is a formula AST node. Only the four kinds below implement it.
type node interface {
	node()
}

// literal is a constant number, string or boolean.
type literal struct {
	Value ir.Value
}

// variable is a {path} reference, split on dots.
type variable struct {
	Path []string
}

// binary is an arithmetic or comparison operator. Unary minus is
// represented as 0 - operand.
type binary struct {
	Op          string
	Left, Right node
}

// call is a built-in function application.
type call struct {
	Fn   string
	Args []node
}

func (literal) node()  {}
func (variable) node() {}
func (binary) node()   {}
func (call) node()     {}

// arity gives the allowed argument counts of each built-in.
// max < 0 means variadic.
var arity = map[string]struct{ min, max int }{
	"floor": {1, 1},
	"ceil":  {1, 1},
	"round": {1, 1},
	"abs":   {1, 1},
	"max":   {1, -1},
	"min":   {1, -1},
	"clamp": {3, 3},
	"if":    {3, 3},
}

func buildExpr(n *exprNode) (node, error) {
	left, err := buildSum(n.Left)
	if err != nil {
		return nil, err
	}
	if n.Op == "" {
		return left, nil
	}
	right, err := buildSum(n.Right)
	if err != nil {
		return nil, err
	}
	return binary{Op: n.Op, Left: left, Right: right}, nil
}

func buildSum(n *sumNode) (node, error) {
	acc, err := buildTerm(n.Head)
	if err != nil {
		return nil, err
	}
	for _, t := range n.Tail {
		right, err := buildTerm(t.Term)
		if err != nil {
			return nil, err
		}
		acc = binary{Op: t.Op, Left: acc, Right: right}
	}
	return acc, nil
}

func buildTerm(n *termNode) (node, error) {
	acc, err := buildUnary(n.Head)
	if err != nil {
		return nil, err
	}
	for _, t := range n.Tail {
		right, err := buildUnary(t.Unary)
		if err != nil {
			return nil, err
		}
		acc = binary{Op: t.Op, Left: acc, Right: right}
	}
	return acc, nil
}

func buildUnary(n *unaryNode) (node, error) {
	if n.Primary != nil {
		return buildPrimary(n.Primary)
	}
	operand, err := buildUnary(n.Operand)
	if err != nil {
		return nil, err
	}
	if n.Op == "-" {
		return binary{Op: "-", Left: literal{Value: ir.Number(0)}, Right: operand}, nil
	}
	return operand, nil
}

func buildPrimary(n *primaryNode) (node, error) {
	switch {
	case n.Number != nil:
		f, err := strconv.ParseFloat(*n.Number, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", *n.Number)
		}
		return literal{Value: ir.Number(f)}, nil
	case n.Var != nil:
		path, err := parseVarToken(*n.Var)
		if err != nil {
			return nil, err
		}
		return variable{Path: path}, nil
	case n.String != nil:
		return literal{Value: ir.Text(unquote(*n.String))}, nil
	case n.Bool != nil:
		return literal{Value: ir.Bool(*n.Bool == "true")}, nil
	case n.Call != nil:
		return buildCall(n.Call)
	case n.Sub != nil:
		return buildExpr(n.Sub)
	}
	return nil, fmt.Errorf("empty expression")
}

func buildCall(n *callNode) (node, error) {
	name := strings.ToLower(n.Name)
	want, ok := arity[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", n.Name)
	}
	if len(n.Args) < want.min || (want.max >= 0 && len(n.Args) > want.max) {
		return nil, fmt.Errorf("function %s: wrong number of arguments: got %d, %s", name, len(n.Args), arityText(want.min, want.max))
	}
	args := make([]node, len(n.Args))
	for i, a := range n.Args {
		arg, err := buildExpr(a)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}
	return call{Fn: name, Args: args}, nil
}

func arityText(lo, hi int) string {
	switch {
	case hi < 0:
		return fmt.Sprintf("want at least %d", lo)
	case lo == hi:
		return fmt.Sprintf("want %d", lo)
	}
	return fmt.Sprintf("want %d to %d", lo, hi)
}

// parseVarToken turns "{ item.bonus }" into ["item", "bonus"].
func parseVarToken(tok string) ([]string, error) {
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(tok, "{"), "}"))
	if inner == "" {
		return nil, fmt.Errorf("empty variable reference %q", tok)
	}
	path := strings.Split(inner, ".")
	for i, p := range path {
		path[i] = strings.TrimSpace(p)
		if path[i] == "" {
			return nil, fmt.Errorf("invalid variable path %q", inner)
		}
	}
	return path, nil
}

var unescaper = strings.NewReplacer(`\"`, `"`, `\'`, `'`, `\\`, `\`, `\n`, "\n", `\t`, "\t")

func unquote(s string) string {
	if len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	return unescaper.Replace(s)
}
