package formula

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// formulaLexer tokenises formula text. Rule order matters: the first
// matching rule wins at each position.
var formulaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Var", Pattern: `\{[^{}]*\}`},
	{Name: "Number", Pattern: `(?:\d+(?:\.\d*)?|\.\d+)`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Op", Pattern: `==|!=|>=|<=|[-+*/%<>(),]`},
})

var parser = participle.MustBuild[exprNode](
	participle.Lexer(formulaLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// exprNode is a sum with at most one trailing comparison. Comparisons do
// not chain.
type exprNode struct {
	Left  *sumNode `parser:"@@"`
	Op    string   `parser:"( @(\"==\" | \"!=\" | \">=\" | \"<=\" | \">\" | \"<\")"`
	Right *sumNode `parser:"  @@ )?"`
}

type sumNode struct {
	Head *termNode   `parser:"@@"`
	Tail []*sumTail `parser:"@@*"`
}

type sumTail struct {
	Op   string    `parser:"@(\"+\" | \"-\")"`
	Term *termNode `parser:"@@"`
}

type termNode struct {
	Head *unaryNode  `parser:"@@"`
	Tail []*termTail `parser:"@@*"`
}

type termTail struct {
	Op    string     `parser:"@(\"*\" | \"/\" | \"%\")"`
	Unary *unaryNode `parser:"@@"`
}

type unaryNode struct {
	Op      string       `parser:"  ( @(\"-\" | \"+\")"`
	Operand *unaryNode   `parser:"    @@ )"`
	Primary *primaryNode `parser:"| @@"`
}

type primaryNode struct {
	Number *string   `parser:"  @Number"`
	Var    *string   `parser:"| @Var"`
	String *string   `parser:"| @String"`
	Bool   *string   `parser:"| @(\"true\" | \"false\")"`
	Call   *callNode `parser:"| @@"`
	Sub    *exprNode `parser:"| \"(\" @@ \")\""`
}

type callNode struct {
	Name string      `parser:"@Ident \"(\""`
	Args []*exprNode `parser:"( @@ ( \",\" @@ )* )? \")\""`
}
