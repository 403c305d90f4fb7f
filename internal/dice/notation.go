package dice

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var notationLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Dice", Pattern: `(?i)\d*d\d+(?:k[hl]\d+)?`},
	{Name: "Int", Pattern: `\d+`},
	{Name: "Sign", Pattern: `[-+]`},
})

var notationParser = participle.MustBuild[notation](
	participle.Lexer(notationLexer),
	participle.Elide("Whitespace"),
)

type notation struct {
	First *firstTerm  `parser:"@@"`
	Rest  []*nextTerm `parser:"@@*"`
}

// firstTerm may omit its sign.
type firstTerm struct {
	Sign string `parser:"@Sign?"`
	Atom *atom  `parser:"@@"`
}

type nextTerm struct {
	Sign string `parser:"@Sign"`
	Atom *atom  `parser:"@@"`
}

type atom struct {
	Dice *string `parser:"  @Dice"`
	Int  *string `parser:"| @Int"`
}

var diceToken = regexp.MustCompile(`(?i)^(\d*)d(\d+)(?:k([hl])(\d+))?$`)

// Keep selects which dice of a term count toward the total.
type Keep struct {
	Highest bool `json:"highest"`
	N       int  `json:"n"`
}

func (k *Keep) String() string {
	if k == nil {
		return ""
	}
	if k.Highest {
		return "kh" + strconv.Itoa(k.N)
	}
	return "kl" + strconv.Itoa(k.N)
}

// Term is one signed component of a formula. Sides is 0 for a flat integer.
type Term struct {
	Sign  int   // +1 or -1
	Count int   // dice to roll
	Sides int   // 0 for a flat term
	Keep  *Keep // nil keeps every die
	Flat  int
}

// IsDice reports whether the term rolls dice.
func (t Term) IsDice() bool {
	return t.Sides > 0
}

// Notation renders the dice part of the term without its sign.
func (t Term) Notation() string {
	if !t.IsDice() {
		return strconv.Itoa(t.Flat)
	}
	return fmt.Sprintf("%dd%d%s", t.Count, t.Sides, t.Keep.String())
}

// Expression is a parsed formula.
type Expression struct {
	Formula string
	Terms   []Term
}

// Parse parses dice notation into an Expression.
func Parse(formula string) (*Expression, error) {
	if strings.TrimSpace(formula) == "" {
		return nil, &SyntaxError{Formula: formula, Message: "empty formula", Err: ErrInvalidNotation}
	}

	tree, err := notationParser.ParseString("", formula)
	if err != nil {
		serr := &SyntaxError{Formula: formula, Message: err.Error(), Err: ErrInvalidNotation}
		var perr participle.Error
		if errors.As(err, &perr) {
			serr.Column = perr.Position().Column
			serr.Message = perr.Message()
		}
		return nil, serr
	}

	expr := &Expression{Formula: formula}
	first, err := buildTerm(formula, tree.First.Sign, tree.First.Atom)
	if err != nil {
		return nil, err
	}
	expr.Terms = append(expr.Terms, first)
	for _, next := range tree.Rest {
		term, err := buildTerm(formula, next.Sign, next.Atom)
		if err != nil {
			return nil, err
		}
		expr.Terms = append(expr.Terms, term)
	}
	return expr, nil
}

func buildTerm(formula, sign string, a *atom) (Term, error) {
	term := Term{Sign: 1}
	if sign == "-" {
		term.Sign = -1
	}

	if a.Int != nil {
		n, err := strconv.Atoi(*a.Int)
		if err != nil {
			return Term{}, limitError(formula, fmt.Sprintf("modifier %s out of range", *a.Int))
		}
		term.Flat = n
		return term, nil
	}

	m := diceToken.FindStringSubmatch(*a.Dice)
	if m == nil {
		return Term{}, &SyntaxError{Formula: formula, Message: fmt.Sprintf("malformed dice term %q", *a.Dice), Err: ErrInvalidNotation}
	}

	term.Count = 1
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Term{}, limitError(formula, fmt.Sprintf("dice count %s out of range", m[1]))
		}
		term.Count = n
	}
	sides, err := strconv.Atoi(m[2])
	if err != nil {
		return Term{}, limitError(formula, fmt.Sprintf("side count %s out of range", m[2]))
	}
	term.Sides = sides

	switch {
	case term.Count < 1:
		return Term{}, limitError(formula, "dice count must be at least 1")
	case term.Count > MaxDice:
		return Term{}, limitError(formula, fmt.Sprintf("dice count %d exceeds %d", term.Count, MaxDice))
	case term.Sides < 1:
		return Term{}, limitError(formula, "side count must be at least 1")
	case term.Sides > MaxSides:
		return Term{}, limitError(formula, fmt.Sprintf("side count %d exceeds %d", term.Sides, MaxSides))
	}

	if m[3] != "" {
		k, err := strconv.Atoi(m[4])
		if err != nil || k < 1 {
			return Term{}, limitError(formula, "keep count must be at least 1")
		}
		// Keeping more dice than were rolled keeps them all.
		term.Keep = &Keep{Highest: strings.EqualFold(m[3], "h"), N: min(k, term.Count)}
	}
	return term, nil
}

func limitError(formula, msg string) error {
	return &SyntaxError{Formula: formula, Message: msg, Err: ErrDiceLimit}
}
