package dice

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/forge/internal/formula"
	"github.com/roach88/forge/internal/ir"
)

// TermRoll is the outcome of one dice term.
type TermRoll struct {
	Notation string `json:"notation"`
	Sign     int    `json:"sign"`
	Count    int    `json:"count"`
	Sides    int    `json:"sides"`
	Keep     string `json:"keep,omitempty"`
	Rolls    []int  `json:"rolls"`             // in roll order
	Kept     []int  `json:"kept"`              // summed
	Dropped  []int  `json:"dropped,omitempty"` // display only
	Subtotal int    `json:"subtotal"`          // signed sum of Kept
}

// Result is the outcome of a formula.
type Result struct {
	Formula   string     `json:"formula"`
	Rolls     []TermRoll `json:"rolls"`
	Total     int        `json:"total"`
	Breakdown []string   `json:"breakdown"`
	Critical  bool       `json:"critical"`
	Fumble    bool       `json:"fumble"`
}

// Record converts the result to the form carried on onRoll events.
func (r Result) Record(label string) *ir.RollRecord {
	return &ir.RollRecord{
		Formula:   r.Formula,
		Label:     label,
		Total:     r.Total,
		Breakdown: append([]string(nil), r.Breakdown...),
		Critical:  r.Critical,
		Fumble:    r.Fumble,
	}
}

// Option configures a Roller.
type Option func(*Roller)

// WithSource sets the random source.
func WithSource(src Source) Option {
	return func(r *Roller) {
		r.src = src
	}
}

// WithEvaluator sets the formula evaluator used by RollWithContext.
func WithEvaluator(e *formula.Evaluator) Option {
	return func(r *Roller) {
		r.eval = e
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Roller) {
		r.logger = l
	}
}

// Roller rolls dice formulas. Safe for concurrent use when its Source is.
type Roller struct {
	src    Source
	eval   *formula.Evaluator
	logger *slog.Logger
}

// New creates a Roller. Without WithSource it uses a PCG source seeded
// from crypto/rand.
func New(opts ...Option) *Roller {
	r := &Roller{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	if r.src == nil {
		r.src = defaultSource()
	}
	if r.eval == nil {
		r.eval = formula.New(formula.WithLogger(r.logger))
	}
	return r
}

// Roll parses and rolls a formula.
func (r *Roller) Roll(f string) (Result, error) {
	expr, err := Parse(f)
	if err != nil {
		return Result{}, err
	}
	return r.RollExpression(expr), nil
}

// RollExpression rolls a parsed formula.
func (r *Roller) RollExpression(expr *Expression) Result {
	res := Result{Formula: expr.Formula}

	diceTerms := 0
	for i, term := range expr.Terms {
		if !term.IsDice() {
			res.Total += term.Sign * term.Flat
			res.Breakdown = append(res.Breakdown, signed(i, term.Sign, strconv.Itoa(term.Flat)))
			continue
		}

		diceTerms++
		tr := r.rollTerm(term)
		res.Total += tr.Subtotal
		res.Rolls = append(res.Rolls, tr)
		res.Breakdown = append(res.Breakdown, describe(i, tr))
	}

	// Natural 20 / natural 1 only on a lone plain 1d20.
	if diceTerms == 1 && len(res.Rolls) == 1 {
		tr := res.Rolls[0]
		if tr.Sign > 0 && tr.Count == 1 && tr.Sides == 20 && tr.Keep == "" {
			res.Critical = tr.Kept[0] == 20
			res.Fumble = tr.Kept[0] == 1
		}
	}
	return res
}

func (r *Roller) rollTerm(term Term) TermRoll {
	tr := TermRoll{
		Notation: term.Notation(),
		Sign:     term.Sign,
		Count:    term.Count,
		Sides:    term.Sides,
		Keep:     term.Keep.String(),
		Rolls:    make([]int, term.Count),
	}
	for i := range tr.Rolls {
		tr.Rolls[i] = r.src.IntN(term.Sides) + 1
	}

	if term.Keep == nil {
		tr.Kept = append([]int(nil), tr.Rolls...)
	} else {
		sorted := append([]int(nil), tr.Rolls...)
		if term.Keep.Highest {
			slices.SortFunc(sorted, func(a, b int) int { return b - a })
		} else {
			slices.Sort(sorted)
		}
		tr.Kept = sorted[:term.Keep.N]
		tr.Dropped = sorted[term.Keep.N:]
		if len(tr.Dropped) == 0 {
			tr.Dropped = nil
		}
	}

	sum := 0
	for _, v := range tr.Kept {
		sum += v
	}
	tr.Subtotal = term.Sign * sum
	return tr
}

// signed prefixes text with its sign. The first term omits a plus.
func signed(index, sign int, text string) string {
	switch {
	case sign < 0:
		return "-" + text
	case index > 0:
		return "+" + text
	}
	return text
}

func describe(index int, tr TermRoll) string {
	s := fmt.Sprintf("%s: %s", signed(index, tr.Sign, tr.Notation), joinInts(tr.Kept))
	if len(tr.Dropped) > 0 {
		s += " dropped " + joinInts(tr.Dropped)
	}
	return s + " = " + strconv.Itoa(tr.Subtotal)
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// RollWithContext substitutes {field} references through the formula
// evaluator, truncating each to an integer, then rolls the result.
func (r *Roller) RollWithContext(f string, ctx formula.Context) (Result, error) {
	resolved := r.resolve(f, func(path []string) string {
		v := r.eval.Resolve("{"+strings.Join(path, ".")+"}", ctx)
		n, ok := ir.AsNumber(v)
		if !ok {
			r.logger.Warn("dice variable is not numeric, using 0",
				"formula", f,
				"variable", strings.Join(path, "."),
			)
			n = 0
		}
		return strconv.FormatInt(int64(math.Trunc(n)), 10)
	})

	res, err := r.Roll(resolved)
	if err != nil {
		return Result{}, err
	}
	res.Formula = f
	return res, nil
}

// Validate checks notation with every variable replaced by 1.
func Validate(f string) error {
	_, err := Parse(substituteOnes(f))
	return err
}

func substituteOnes(f string) string {
	return normaliseSigns(formula.ReplaceVariables(f, func([]string) string { return "1" }))
}

func (r *Roller) resolve(f string, repl func(path []string) string) string {
	return normaliseSigns(formula.ReplaceVariables(f, repl))
}

// normaliseSigns removes whitespace and folds sign pairs left by
// substituting negative values, so "1d20 + -2" becomes "1d20-2".
func normaliseSigns(s string) string {
	s = strings.Join(strings.Fields(s), "")
	for {
		next := strings.NewReplacer("+-", "-", "-+", "-", "--", "+", "++", "+").Replace(s)
		if next == s {
			return s
		}
		s = next
	}
}

// RollD20 rolls 1d20 and adds mod.
func (r *Roller) RollD20(mod int) Result {
	return r.withModifier("1d20", mod)
}

// RollAdvantage rolls 2d20, keeps the highest, and adds mod.
func (r *Roller) RollAdvantage(mod int) Result {
	return r.withModifier("2d20kh1", mod)
}

// RollDisadvantage rolls 2d20, keeps the lowest, and adds mod.
func (r *Roller) RollDisadvantage(mod int) Result {
	return r.withModifier("2d20kl1", mod)
}

// Roll4d6DropLowest rolls an ability score.
func (r *Roller) Roll4d6DropLowest() Result {
	return r.withModifier("4d6kh3", 0)
}

func (r *Roller) withModifier(f string, mod int) Result {
	expr, err := Parse(f)
	if err != nil {
		// Fixed formulas; unreachable.
		panic(err)
	}
	res := r.RollExpression(expr)
	if mod != 0 {
		res.Total += mod
		sign := 1
		if mod < 0 {
			sign = -1
		}
		res.Breakdown = append(res.Breakdown, signed(1, sign, strconv.Itoa(abs(mod))))
		res.Formula = fmt.Sprintf("%s%+d", f, mod)
	}
	return res
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
