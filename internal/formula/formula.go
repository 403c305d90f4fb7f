package formula

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/alecthomas/participle/v2"

	"github.com/roach88/forge/internal/ir"
)

// Error is a formula syntax or compile error.
type Error struct {
	Formula string
	Column  int // 1-based; 0 when unknown
	Message string
}

func (e *Error) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("formula %q: column %d: %s", e.Formula, e.Column, e.Message)
	}
	return fmt.Sprintf("formula %q: %s", e.Formula, e.Message)
}

// IsError reports whether err is a formula error.
func IsError(err error) bool {
	var ferr *Error
	return errors.As(err, &ferr)
}

// Program is a compiled formula.
type Program struct {
	src  string
	root node
	deps []string
}

// Source returns the formula text the program was compiled from.
func (p *Program) Source() string {
	return p.src
}

// Dependencies returns the ordered, de-duplicated variable paths.
func (p *Program) Dependencies() []string {
	return append([]string(nil), p.deps...)
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger used for recoverable evaluation warnings.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = l
	}
}

// Evaluator compiles and evaluates formulas. Compiled programs are cached
// per formula text. Safe for concurrent use.
type Evaluator struct {
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*Program
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		logger: slog.Default(),
		cache:  make(map[string]*Program),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compile parses a formula into a Program, using the cache when possible.
func (e *Evaluator) Compile(src string) (*Program, error) {
	e.mu.RLock()
	p, ok := e.cache[src]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := Compile(src)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[src] = p
	e.mu.Unlock()
	return p, nil
}

// Compile parses a formula without caching.
func Compile(src string) (*Program, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &Error{Formula: src, Message: "empty formula"}
	}

	tree, err := parser.ParseString("", src)
	if err != nil {
		return nil, syntaxError(src, err)
	}

	root, err := buildExpr(tree)
	if err != nil {
		return nil, &Error{Formula: src, Message: err.Error()}
	}

	return &Program{src: src, root: root, deps: ExtractDependencies(src)}, nil
}

func syntaxError(src string, err error) error {
	var perr participle.Error
	if errors.As(err, &perr) {
		return &Error{Formula: src, Column: perr.Position().Column, Message: perr.Message()}
	}
	return &Error{Formula: src, Message: err.Error()}
}

// Run evaluates a compiled program against ctx.
func (e *Evaluator) Run(p *Program, ctx Context) ir.Value {
	in := &interp{src: p.src, ctx: ctx, logger: e.logger}
	return in.eval(p.root)
}

// Evaluate compiles and evaluates a formula. Only syntax errors are
// returned; data problems degrade to 0 with a log entry.
func (e *Evaluator) Evaluate(src string, ctx Context) (ir.Value, error) {
	p, err := e.Compile(src)
	if err != nil {
		return nil, err
	}
	return e.Run(p, ctx), nil
}

// Resolve evaluates a formula and converts any error to 0.
func (e *Evaluator) Resolve(src string, ctx Context) ir.Value {
	v, err := e.Evaluate(src, ctx)
	if err != nil {
		e.logger.Warn("formula evaluation failed, using 0",
			"formula", src,
			"error", err,
		)
		return ir.Number(0)
	}
	return v
}

// Validate parses and evaluates a formula with every variable set to 0.
func (e *Evaluator) Validate(src string) error {
	_, err := e.Evaluate(src, zeroContext{})
	return err
}

// varPattern matches {path} references in free text.
var varPattern = regexp.MustCompile(`\{([^{}]*)\}`)

// ReplaceVariables replaces each {path} in text with repl(path). References
// with an empty path are left untouched.
func ReplaceVariables(text string, repl func(path []string) string) string {
	return varPattern.ReplaceAllStringFunc(text, func(tok string) string {
		path, err := parseVarToken(tok)
		if err != nil {
			return tok
		}
		return repl(path)
	})
}

// Substitute replaces each {path} in text with the display form of its
// resolved value. Missing variables become 0.
func (e *Evaluator) Substitute(text string, ctx Context) string {
	return ReplaceVariables(text, func(path []string) string {
		in := &interp{src: text, ctx: ctx, logger: e.logger}
		return ir.FormatValue(in.lookup(path))
	})
}
