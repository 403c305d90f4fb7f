package formula

import (
	"strings"
)

// ExtractDependencies returns the ordered, de-duplicated variable paths a
// formula references, joined with dots. It works from the token stream, so
// a {..} inside a string literal is not a reference, and it keeps going on
// text the lexer cannot finish.
func ExtractDependencies(src string) []string {
	var deps []string
	seen := make(map[string]bool)
	add := func(tok string) {
		path, err := parseVarToken(tok)
		if err != nil {
			return
		}
		key := strings.Join(path, ".")
		if !seen[key] {
			seen[key] = true
			deps = append(deps, key)
		}
	}

	lex, err := formulaLexer.Lex("", strings.NewReader(src))
	if err != nil {
		return nil
	}
	varType := formulaLexer.Symbols()["Var"]

	offset := 0
	for {
		tok, err := lex.Next()
		if err != nil {
			// Fall back to a plain scan of whatever the lexer could not read.
			for _, m := range varPattern.FindAllString(src[offset:], -1) {
				add(m)
			}
			break
		}
		if tok.EOF() {
			break
		}
		offset = tok.Pos.Offset + len(tok.Value)
		if tok.Type == varType {
			add(tok.Value)
		}
	}
	return deps
}
