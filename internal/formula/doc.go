// Package formula implements the closed expression language used by derived
// fields, rule operands and message templates.
//
// Formulas are parsed with a participle grammar into a four-node AST
// (literal, variable, binary, call) and tree-walked. There is no path from
// formula text to host code execution.
//
// Grammar:
//
//	expr    = sum [ ("==" | "!=" | ">=" | "<=" | ">" | "<") sum ]
//	sum     = term { ("+" | "-") term }
//	term    = unary { ("*" | "/" | "%") unary }
//	unary   = ("-" | "+") unary | primary
//	primary = number | string | "true" | "false" | "{" path "}"
//	        | ident "(" [ expr { "," expr } ] ")" | "(" expr ")"
//
// Evaluation never fails on data: a missing variable is 0 with a warning,
// division or modulo by zero is 0, and a non-finite result is 0.
package formula
