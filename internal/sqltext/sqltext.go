// Package sqltext provides line-oriented SQL statement segmentation and
// depth-aware splitting of SQL text fragments. Both the dialect normalizer
// and the schema DDL parser build on the same top-level splitter.
package sqltext

import "strings"

// SplitStatements splits a multi-statement SQL script into individually
// executable statements. Full-line "--" comments are dropped before depth
// tracking. A statement closes at the first ";" in the accumulated buffer
// once a line containing ";" is seen at paren depth <= 0; anything after the
// terminator on that line is discarded. A trailing buffer without a ";" is
// emitted as the last statement.
//
// Depth tracking is a permissive heuristic, not strict parsing: unbalanced
// parens may drive the counter negative and are never treated as an error.
// Callers that need strict SQL validation must run their own balance check.
func SplitStatements(raw string) []string {
	var statements []string
	var current []string
	depth := 0

	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current = append(current, line)
		depth += strings.Count(line, "(") - strings.Count(line, ")")
		if strings.Contains(line, ";") && depth <= 0 {
			statement := strings.Join(current, "\n")
			before, _, _ := strings.Cut(statement, ";")
			if strings.TrimSpace(before) != "" {
				statements = append(statements, before)
			}
			current = nil
		}
	}
	if len(current) > 0 {
		tail := strings.Join(current, "\n")
		if strings.TrimSpace(tail) != "" {
			statements = append(statements, tail)
		}
	}
	return statements
}

// SplitTopLevel splits s on sep, ignoring separators nested inside
// parentheses. Parts are trimmed and empty parts dropped, so
// "a, f(b, c), d" split on ',' yields ["a", "f(b, c)", "d"].
func SplitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		case '(':
			depth++
		case ')':
			depth--
		}
	}
	parts = append(parts, s[start:])

	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// StripLineComments removes full-line "--" comments, keeping all other
// lines verbatim.
func StripLineComments(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
