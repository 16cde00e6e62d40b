// Package dialect rewrites statements from the BigQuery dialect the legacy
// ETL assets were authored in into SQL that DuckDB accepts. Rewrites are
// purely textual: anything the rules do not recognize passes through
// unchanged and surfaces as a DuckDB error at execution time instead.
package dialect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/na399/MIMIC/internal/sqltext"
)

// Rule is a named, pure text rewrite. Rules are applied in the order given
// by Rules(); the order is load-bearing. The struct/JSON rewrite must run
// before the scalar type mapping (STRING inside TO_JSON_STRING must not be
// touched), and the case-sensitive REGEXP_EXTRACT rename must run before
// any case-insensitive rewriting so lowercase macro bodies that call
// DuckDB's native regexp_extract stay intact.
type Rule struct {
	Name  string
	Apply func(string) string
}

// Rules returns the ordered rewrite rules. The returned slice is freshly
// allocated; callers may not mutate shared state through it.
func Rules() []Rule {
	return []Rule{
		{Name: "struct-json", Apply: rewriteStructJSON},
		{Name: "regexp-extract", Apply: renameRegexpExtract},
		{Name: "scalar-types", Apply: mapScalarTypes},
		{Name: "quoting", Apply: normalizeQuoting},
		{Name: "literals", Apply: substituteLiterals},
		{Name: "parse-date", Apply: foldDateLiterals},
	}
}

// Normalize applies all rewrite rules, in order, to a single statement.
// It never fails; Normalize(Normalize(s)) == Normalize(s).
func Normalize(sql string) string {
	for _, r := range Rules() {
		sql = r.Apply(sql)
	}
	return sql
}

var (
	structJSONRe = regexp.MustCompile(`(?is)TO_JSON_STRING\s*\(\s*STRUCT\((.*?)\)\s*\)`)
	structAsRe   = regexp.MustCompile(`(?i)\s+AS\s+`)
)

// rewriteStructJSON turns TO_JSON_STRING(STRUCT(a AS x, b AS y)) into
// to_json(struct_pack(x := a, y := b)). Fields are split with paren-depth
// awareness so function-call arguments survive; fields without an AS alias
// pass through as-is.
func rewriteStructJSON(sql string) string {
	return structJSONRe.ReplaceAllStringFunc(sql, func(match string) string {
		inner := structJSONRe.FindStringSubmatch(match)[1]
		fields := sqltext.SplitTopLevel(inner, ',')
		parts := make([]string, 0, len(fields))
		for _, field := range fields {
			chunks := structAsRe.Split(field, -1)
			if len(chunks) == 2 {
				parts = append(parts, fmt.Sprintf("%s := %s",
					strings.TrimSpace(chunks[1]), strings.TrimSpace(chunks[0])))
			} else {
				parts = append(parts, field)
			}
		}
		return fmt.Sprintf("to_json(struct_pack(%s))", strings.Join(parts, ", "))
	})
}

var regexpExtractRe = regexp.MustCompile(`\bREGEXP_EXTRACT\b`)

// renameRegexpExtract moves BigQuery REGEXP_EXTRACT calls onto the
// BQ_REGEXP_EXTRACT helper macro (which aligns the NULL-on-no-match
// semantics) without shadowing DuckDB's built-in regexp_extract. The match
// is case-sensitive: the helper macro's own definition calls the lowercase
// built-in and must not be rewritten into recursion.
func renameRegexpExtract(sql string) string {
	return regexpExtractRe.ReplaceAllString(sql, "BQ_REGEXP_EXTRACT")
}

var (
	stringTypeRe  = regexp.MustCompile(`\bSTRING\b`)
	int64TypeRe   = regexp.MustCompile(`\bINT64\b`)
	float64TypeRe = regexp.MustCompile(`\bFLOAT64\b`)
	// DATETIME doubles as a conversion helper (DATETIME(...)) in the legacy
	// scripts. Only the bare type keyword gets rewritten; the optional
	// trailing "(" is captured so the callable form can be left alone.
	datetimeTypeRe = regexp.MustCompile(`\bDATETIME\b(\s*\()?`)
)

// mapScalarTypes rewrites BigQuery scalar type keywords to DuckDB types.
// Matches are whole-word so identifiers that merely contain the keyword
// (e.g. TO_JSON_STRING) are untouched.
func mapScalarTypes(sql string) string {
	sql = stringTypeRe.ReplaceAllString(sql, "VARCHAR")
	sql = int64TypeRe.ReplaceAllString(sql, "BIGINT")
	sql = float64TypeRe.ReplaceAllString(sql, "DOUBLE")
	sql = datetimeTypeRe.ReplaceAllStringFunc(sql, func(match string) string {
		if strings.HasSuffix(match, "(") {
			return match
		}
		return "TIMESTAMP"
	})
	return sql
}

var rawStringRe = regexp.MustCompile(`r'([^']*)'`)

// normalizeQuoting removes backtick identifier quoting (DuckDB has none)
// and downgrades raw-string literals r'...' to plain quoted literals.
func normalizeQuoting(sql string) string {
	sql = strings.ReplaceAll(sql, "`", "")
	return rawStringRe.ReplaceAllString(sql, "'$1'")
}

// literalSubstitutions are exact-text replacements for BigQuery idioms with
// no direct DuckDB equivalent. Order matters: the fingerprint expression
// contains GENERATE_UUID() and must be replaced first.
var literalSubstitutions = []struct{ from, to string }{
	{"FARM_FINGERPRINT(GENERATE_UUID())", "(abs(hash(uuid())) % 9007199254740991)"},
	{"GENERATE_UUID()", "uuid()"},
}

func substituteLiterals(sql string) string {
	for _, sub := range literalSubstitutions {
		sql = strings.ReplaceAll(sql, sub.from, sub.to)
	}
	return sql
}

var parseDateRe = regexp.MustCompile(`(?i)PARSE_DATE\s*\(\s*'[^']*'\s*,\s*'([^']+)'\s*\)`)

// foldDateLiterals folds PARSE_DATE('<format>', '<literal>') into a plain
// DATE literal. The format string is accepted but not reinterpreted, so
// this only holds for literals that are already ISO-like; it is a textual
// shortcut, not a date-format parser.
func foldDateLiterals(sql string) string {
	return parseDateRe.ReplaceAllString(sql, "DATE '$1'")
}
