package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_StructJSON(t *testing.T) {
	in := "SELECT TO_JSON_STRING(STRUCT(a AS x, b AS y)) FROM t"
	want := "SELECT to_json(struct_pack(x := a, y := b)) FROM t"
	assert.Equal(t, want, Normalize(in))
}

func TestNormalize_StructJSONNestedParens(t *testing.T) {
	in := "SELECT TO_JSON_STRING(STRUCT(coalesce(a, b) AS x, f(c, d) AS y))"
	want := "SELECT to_json(struct_pack(x := coalesce(a, b), y := f(c, d)))"
	assert.Equal(t, want, Normalize(in))
}

func TestNormalize_StructJSONFieldWithoutAlias(t *testing.T) {
	in := "TO_JSON_STRING(STRUCT(a AS x, b))"
	assert.Equal(t, "to_json(struct_pack(x := a, b))", Normalize(in))
}

func TestNormalize_RegexpExtractCaseSensitive(t *testing.T) {
	assert.Equal(t,
		"SELECT BQ_REGEXP_EXTRACT(col, 'p')",
		Normalize("SELECT REGEXP_EXTRACT(col, 'p')"))

	// The helper macro body calls DuckDB's lowercase built-in; it must not
	// be rewritten into recursion.
	macro := "CREATE MACRO bq_helper(s, p) AS regexp_extract(s, p)"
	assert.Equal(t, macro, Normalize(macro))
}

func TestNormalize_ScalarTypes(t *testing.T) {
	tests := []struct{ in, want string }{
		{"CAST(x AS STRING)", "CAST(x AS VARCHAR)"},
		{"CAST(x AS INT64)", "CAST(x AS BIGINT)"},
		{"CAST(x AS FLOAT64)", "CAST(x AS DOUBLE)"},
		{"col DATETIME", "col TIMESTAMP"},
		// DATETIME as a callable conversion helper stays.
		{"DATETIME(col)", "DATETIME(col)"},
		{"DATETIME (col)", "DATETIME (col)"},
		// Identifiers merely containing the keyword are untouched.
		{"TO_JSON_STRINGY(x)", "TO_JSON_STRINGY(x)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "input %q", tt.in)
	}
}

func TestNormalize_StructJSONBeforeTypeRewrite(t *testing.T) {
	// TO_JSON_STRING contains the STRING keyword at a word boundary only
	// after naive rewriting; the struct rule must fire first so the call
	// name never reaches the type mapper.
	in := "SELECT TO_JSON_STRING(STRUCT(a AS x))"
	assert.Equal(t, "SELECT to_json(struct_pack(x := a))", Normalize(in))
}

func TestNormalize_Quoting(t *testing.T) {
	assert.Equal(t, "SELECT a FROM project.dataset.tbl", Normalize("SELECT `a` FROM `project.dataset.tbl`"))
	assert.Equal(t, `WHERE x ~ '\d+'`, Normalize(`WHERE x ~ r'\d+'`))
}

func TestNormalize_LiteralSubstitutions(t *testing.T) {
	assert.Equal(t,
		"SELECT (abs(hash(uuid())) % 9007199254740991)",
		Normalize("SELECT FARM_FINGERPRINT(GENERATE_UUID())"))
	assert.Equal(t, "SELECT uuid()", Normalize("SELECT GENERATE_UUID()"))
}

func TestNormalize_ParseDateFolding(t *testing.T) {
	assert.Equal(t,
		"SELECT DATE '2020-01-01'",
		Normalize("SELECT PARSE_DATE('%Y-%m-%d', '2020-01-01')"))
	// Non-literal second arguments are left for DuckDB to reject.
	passthrough := "SELECT PARSE_DATE('%Y-%m-%d', col)"
	assert.Equal(t, passthrough, Normalize(passthrough))
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"SELECT TO_JSON_STRING(STRUCT(a AS x, f(b, c) AS y)), CAST(v AS INT64) FROM `p.d.t` WHERE s = r'x' AND d > PARSE_DATE('%Y-%m-%d', '2021-06-01');",
		"SELECT REGEXP_EXTRACT(col, 'p'), GENERATE_UUID(), FARM_FINGERPRINT(GENERATE_UUID())",
		"CREATE MACRO bq_helper(s, p) AS regexp_extract(s, p)",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "re-normalizing %q changed output", in)
	}
}

func TestNormalize_UnmatchedSyntaxPassesThrough(t *testing.T) {
	in := "SELECT SOME_EXOTIC_FN(a, b) OVER w FROM t QUALIFY rn = 1"
	assert.Equal(t, in, Normalize(in))
}

func TestRules_Order(t *testing.T) {
	var names []string
	for _, r := range Rules() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{
		"struct-json", "regexp-extract", "scalar-types",
		"quoting", "literals", "parse-date",
	}, names)
}
