// Package schema parses reference CREATE TABLE DDL documents into an
// immutable catalog of ordered column definitions. The catalog drives
// typed CSV ingestion: column order defines the physical load order and is
// never reordered after parsing.
package schema

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/na399/MIMIC/internal/sqltext"
)

// Column is a single column definition. Type is the free-form type
// expression normalized to DuckDB spelling.
type Column struct {
	Name string
	Type string
}

// Table is an ordered set of column definitions for one schema.table.
type Table struct {
	Schema  string
	Name    string
	Columns []Column
}

// ColumnNames returns the column names in definition order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Catalog maps schema name to table name to table definition. Keys are
// lower-cased. A catalog is built once per DDL document and treated as
// read-only afterwards.
type Catalog map[string]map[string]Table

// Lookup finds a table definition, matching schema and table names
// case-insensitively.
func (c Catalog) Lookup(schemaName, tableName string) (Table, bool) {
	tables, ok := c[strings.ToLower(schemaName)]
	if !ok {
		return Table{}, false
	}
	t, ok := tables[strings.ToLower(tableName)]
	return t, ok
}

var createTableRe = regexp.MustCompile(
	`(?i)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?"?([A-Za-z_]\w*)"?\."?([A-Za-z_]\w*)"?\s*\(`)

// Parse extracts all CREATE TABLE schema.table (...) blocks from a DDL
// document. Blocks that do not match the pattern, tables whose body is not
// closed by a balancing ")" followed by ";", and tables with zero usable
// columns are silently skipped: absent tables are the caller's problem,
// not a parse error.
func Parse(ddl string) Catalog {
	ddl = sqltext.StripLineComments(ddl)
	catalog := Catalog{}

	for _, loc := range createTableRe.FindAllStringSubmatchIndex(ddl, -1) {
		schemaName := strings.ToLower(ddl[loc[2]:loc[3]])
		tableName := strings.ToLower(ddl[loc[4]:loc[5]])

		body, ok := captureBody(ddl, loc[1])
		if !ok {
			continue
		}
		columns := parseColumns(body)
		if len(columns) == 0 {
			continue
		}

		if catalog[schemaName] == nil {
			catalog[schemaName] = map[string]Table{}
		}
		catalog[schemaName][tableName] = Table{
			Schema:  schemaName,
			Name:    tableName,
			Columns: columns,
		}
	}
	return catalog
}

// captureBody returns the text between the CREATE TABLE open paren (which
// ends at offset `from`) and its balancing close paren, requiring a ";"
// terminator after the close.
func captureBody(ddl string, from int) (string, bool) {
	depth := 1
	for i := from; i < len(ddl); i++ {
		switch ddl[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				rest := strings.TrimSpace(ddl[i+1:])
				if !strings.HasPrefix(rest, ";") {
					return "", false
				}
				return ddl[from:i], true
			}
		}
	}
	return "", false
}

// constraintKeywords mark clauses that are table-level constraints rather
// than column definitions. Detection is by leading unquoted keyword only;
// a quoted column that happens to be named "constraint" still parses as a
// column.
var constraintKeywords = map[string]bool{
	"CONSTRAINT": true,
	"PRIMARY":    true,
	"FOREIGN":    true,
}

var (
	notNullRe       = regexp.MustCompile(`(?i)\s+NOT\s+NULL\b`)
	nullRe          = regexp.MustCompile(`(?i)\s+NULL\b`)
	timestampArgRe  = regexp.MustCompile(`(?i)\bTIMESTAMP\s*\(\s*\d+\s*\)`)
	doublePrecRe    = regexp.MustCompile(`(?i)\bDOUBLE\s+PRECISION\b`)
	quotedLeadingRe = regexp.MustCompile(`^"`)
)

func parseColumns(body string) []Column {
	var columns []Column
	for _, clause := range sqltext.SplitTopLevel(body, ',') {
		fields := strings.Fields(clause)
		if len(fields) < 2 {
			continue
		}
		if !quotedLeadingRe.MatchString(fields[0]) && constraintKeywords[strings.ToUpper(fields[0])] {
			continue
		}
		name := strings.ToLower(strings.Trim(fields[0], `"`))
		typeExpr := normalizeType(strings.Join(fields[1:], " "))
		if typeExpr == "" {
			continue
		}
		columns = append(columns, Column{Name: name, Type: typeExpr})
	}
	return columns
}

// normalizeType strips nullability keywords and collapses spellings DuckDB
// does not need: TIMESTAMP(n) precision parameters and the two-word
// DOUBLE PRECISION float type.
func normalizeType(typeExpr string) string {
	typeExpr = notNullRe.ReplaceAllString(typeExpr, "")
	typeExpr = nullRe.ReplaceAllString(typeExpr, "")
	typeExpr = timestampArgRe.ReplaceAllString(typeExpr, "TIMESTAMP")
	typeExpr = doublePrecRe.ReplaceAllString(typeExpr, "DOUBLE")
	return strings.TrimSpace(typeExpr)
}

// Process-wide catalog cache, keyed by DDL file path. Parsed once and
// read-only afterwards; invalidated only by process exit.
var (
	cacheMu sync.Mutex
	cache   = map[string]Catalog{}
)

// LoadCached reads and parses the DDL document at path, caching the result
// for the lifetime of the process.
func LoadCached(path string) (Catalog, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if c, ok := cache[path]; ok {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema DDL %s: %w", path, err)
	}
	c := Parse(string(raw))
	cache[path] = c
	return c, nil
}
