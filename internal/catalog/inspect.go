package catalog

import (
	"sort"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
	"github.com/pkg/errors"
)

// Inspection describes a catalog statement as seen by the SQL parser.
type Inspection struct {
	Digest     string
	Normalized string
	// Tables lists schema-qualified tables, sorted and deduplicated.
	Tables []string
	// Parsed is false when the parser does not understand the statement;
	// the read-only check then falls back to the leading keyword.
	Parsed   bool
	ReadOnly bool
}

// Inspect parses sqlText and reports its digest, referenced tables and
// whether it is a read-only statement.
func Inspect(sqlText string) Inspection {
	normalized, digest := parser.NormalizeDigest(sqlText)
	out := Inspection{Normalized: normalized}
	if digest != nil {
		out.Digest = digest.String()
	}
	stmt, err := parser.New().ParseOneStmt(sqlText, "", "")
	if err != nil {
		out.ReadOnly = readOnlyKeyword(sqlText)
		return out
	}
	out.Parsed = true
	switch stmt.(type) {
	case *ast.SelectStmt, *ast.SetOprStmt, *ast.ShowStmt:
		out.ReadOnly = true
	}
	collector := &tableCollector{tables: map[string]struct{}{}}
	stmt.Accept(collector)
	out.Tables = collector.sorted()
	return out
}

func readOnlyKeyword(sqlText string) bool {
	fields := strings.Fields(sqlText)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "SHOW":
		return true
	}
	return false
}

// Validate checks that every variant of every query is read-only.
func (c *Catalog) Validate() error {
	for _, q := range c.queries {
		for i, v := range q.Variants {
			info := Inspect(v.SQL)
			if !info.ReadOnly {
				return errors.Errorf("catalog: query %s variant %d (%s) is not a read-only statement", q.ID, i, v.When.Desc)
			}
		}
	}
	return nil
}

type tableCollector struct {
	tables map[string]struct{}
}

// Enter records table names during AST traversal.
func (c *tableCollector) Enter(in ast.Node) (ast.Node, bool) {
	if tbl, ok := in.(*ast.TableName); ok {
		name := strings.ToLower(tbl.Name.O)
		if schema := strings.ToLower(tbl.Schema.O); schema != "" {
			name = schema + "." + name
		}
		c.tables[name] = struct{}{}
	}
	return in, false
}

// Leave implements ast.Visitor.
func (c *tableCollector) Leave(in ast.Node) (ast.Node, bool) {
	return in, true
}

func (c *tableCollector) sorted() []string {
	if len(c.tables) == 0 {
		return nil
	}
	out := make([]string, 0, len(c.tables))
	for name := range c.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
