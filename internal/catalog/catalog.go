package catalog

import (
	"fmt"
	"strings"

	"myperf/internal/db"

	"github.com/pkg/errors"
)

// Variant is one version-specific rendering of a diagnostic query.
type Variant struct {
	When Predicate
	SQL  string
}

// DiagnosticQuery is a fixed read-only introspection statement with its
// version-conditional variants. Variants are checked in declaration order.
type DiagnosticQuery struct {
	ID       string
	Title    string
	FileName string
	// Raw queries are persisted as plain text instead of a quoted table.
	Raw      bool
	Variants []Variant
}

// Catalog is an immutable, ordered registry of diagnostic queries.
type Catalog struct {
	queries []DiagnosticQuery
}

// New builds a catalog, rejecting duplicate ids or file names and queries
// without variants.
func New(queries ...DiagnosticQuery) (*Catalog, error) {
	ids := make(map[string]struct{}, len(queries))
	files := make(map[string]string, len(queries))
	out := make([]DiagnosticQuery, 0, len(queries))
	for _, q := range queries {
		if strings.TrimSpace(q.ID) == "" {
			return nil, errors.New("catalog: query id is empty")
		}
		if _, ok := ids[q.ID]; ok {
			return nil, errors.Errorf("catalog: duplicate query id %s", q.ID)
		}
		ids[q.ID] = struct{}{}
		if q.FileName == "" {
			return nil, errors.Errorf("catalog: query %s has no file name", q.ID)
		}
		if other, ok := files[q.FileName]; ok {
			return nil, errors.Errorf("catalog: queries %s and %s share file %s", other, q.ID, q.FileName)
		}
		files[q.FileName] = q.ID
		if len(q.Variants) == 0 {
			return nil, errors.Errorf("catalog: query %s has no variants", q.ID)
		}
		for i, v := range q.Variants {
			if v.When.Match == nil {
				return nil, errors.Errorf("catalog: query %s variant %d has no predicate", q.ID, i)
			}
			if strings.TrimSpace(v.SQL) == "" {
				return nil, errors.Errorf("catalog: query %s variant %d has no sql", q.ID, i)
			}
		}
		q.Variants = append([]Variant(nil), q.Variants...)
		out = append(out, q)
	}
	return &Catalog{queries: out}, nil
}

// MustNew is New for static catalogs.
func MustNew(queries ...DiagnosticQuery) *Catalog {
	c, err := New(queries...)
	if err != nil {
		panic(err)
	}
	return c
}

// Queries returns the registered queries in declaration order.
func (c *Catalog) Queries() []DiagnosticQuery {
	return append([]DiagnosticQuery(nil), c.queries...)
}

// Len returns the number of registered queries.
func (c *Catalog) Len() int {
	return len(c.queries)
}

// Lookup finds a query by id.
func (c *Catalog) Lookup(id string) (DiagnosticQuery, bool) {
	for _, q := range c.queries {
		if q.ID == id {
			return q, true
		}
	}
	return DiagnosticQuery{}, false
}

// Resolved is the outcome of variant selection for one query.
type Resolved struct {
	Query   DiagnosticQuery
	SQL     string
	Variant int
	Err     error
}

// Resolve selects, for every query in declaration order, the first variant
// whose predicate matches v. Queries with no matching variant carry an
// *UnresolvedQueryError instead of SQL; the caller decides whether that is
// fatal.
func (c *Catalog) Resolve(v db.ServerVersion) []Resolved {
	out := make([]Resolved, 0, len(c.queries))
	for _, q := range c.queries {
		sql, idx, err := resolveQuery(q, v)
		out = append(out, Resolved{Query: q, SQL: sql, Variant: idx, Err: err})
	}
	return out
}

// ResolveOne resolves a single query by id.
func (c *Catalog) ResolveOne(id string, v db.ServerVersion) (string, error) {
	q, ok := c.Lookup(id)
	if !ok {
		return "", errors.Errorf("catalog: unknown query %s", id)
	}
	sql, _, err := resolveQuery(q, v)
	return sql, err
}

func resolveQuery(q DiagnosticQuery, v db.ServerVersion) (string, int, error) {
	for i, variant := range q.Variants {
		if variant.When.Match(v) {
			return variant.SQL, i, nil
		}
	}
	return "", -1, &UnresolvedQueryError{QueryID: q.ID, Version: v.Raw, Tried: describeVariants(q.Variants)}
}

func describeVariants(vs []Variant) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.When.Desc)
	}
	return out
}

// UnresolvedQueryError reports that no variant matches the server version.
type UnresolvedQueryError struct {
	QueryID string
	Version string
	Tried   []string
}

func (e *UnresolvedQueryError) Error() string {
	return fmt.Sprintf("query %s: no variant for server version %q (tried: %s)", e.QueryID, e.Version, strings.Join(e.Tried, "; "))
}
