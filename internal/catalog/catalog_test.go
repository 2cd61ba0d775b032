package catalog

import (
	"errors"
	"strings"
	"testing"

	"myperf/internal/db"
)

func TestResolveSelectsDeclaredVariant(t *testing.T) {
	cat := Default()
	cases := []struct {
		version string
		want    string
	}{
		{"5.7.30", queryBlocks57},
		{"5.7.44-log", queryBlocks57},
		{"8.0.34", queryBlocks80},
		{"8.4.0", queryBlocks80},
		{"9.1.0", queryBlocks80},
	}
	for _, c := range cases {
		sql, err := cat.ResolveOne(Blocks, db.ServerVersion{Raw: c.version})
		if err != nil {
			t.Fatalf("version %s: resolve: %v", c.version, err)
		}
		if sql != c.want {
			t.Fatalf("version %s: unexpected variant %s", c.version, sql)
		}
	}
}

func TestResolveBlocksPre80UsesInnoDBLockWaits(t *testing.T) {
	sql, err := Default().ResolveOne(Blocks, db.ServerVersion{Raw: "5.7.30"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(sql, "innodb_lock_waits") {
		t.Fatalf("expected innodb_lock_waits variant, got %s", sql)
	}
	if strings.Contains(sql, "data_lock_waits") {
		t.Fatalf("unexpected data_lock_waits in 5.7 variant")
	}
}

func TestResolveUnmatchedVersion(t *testing.T) {
	for _, version := range []string{"5.6.51", "10.6.12-MariaDB", "garbage"} {
		_, err := Default().ResolveOne(Blocks, db.ServerVersion{Raw: version})
		var unresolved *UnresolvedQueryError
		if !errors.As(err, &unresolved) {
			t.Fatalf("version %s: expected UnresolvedQueryError, got %v", version, err)
		}
		if unresolved.QueryID != Blocks {
			t.Fatalf("unexpected query id: %s", unresolved.QueryID)
		}
		if !strings.Contains(err.Error(), version) {
			t.Fatalf("expected version in message: %v", err)
		}
	}
}

func TestResolveKeepsDeclarationOrder(t *testing.T) {
	cat := Default()
	resolved := cat.Resolve(db.ServerVersion{Raw: "5.6.51"})
	if len(resolved) != cat.Len() {
		t.Fatalf("expected %d entries, got %d", cat.Len(), len(resolved))
	}
	want := []string{ProcessList, InnoDBStatus, Blocks, CurrentWait, MDL, ConcurrentTicket, StatementDigest, FileIO, BufferPool}
	for i, r := range resolved {
		if r.Query.ID != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, r.Query.ID, want[i])
		}
		if r.Query.ID == Blocks {
			if r.Err == nil || r.SQL != "" || r.Variant != -1 {
				t.Fatalf("expected blocks unresolved on 5.6, got %+v", r)
			}
			continue
		}
		if r.Err != nil {
			t.Fatalf("%s: unexpected error %v", r.Query.ID, r.Err)
		}
	}
}

func TestResolveFirstMatchWins(t *testing.T) {
	cat := MustNew(DiagnosticQuery{
		ID: "q", FileName: "q.csv",
		Variants: []Variant{
			{When: All(AtLeast("8.0.0"), Below("9.0.0")), SQL: "SELECT 1"},
			{When: AtLeast("8.0.0"), SQL: "SELECT 2"},
			{When: Any(), SQL: "SELECT 3"},
		},
	})
	got := cat.Resolve(db.ServerVersion{Raw: "8.0.34"})
	if got[0].SQL != "SELECT 1" || got[0].Variant != 0 {
		t.Fatalf("expected first variant, got %+v", got[0])
	}
	got = cat.Resolve(db.ServerVersion{Raw: "5.7.1"})
	if got[0].SQL != "SELECT 3" || got[0].Variant != 2 {
		t.Fatalf("expected fallback variant, got %+v", got[0])
	}
}

func TestRangePredicates(t *testing.T) {
	pre80 := All(AtLeast("5.7.0"), Below("8.0.0"))
	if pre80.String() != ">= 5.7.0 and < 8.0.0" {
		t.Fatalf("unexpected description: %s", pre80)
	}
	cases := []struct {
		version string
		want    bool
	}{
		{"5.7.0", true},
		{"5.7.44-log", true},
		{"5.6.51", false},
		{"8.0.0", false},
		{"5.7.30-MariaDB", false},
		{"unknown", false},
	}
	for _, c := range cases {
		if got := pre80.Match(db.ServerVersion{Raw: c.version}); got != c.want {
			t.Fatalf("version %s: match=%v, want %v", c.version, got, c.want)
		}
	}
}

func TestStatementDigestVariant(t *testing.T) {
	cat := Default()
	sql, err := cat.ResolveOne(StatementDigest, db.ServerVersion{Raw: "8.0.16"})
	if err != nil || sql != queryStatementDigest80 {
		t.Fatalf("expected FORMAT_PICO_TIME variant, got %s (%v)", sql, err)
	}
	sql, err = cat.ResolveOne(StatementDigest, db.ServerVersion{Raw: "8.0.15"})
	if err != nil || sql != queryStatementDigest {
		t.Fatalf("expected sys.format_time variant, got %s (%v)", sql, err)
	}
}

func TestNewRejectsInvalidQueries(t *testing.T) {
	ok := Variant{When: Any(), SQL: "SELECT 1"}
	cases := []struct {
		name    string
		queries []DiagnosticQuery
	}{
		{"empty id", []DiagnosticQuery{{FileName: "a.csv", Variants: []Variant{ok}}}},
		{"duplicate id", []DiagnosticQuery{{ID: "a", FileName: "a.csv", Variants: []Variant{ok}}, {ID: "a", FileName: "b.csv", Variants: []Variant{ok}}}},
		{"duplicate file", []DiagnosticQuery{{ID: "a", FileName: "a.csv", Variants: []Variant{ok}}, {ID: "b", FileName: "a.csv", Variants: []Variant{ok}}}},
		{"no variants", []DiagnosticQuery{{ID: "a", FileName: "a.csv"}}},
		{"no predicate", []DiagnosticQuery{{ID: "a", FileName: "a.csv", Variants: []Variant{{SQL: "SELECT 1"}}}}},
		{"no sql", []DiagnosticQuery{{ID: "a", FileName: "a.csv", Variants: []Variant{{When: Any()}}}}},
	}
	for _, c := range cases {
		if _, err := New(c.queries...); err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
	}
}

func TestQueriesReturnsCopy(t *testing.T) {
	cat := Default()
	qs := cat.Queries()
	qs[0].ID = "mutated"
	if q, _ := cat.Lookup(ProcessList); q.ID != ProcessList {
		t.Fatalf("catalog mutated through Queries()")
	}
	if _, ok := cat.Lookup("missing"); ok {
		t.Fatalf("unexpected lookup hit")
	}
	if _, err := cat.ResolveOne("missing", db.ServerVersion{Raw: "8.0.34"}); err == nil {
		t.Fatalf("expected error for unknown id")
	}
}

func TestDefaultCatalogFiles(t *testing.T) {
	q, ok := Default().Lookup(ProcessList)
	if !ok || q.FileName != "processlist.csv" {
		t.Fatalf("unexpected processlist query: %+v", q)
	}
	q, ok = Default().Lookup(InnoDBStatus)
	if !ok || !q.Raw || q.FileName != "innodb_status.log" {
		t.Fatalf("unexpected innodb status query: %+v", q)
	}
}
