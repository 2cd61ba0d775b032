package catalog

import (
	"strings"

	"myperf/internal/db"

	"github.com/blang/semver/v4"
)

// Predicate selects a variant for a server version.
type Predicate struct {
	Desc  string
	Match func(db.ServerVersion) bool
}

func (p Predicate) String() string {
	return p.Desc
}

// Any matches every version.
func Any() Predicate {
	return Predicate{Desc: "any", Match: func(db.ServerVersion) bool { return true }}
}

// AtLeast matches MySQL versions >= min. Unparseable versions and MariaDB
// never match.
func AtLeast(min string) Predicate {
	bound := semver.MustParse(min)
	return Predicate{
		Desc: ">= " + min,
		Match: func(v db.ServerVersion) bool {
			if v.IsMariaDB() {
				return false
			}
			sv, err := v.Semver()
			return err == nil && sv.GTE(bound)
		},
	}
}

// Below matches MySQL versions < max.
func Below(max string) Predicate {
	bound := semver.MustParse(max)
	return Predicate{
		Desc: "< " + max,
		Match: func(v db.ServerVersion) bool {
			if v.IsMariaDB() {
				return false
			}
			sv, err := v.Semver()
			return err == nil && sv.LT(bound)
		},
	}
}

// All matches when every predicate matches.
func All(preds ...Predicate) Predicate {
	descs := make([]string, 0, len(preds))
	for _, p := range preds {
		descs = append(descs, p.Desc)
	}
	return Predicate{
		Desc: strings.Join(descs, " and "),
		Match: func(v db.ServerVersion) bool {
			for _, p := range preds {
				if !p.Match(v) {
					return false
				}
			}
			return true
		},
	}
}
