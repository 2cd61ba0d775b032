package pipeline

import (
	"time"

	"myperf/internal/catalog"
	"myperf/internal/db"
	"myperf/internal/executor"
	"myperf/internal/report"
	"myperf/internal/runinfo"
	"myperf/internal/tabular"

	"github.com/pkg/errors"
)

// Exit codes of a collection run. 1 is left to the command for usage and
// configuration errors.
const (
	ExitOK             = 0
	ExitConfig         = 1
	ExitConnectivity   = 2
	ExitPartialFailure = 3
)

// QueryOutcome is the per-query record of a run.
type QueryOutcome struct {
	Query   catalog.DiagnosticQuery
	SQL     string
	Variant int
	Digest  string
	Tables  []string

	Result  tabular.Result
	Text    string
	Path    string
	Elapsed time.Duration
	// Err is a resolution, execution or write failure.
	Err error

	Explanation   string
	Summary       string
	AnnotationErr error
}

// Failed reports whether the query or its annotation failed.
func (o QueryOutcome) Failed() bool {
	return o.Err != nil || o.AnnotationErr != nil
}

// Status is the manifest status of the query.
func (o QueryOutcome) Status() string {
	var unresolved *catalog.UnresolvedQueryError
	switch {
	case errors.As(o.Err, &unresolved):
		return report.StatusUnresolved
	case o.Err != nil:
		return report.StatusFailed
	}
	return report.StatusOK
}

// ErrorKind classifies Err for the manifest.
func (o QueryOutcome) ErrorKind() string {
	if o.Err == nil {
		if o.AnnotationErr != nil {
			return "annotation"
		}
		return ""
	}
	var unresolved *catalog.UnresolvedQueryError
	if errors.As(o.Err, &unresolved) {
		return "unresolved"
	}
	var execErr *executor.QueryExecutionError
	if errors.As(o.Err, &execErr) {
		return string(execErr.Kind)
	}
	return "write"
}

func (o QueryOutcome) reason() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	if o.AnnotationErr != nil {
		return o.AnnotationErr.Error()
	}
	return ""
}

// RunReport is the result of one pipeline run.
type RunReport struct {
	RunID      string
	RunUUID    string
	Dir        string
	Version    db.ServerVersion
	Outcomes   []QueryOutcome
	State      State
	Annotated  bool
	Archive    string
	Upload     string
	StartedAt  time.Time
	FinishedAt time.Time
	// Err is the fatal error of a Failed run.
	Err error
	// Warnings collects non-query problems such as archive or upload errors.
	Warnings []string
}

// PartialFailure reports whether any query or annotation failed.
func (r *RunReport) PartialFailure() bool {
	for _, o := range r.Outcomes {
		if o.Failed() {
			return true
		}
	}
	return false
}

// Failures lists failed queries in catalog order.
func (r *RunReport) Failures() []report.Failure {
	var out []report.Failure
	for _, o := range r.Outcomes {
		if o.Failed() {
			out = append(out, report.Failure{QueryID: o.Query.ID, Reason: o.reason()})
		}
	}
	return out
}

// Outcome returns the outcome of queryID.
func (r *RunReport) Outcome(queryID string) (QueryOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Query.ID == queryID {
			return o, true
		}
	}
	return QueryOutcome{}, false
}

// ExitCode maps the run to the process exit status.
func (r *RunReport) ExitCode() int {
	if r == nil || r.State == StateFailed {
		return ExitConnectivity
	}
	if r.PartialFailure() {
		return ExitPartialFailure
	}
	return ExitOK
}

func (r *RunReport) manifest(server string, env *runinfo.Info) report.Manifest {
	m := report.Manifest{
		RunID:         r.RunID,
		RunUUID:       r.RunUUID,
		Dir:           r.Dir,
		ServerVersion: r.Version.Raw,
		ServerComment: r.Version.Comment,
		Server:        server,
		State:         string(r.State),
		Annotated:     r.Annotated,
		StartedAt:     report.FormatTime(r.StartedAt),
		FinishedAt:    report.FormatTime(r.FinishedAt),
		ArchiveName:   r.Archive,
		Environment:   env,
		Queries:       make([]report.QueryManifest, 0, len(r.Outcomes)),
		Details: map[string]any{
			"queries_total":  len(r.Outcomes),
			"queries_failed": len(r.Failures()),
			"warnings":       r.Warnings,
		},
	}
	if r.Archive != "" {
		m.ArchiveCodec = report.ArchiveCodec
	}
	for _, o := range r.Outcomes {
		q := report.QueryManifest{
			ID:          o.Query.ID,
			Title:       o.Query.Title,
			Status:      o.Status(),
			ErrorKind:   o.ErrorKind(),
			Variant:     o.Variant,
			Digest:      o.Digest,
			Tables:      o.Tables,
			Rows:        len(o.Result.Rows),
			ElapsedMS:   o.Elapsed.Milliseconds(),
			Explanation: o.Explanation,
			Summary:     o.Summary,
		}
		if o.Path != "" {
			q.File = o.Query.FileName
		}
		if reason := o.reason(); reason != "" {
			q.Error = reason
		}
		m.Queries = append(m.Queries, q)
	}
	return m
}
