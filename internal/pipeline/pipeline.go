// Package pipeline runs the diagnostic catalog against one server and
// persists the results of every query in catalog order.
package pipeline

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"myperf/internal/annotate"
	"myperf/internal/catalog"
	"myperf/internal/db"
	"myperf/internal/report"
	"myperf/internal/runinfo"
	"myperf/internal/tabular"
	"myperf/internal/uploader"
	"myperf/internal/util"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// QueryRunner executes one resolved statement.
type QueryRunner interface {
	Execute(ctx context.Context, queryID string, sqlText string) (tabular.Result, error)
}

// Options are the run-scoped settings.
type Options struct {
	// RunID overrides the timestamp-derived run id.
	RunID   string
	Workers int
	// AllowAnnotation is the operator's consent to send output and SQL to the
	// annotation service. Without it the gateway is never called.
	AllowAnnotation bool
	// Console receives the per-query sections; nil disables console output.
	Console        io.Writer
	Archive        bool
	Server         string
	ReportInterval time.Duration
	// Environment is recorded in the manifest when set.
	Environment *runinfo.Info
}

// Deps are the collaborators of a run.
type Deps struct {
	Connector db.Connector
	Catalog   *catalog.Catalog
	Executor  QueryRunner
	Writer    *report.Writer
	Gateway   annotate.Gateway
	Uploader  uploader.Uploader
	Clock     func() time.Time
}

// Pipeline drives one collection run.
type Pipeline struct {
	opts    Options
	deps    Deps
	gateway annotate.Gateway

	mu    sync.Mutex
	state State
}

// New validates deps and builds an idle pipeline.
func New(opts Options, deps Deps) (*Pipeline, error) {
	if deps.Connector == nil {
		return nil, errors.New("pipeline: connector is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("pipeline: catalog is required")
	}
	if deps.Executor == nil {
		return nil, errors.New("pipeline: executor is required")
	}
	if deps.Writer == nil {
		return nil, errors.New("pipeline: report writer is required")
	}
	if deps.Uploader == nil {
		deps.Uploader = uploader.NoopUploader{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	p := &Pipeline{opts: opts, deps: deps, state: StateIdle}
	if opts.AllowAnnotation {
		if deps.Gateway == nil {
			return nil, errors.New("pipeline: annotation allowed but no gateway configured")
		}
		p.gateway = deps.Gateway
	}
	return p, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	util.Detailf("pipeline state=%s", s)
}

// Run executes the whole collection. Only a failed version probe is fatal;
// it returns the report together with the *db.ConnectivityError. Every other
// problem is recorded on the affected query.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	p.mu.Lock()
	if state := p.state; state != StateIdle {
		p.mu.Unlock()
		if state.Terminal() {
			return nil, errors.Errorf("pipeline: run already finished (state %s)", state)
		}
		return nil, errors.Errorf("pipeline: run already in progress (state %s)", state)
	}
	p.state = StateProbingVersion
	p.mu.Unlock()
	util.Detailf("pipeline state=%s", StateProbingVersion)

	rep := &RunReport{
		RunID:     p.opts.RunID,
		RunUUID:   report.NewRunUUID(),
		StartedAt: p.deps.Clock(),
		Annotated: p.gateway != nil,
	}
	if rep.RunID == "" {
		rep.RunID = util.RunStamp(rep.StartedAt)
	}

	version, err := db.Probe(ctx, p.deps.Connector)
	if err != nil {
		util.Errorf("version probe failed: %v", err)
		rep.Err = err
		rep.State = StateFailed
		rep.FinishedAt = p.deps.Clock()
		p.setState(StateFailed)
		return rep, err
	}
	rep.Version = version

	p.setState(StateResolvingQueries)
	rep.Outcomes = p.resolve(version)

	prog := &progress{total: len(rep.Outcomes)}
	stop := prog.start(p.opts.ReportInterval)
	defer stop()

	p.setState(StateExecutingQueries)
	p.execute(ctx, rep.Outcomes, prog)

	if p.gateway != nil {
		p.setState(StateAnnotatingResults)
		p.annotate(ctx, rep.Outcomes, prog)
	}

	p.setState(StateWritingReport)
	p.write(ctx, rep)
	p.setState(StateDone)
	return rep, nil
}

func (p *Pipeline) resolve(version db.ServerVersion) []QueryOutcome {
	resolved := p.deps.Catalog.Resolve(version)
	outcomes := make([]QueryOutcome, len(resolved))
	for i, r := range resolved {
		o := QueryOutcome{Query: r.Query, SQL: r.SQL, Variant: r.Variant, Err: r.Err}
		if r.Err != nil {
			util.Warnf("%v", r.Err)
		} else {
			info := catalog.Inspect(r.SQL)
			o.Digest = info.Digest
			o.Tables = info.Tables
		}
		outcomes[i] = o
	}
	return outcomes
}

// execute runs every resolved query on the bounded pool. Each worker writes
// only its own slot of outcomes.
func (p *Pipeline) execute(ctx context.Context, outcomes []QueryOutcome, prog *progress) {
	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i := range outcomes {
		if outcomes[i].Err != nil {
			prog.record(true)
			continue
		}
		o := &outcomes[i]
		g.Go(func() error {
			start := time.Now()
			res, err := p.deps.Executor.Execute(ctx, o.Query.ID, o.SQL)
			o.Elapsed = time.Since(start)
			if err != nil {
				util.Warnf("%v", err)
				o.Err = err
			} else {
				o.Result = res
				o.Text = p.render(*o)
			}
			prog.record(err != nil)
			return nil
		})
	}
	_ = g.Wait()
}

// annotate asks for an explanation of every resolved query and a summary of
// every successful result.
func (p *Pipeline) annotate(ctx context.Context, outcomes []QueryOutcome, prog *progress) {
	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i := range outcomes {
		o := &outcomes[i]
		if o.SQL == "" {
			continue
		}
		g.Go(func() error {
			var errs []string
			explanation, err := p.gateway.ExplainQuery(ctx, o.SQL)
			if err != nil {
				errs = append(errs, err.Error())
				explanation = annotate.Placeholder(err)
			}
			o.Explanation = explanation
			prog.annotations.Add(1)
			if o.Err == nil {
				summary, err := p.gateway.SummarizeOutput(ctx, o.Text)
				if err != nil {
					errs = append(errs, err.Error())
					summary = annotate.Placeholder(err)
				}
				o.Summary = summary
				prog.annotations.Add(1)
			}
			if len(errs) > 0 {
				o.AnnotationErr = errors.Errorf("query %s: %s", o.Query.ID, strings.Join(errs, "; "))
				util.Warnf("%v", o.AnnotationErr)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// render produces the persisted text of a successful result.
func (p *Pipeline) render(o QueryOutcome) string {
	if o.Query.Raw {
		if status, ok := o.Result.Column("Status"); ok {
			return strings.Join(status, "\n")
		}
	}
	return p.deps.Writer.Encoder.String(o.Result)
}

// write persists and prints outcomes strictly in catalog order, then the
// manifest, archive and upload.
func (p *Pipeline) write(ctx context.Context, rep *RunReport) {
	if dir, err := p.deps.Writer.RunDir(rep.RunID); err != nil {
		util.Errorf("create run directory failed: %v", err)
	} else {
		rep.Dir = dir
	}
	for i := range rep.Outcomes {
		o := &rep.Outcomes[i]
		if o.Err == nil {
			var (
				path string
				err  error
			)
			if o.Query.Raw {
				path, err = p.deps.Writer.WriteRaw(rep.RunID, o.Query.FileName, o.Text)
			} else {
				path, err = p.deps.Writer.Write(rep.RunID, o.Query.ID, o.Query.FileName, o.Result)
			}
			if err != nil {
				o.Err = errors.Wrapf(err, "query %s", o.Query.ID)
				util.Errorf("%v", o.Err)
			} else {
				o.Path = path
			}
		}
		if p.opts.Console != nil {
			section := report.Section{
				Title:       o.Query.Title,
				Explanation: o.Explanation,
				Body:        o.Text,
				Summary:     o.Summary,
				Err:         o.Err,
			}
			if err := report.PrintSection(p.opts.Console, section); err != nil {
				util.Warnf("console output failed: %v", err)
			}
		}
	}

	rep.FinishedAt = p.deps.Clock()
	rep.State = StateDone
	if p.opts.Archive {
		// The archived summary.json must already name the archive.
		rep.Archive = report.ArchiveName
	}
	p.writeManifest(rep)
	if p.opts.Archive {
		if _, _, err := p.deps.Writer.WriteArchive(rep.RunID); err != nil {
			rep.Warnings = append(rep.Warnings, "archive: "+err.Error())
			util.Warnf("write archive failed: %v", err)
			rep.Archive = ""
			p.writeManifest(rep)
		}
	}
	if rep.Dir != "" && p.deps.Uploader.Enabled() {
		loc, err := p.deps.Uploader.UploadDir(ctx, rep.Dir)
		if err != nil {
			rep.Warnings = append(rep.Warnings, "upload: "+err.Error())
			util.Warnf("upload failed: %v", err)
		} else {
			rep.Upload = loc
		}
	}
	if p.opts.Console != nil {
		if err := report.PrintStatus(p.opts.Console, rep.Dir, len(rep.Outcomes), rep.Failures()); err != nil {
			util.Warnf("console output failed: %v", err)
		}
	}
}

func (p *Pipeline) writeManifest(rep *RunReport) {
	if _, err := p.deps.Writer.WriteManifest(rep.RunID, rep.manifest(p.opts.Server, p.opts.Environment)); err != nil {
		rep.Warnings = append(rep.Warnings, "manifest: "+err.Error())
		util.Warnf("write manifest failed: %v", err)
	}
}
