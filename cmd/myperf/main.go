package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"myperf/internal/annotate"
	"myperf/internal/catalog"
	"myperf/internal/config"
	"myperf/internal/db"
	"myperf/internal/executor"
	"myperf/internal/pipeline"
	"myperf/internal/report"
	"myperf/internal/runinfo"
	"myperf/internal/tabular"
	"myperf/internal/uploader"
	"myperf/internal/util"

	"gopkg.in/yaml.v3"
)

type flags struct {
	config   string
	host     string
	port     int
	user     string
	annotate bool
	output   string
	workers  int
	verbose  bool
	archive  bool
}

func parseFlags(fs *flag.FlagSet, args []string) (flags, map[string]bool, error) {
	var f flags
	fs.StringVar(&f.config, "config", "", "path to config file (defaults are used when empty)")
	fs.StringVar(&f.host, "host", "", "server host name")
	fs.IntVar(&f.port, "port", 0, "server port")
	fs.StringVar(&f.user, "user", "", "user name; the password is read from "+config.EnvPassword)
	fs.BoolVar(&f.annotate, "annotate", false, "send query text and results to the annotation service")
	fs.StringVar(&f.output, "output", "", "base directory for run output")
	fs.IntVar(&f.workers, "workers", 0, "number of queries executed concurrently")
	fs.BoolVar(&f.verbose, "verbose", false, "log every statement")
	fs.BoolVar(&f.archive, "archive", false, "pack the run directory into "+report.ArchiveName)
	if err := fs.Parse(args); err != nil {
		return f, nil, err
	}
	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set, nil
}

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(cfg *config.Config, f flags, set map[string]bool) {
	if set["host"] {
		cfg.Connection.Host = f.host
	}
	if set["port"] {
		cfg.Connection.Port = f.port
	}
	if set["user"] {
		cfg.Connection.User = f.user
	}
	if set["annotate"] {
		cfg.Annotation.Enabled = f.annotate
	}
	if set["output"] {
		cfg.Output.Dir = f.output
	}
	if set["workers"] && f.workers > 0 {
		cfg.Workers = f.workers
	}
	if set["verbose"] {
		cfg.Logging.Verbose = f.verbose
	}
	if set["archive"] {
		cfg.Output.Archive = f.archive
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f, set, err := parseFlags(flag.NewFlagSet("myperf", flag.ContinueOnError), args)
	if err != nil {
		return pipeline.ExitConfig
	}
	cfg, err := config.Load(f.config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return pipeline.ExitConfig
	}
	applyFlags(&cfg, f, set)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return pipeline.ExitConfig
	}

	util.SetVerbose(cfg.Logging.Verbose)
	closer, err := util.SetupLogging(cfg.Logging.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		return pipeline.ExitConfig
	}
	defer util.CloseWithErr(closer, "log file")

	util.Infof("starting myperf against %s with %d worker(s)", cfg.SafeAddress(), cfg.Workers)
	masked := cfg.Masked()
	if data, err := yaml.Marshal(&masked); err == nil {
		util.Highlightf("config:\n%s", string(data))
	}

	p, err := build(cfg)
	if err != nil {
		util.Errorf("%v", err)
		return pipeline.ExitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rep, err := p.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach %s: %v\n", cfg.SafeAddress(), err)
		return rep.ExitCode()
	}
	for _, w := range rep.Warnings {
		util.Warnf("%s", w)
	}
	if rep.Upload != "" {
		util.Infof("run uploaded to %s", rep.Upload)
	}
	util.Infof("run %s finished state=%s failed=%d dir=%s", rep.RunID, rep.State, len(rep.Failures()), rep.Dir)
	return rep.ExitCode()
}

func build(cfg config.Config) (*pipeline.Pipeline, error) {
	cat := catalog.Default()
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	conn, err := db.NewDSNConnector(dsn)
	if err != nil {
		return nil, err
	}
	exec := executor.New(conn, cfg.QueryTimeout())
	exec.NullText = cfg.Output.NullText

	writer := report.New(cfg.Output.Dir, nil)
	writer.Encoder = tabular.Encoder{Separator: cfg.Output.SeparatorRune(), Legacy: cfg.Output.LegacyQuoting}

	var gateway annotate.Gateway
	if cfg.Annotation.Enabled {
		client, err := annotate.NewClient(cfg.Annotation, nil)
		if err != nil {
			return nil, err
		}
		gateway = client
	}
	up, err := uploader.New(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.CloudEnabled() {
		util.Infof("runs will be uploaded (s3=%t gcs=%t)", cfg.Storage.S3.Enabled, cfg.Storage.GCS.Enabled)
	}
	env := runinfo.FromEnv()
	var console io.Writer
	if cfg.Output.Console {
		console = os.Stdout
	}
	return pipeline.New(pipeline.Options{
		Workers:         cfg.Workers,
		AllowAnnotation: cfg.Annotation.Enabled,
		Console:         console,
		Archive:         cfg.Output.Archive,
		Server:          cfg.SafeAddress(),
		ReportInterval:  cfg.Logging.ReportInterval(),
		Environment:     &env,
	}, pipeline.Deps{
		Connector: conn,
		Catalog:   cat,
		Executor:  exec,
		Writer:    writer,
		Gateway:   gateway,
		Uploader:  up,
	})
}
