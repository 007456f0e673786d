package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/bridge/dispatch"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/executor"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/infrastructure/server"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/isolate"
	"github.com/GriffinCanCode/AgentOS/opbridge/internal/ops"
)

const usage = `usage:
  opbridge run [flags] script.js [args...]
  opbridge eval [flags] source
  opbridge serve [flags]
  opbridge ops
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		printError(stderr, err)
		return 1
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		err = runScript(ctx, cfg, rest, stdout, stderr)
	case "eval":
		err = evalSource(ctx, cfg, rest, stdout, stderr)
	case "serve":
		err = serve(ctx, cfg, rest, stderr)
	case "ops":
		listOps(stdout)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s", cmd, usage)
		return 2
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		printError(stderr, err)
		return 1
	}
	return 0
}

// bindFlags registers the shared permission and runtime flags. Values
// already loaded from the environment are the defaults.
func bindFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.BoolVar(&cfg.Permissions.AllowAll, "allow-all", cfg.Permissions.AllowAll, "grant every permission")
	fs.Var(listFlag{&cfg.Permissions.AllowRead}, "allow-read", "comma separated readable paths")
	fs.Var(listFlag{&cfg.Permissions.AllowWrite}, "allow-write", "comma separated writable paths")
	fs.Var(listFlag{&cfg.Permissions.AllowNet}, "allow-net", "comma separated reachable hosts")
	fs.BoolVar(&cfg.Permissions.AllowRun, "allow-run", cfg.Permissions.AllowRun, "allow subprocesses")
	fs.DurationVar(&cfg.Runtime.ScriptTimeout, "timeout", cfg.Runtime.ScriptTimeout, "script timeout (0 disables)")
	fs.BoolVar(&cfg.Runtime.Unstable, "unstable", cfg.Runtime.Unstable, "enable unstable APIs")
	fs.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "development logging")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "log level")
}

type listFlag struct{ dst *[]string }

func (f listFlag) String() string {
	if f.dst == nil {
		return ""
	}
	return strings.Join(*f.dst, ",")
}

func (f listFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*f.dst = append(*f.dst, part)
		}
	}
	return nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
}

func newIsolate(cfg *config.Config, args []string, stdout, stderr io.Writer) (*isolate.Isolate, *logging.Logger, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	start := ops.DefaultStartInfo(args)
	start.Unstable = cfg.Runtime.Unstable

	loop := executor.New(
		executor.WithLogger(logger.Component("executor")),
		executor.WithBlockingThreads(cfg.Runtime.BlockingThreads),
		executor.WithFailFast(cfg.Runtime.FailFast),
	)
	reg := ops.NewDefaultRegistry(
		dispatch.WithStrict(cfg.Runtime.StrictContract),
		dispatch.WithLogger(logger.Component("dispatch")),
	)

	iso, err := isolate.New(
		isolate.WithLogger(logger.Component("isolate")),
		isolate.WithLoop(loop),
		isolate.WithRegistry(reg),
		isolate.WithStdout(stdout),
		isolate.WithStderr(stderr),
		isolate.WithTimeout(cfg.Runtime.ScriptTimeout),
		isolate.WithStateOptions(
			ops.WithPermissions(ops.NewPermissions(ops.FromConfig(cfg.Permissions))),
			ops.WithStartInfo(start),
		),
	)
	if err != nil {
		return nil, nil, err
	}
	return iso, logger, nil
}

func runScript(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("run: missing script path")
	}

	path := fs.Arg(0)
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	iso, logger, err := newIsolate(cfg, fs.Args()[1:], stdout, stderr)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer iso.Close()

	logger.Debug("running script", zap.String("path", path))
	_, err = iso.Execute(ctx, filepath.Base(path), string(source))
	return err
}

func evalSource(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("eval: missing source")
	}

	iso, logger, err := newIsolate(cfg, fs.Args()[1:], stdout, stderr)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer iso.Close()

	result, err := iso.Execute(ctx, "eval.js", fs.Arg(0))
	if err != nil {
		return err
	}
	if result != nil {
		fmt.Fprintln(stdout, formatResult(result))
	}
	return nil
}

func serve(ctx context.Context, cfg *config.Config, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, cfg)
	fs.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "listen host")
	fs.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "listen port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	srv, err := server.NewServer(cfg, server.WithLogger(logger))
	if err != nil {
		return err
	}
	defer srv.Close()
	return srv.Run(ctx)
}

func listOps(w io.Writer) {
	for _, def := range ops.NewDefaultRegistry().Definitions() {
		fmt.Fprintf(w, "%4d  %s\n", def.ID, def.Name)
	}
}
