// Command sefer looks up, searches and describes texts of Jewish literature
// from the Sefaria library.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/sefer/internal/config"
	"github.com/FocuswithJustin/sefer/internal/display"
	"github.com/FocuswithJustin/sefer/internal/logging"
	"github.com/FocuswithJustin/sefer/internal/lookup"
	"github.com/FocuswithJustin/sefer/internal/sefaria"
	"github.com/FocuswithJustin/sefer/internal/store"
)

var version = "0.1.0"

// errReported marks a failure whose details were already printed.
var errReported = stderrors.New("failed")

// CLI defines the command-line interface for sefer.
type CLI struct {
	// Global flags
	Config   string `help:"Config file path" type:"path" placeholder:"PATH"`
	APIURL   string `name:"api-url" help:"Sefaria API base URL" placeholder:"URL"`
	NoCache  bool   `name:"no-cache" help:"Bypass the on-disk payload cache"`
	FlagLog  bool   `name:"flag-log" help:"Record passages containing the divine name"`
	LogLevel string `name:"log-level" help:"Log level (debug, info, warn, error)" placeholder:"LEVEL"`

	Text    TextCmd    `cmd:"" aliases:"t,search,s" help:"Look up one or more citations"`
	Keyword KeywordCmd `cmd:"" aliases:"key,k" help:"Search the library for words"`
	Info    InfoCmd    `cmd:"" aliases:"i,in,inf" help:"Show chapter and verse counts of a book"`
	Parse   ParseCmd   `cmd:"" help:"Print the parsed form of a citation"`
	Setup   SetupCmd   `cmd:"" help:"Download the table of contents and write a default config"`
	Cache   CacheGroup `cmd:"" help:"Payload cache maintenance"`
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP lookup server"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// app is the runtime shared by every command.
type app struct {
	ctx    context.Context
	cli    *CLI
	cfg    config.Config
	cfgAt  string
	stdout io.Writer
	stderr io.Writer
	style  display.Style

	client *sefaria.Client
	store  *store.Store
	flags  *logging.FlagLog
}

func newApp(ctx context.Context, cli *CLI, stdout, stderr io.Writer) (*app, error) {
	path := cli.Config
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cli.APIURL != "" {
		cfg.APIURL = cli.APIURL
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	if cli.FlagLog {
		cfg.FlagLog = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.InitLoggerWriter(stderr, logging.ParseLevel(cfg.LogLevel), logging.ParseFormat(cfg.LogFormat))

	var out *os.File
	if f, ok := stdout.(*os.File); ok {
		out = f
	}
	return &app{
		ctx:    logging.WithRequestID(ctx, logging.NewRequestID()),
		cli:    cli,
		cfg:    cfg,
		cfgAt:  path,
		stdout: stdout,
		stderr: stderr,
		style:  display.Style{Color: display.ColorEnabled(cfg.Style.Color, out)},
	}, nil
}

// sefaria returns the API client, opening the payload cache on first use.
// A cache that cannot be opened is skipped.
func (a *app) sefaria() *sefaria.Client {
	if a.client != nil {
		return a.client
	}
	opts := sefaria.Options{
		BaseURL:   a.cfg.APIURL,
		Timeout:   a.cfg.Timeout.Std(),
		UserAgent: sefaria.UserAgent(version),
		CacheTTL:  a.cfg.CacheTTL.Std(),
	}
	if !a.cli.NoCache {
		st, err := store.Open(a.cfg.CacheDir)
		if err != nil {
			logging.WarnContext(a.ctx, "payload cache disabled", "dir", a.cfg.CacheDir, "error", err)
		} else {
			a.store = st
			opts.Cache = st
		}
	}
	a.client = sefaria.NewClient(opts)
	return a.client
}

// recorder returns the flag log when enabled.
func (a *app) recorder() lookup.Recorder {
	if !a.cfg.FlagLog {
		return nil
	}
	if a.flags == nil {
		dir := logging.FlagLogDir()
		fl, err := logging.OpenFlagLog(dir)
		if err != nil {
			logging.WarnContext(a.ctx, "flag log disabled", "dir", dir, "error", err)
			return nil
		}
		a.flags = fl
	}
	return a.flags
}

func (a *app) errorf(format string, args ...any) {
	fmt.Fprintf(a.stderr, "E: "+format+"\n", args...)
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logging.Warn("close cache", "error", err)
		}
	}
	if err := a.flags.Close(); err != nil {
		logging.Warn("close flag log", "error", err)
	}
}

// run parses args, runs the selected command and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("sefer"),
		kong.Description("sefer - a terminal reader for the Sefaria library"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		fmt.Fprintf(stderr, "E: %v\n", err)
		return 1
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "E: %v\n", err)
		return 1
	}

	a, err := newApp(ctx, &cli, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "E: %v\n", err)
		return 1
	}
	defer a.Close()

	if err := kctx.Run(a); err != nil {
		if !stderrors.Is(err, errReported) {
			a.errorf("%v", err)
		}
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
