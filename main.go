// Command cadmium is a mesh modelling kernel served over HTTP and
// WebSocket, with a batch mode that turns a script into STL or OBJ files.
//
//	cadmium serve [-config cadmium.yaml] [-listen :8080] [-backend cadmium]
//	cadmium build [-config cadmium.yaml] [-binary] -o part.stl part.cad
//	cadmium inspect [-config cadmium.yaml] [-binary] [-o part.obj] part.stl
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/qutlas/cadmium/pkg/config"
	"github.com/qutlas/cadmium/pkg/logging"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: cadmium <serve|build|inspect> [flags]")
	fmt.Fprintln(w, "  serve     run the HTTP/WebSocket worker")
	fmt.Fprintln(w, "  build     evaluate a script and write STL or OBJ")
	fmt.Fprintln(w, "  inspect   load an STL or OBJ file, report on it and optionally convert it")
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return fmt.Errorf("missing command")
	}
	switch args[0] {
	case "serve":
		return runServe(args[1:], stderr)
	case "build":
		return runBuild(args[1:], stdout, stderr)
	case "inspect":
		return runInspect(args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		usage(stdout)
		return nil
	default:
		usage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// commonFlags registers the flags shared by every command.
type commonFlags struct {
	configFile string
	logLevel   string
	backend    string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configFile, "config", "", "Path to a .json, .yaml or .yml config file")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn or error (default: info)")
	fs.StringVar(&c.backend, "backend", "", "Replay kernel: cadmium, sdfx or manifold (default: cadmium)")
}

func (c *commonFlags) load(extra config.Flags) (config.Config, error) {
	var cfg config.Config
	if c.configFile != "" {
		var err error
		cfg, err = config.Load(c.configFile)
		if err != nil {
			return cfg, err
		}
	}
	extra.LogLevel = c.logLevel
	extra.Backend = c.backend
	cfg.Resolve(extra)
	return cfg, cfg.Validate()
}

func runServe(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	listen := fs.String("listen", "", "Listen address (default: "+config.DefaultListen+")")
	cacheBytes := fs.Int64("cache-bytes", 0, "Cache ceiling in bytes (default: 512 MiB)")
	timeout := fs.Duration("timeout", 0, "Per-request deadline (default: 30s)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load(config.Flags{Listen: *listen, CacheMaxBytes: *cacheBytes, WorkerTimeout: *timeout})
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}
	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info("starting", "listen", cfg.Listen, "backend", cfg.Backend,
		"cache_bytes", cfg.CacheMaxBytes, "cache_ttl", cfg.CacheTTL, "timeout", cfg.WorkerTimeout)
	return app.Serve(ctx)
}

func runBuild(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	output := fs.String("o", "", "Output file; the extension selects .stl or .obj")
	binary := fs.Bool("binary", false, "Write binary STL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *output == "" {
		return fmt.Errorf("usage: cadmium build [-binary] -o <out.stl|out.obj> <script>")
	}

	source, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	cfg, err := common.load(config.Flags{})
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}
	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}

	summaries, err := app.Build(string(source), *output, *binary)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		size := s.Bounds.Extents()
		fmt.Fprintf(stdout, "%s -> %s\n", s.Name, s.Path)
		fmt.Fprintf(stdout, "  triangles: %d\n", s.Triangles)
		fmt.Fprintf(stdout, "  bounds:    [%g %g %g] .. [%g %g %g]\n",
			s.Bounds.Min[0], s.Bounds.Min[1], s.Bounds.Min[2], s.Bounds.Max[0], s.Bounds.Max[1], s.Bounds.Max[2])
		fmt.Fprintf(stdout, "  size:      %g x %g x %g\n", size[0], size[1], size[2])
		fmt.Fprintf(stdout, "  hash:      %s\n", s.Hash)
	}
	return nil
}

func runInspect(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	output := fs.String("o", "", "Optional output file; the extension selects .stl or .obj")
	binary := fs.Bool("binary", false, "Write binary STL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: cadmium inspect [-binary] [-o <out.stl|out.obj>] <mesh.stl|mesh.obj>")
	}

	cfg, err := common.load(config.Flags{})
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}
	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}

	s, err := app.Inspect(fs.Arg(0), *output, *binary)
	if err != nil {
		return err
	}
	size := s.Bounds.Extents()
	fmt.Fprintf(stdout, "%s\n", s.Name)
	fmt.Fprintf(stdout, "  vertices:  %d\n", s.Vertices)
	fmt.Fprintf(stdout, "  triangles: %d\n", s.Triangles)
	fmt.Fprintf(stdout, "  size:      %g x %g x %g\n", size[0], size[1], size[2])
	fmt.Fprintf(stdout, "  closed:    %t\n", s.Closed)
	fmt.Fprintf(stdout, "  volume:    %g\n", s.Volume)
	fmt.Fprintf(stdout, "  hash:      %s\n", s.Hash)
	if s.Output != "" {
		fmt.Fprintf(stdout, "  written:   %s\n", s.Output)
	}
	return nil
}
