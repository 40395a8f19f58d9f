package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/tonbridge/client"
	"github.com/wippyai/tonbridge/config"
	"github.com/wippyai/tonbridge/native"
)

type options struct {
	library     string
	configPath  string
	funcName    string
	params      string
	logLevel    string
	metricsAddr string
	async       bool
	list        bool
	interactive bool
}

func main() {
	var opts options
	flag.StringVar(&opts.library, "lib", "", "Engine: inproc, path to .wasm, or shared library (default inproc)")
	flag.StringVar(&opts.configPath, "config", "", "Path to YAML/JSON config file")
	flag.StringVar(&opts.funcName, "func", "", "Function to call (module.function)")
	flag.StringVar(&opts.params, "params", "{}", "Function parameters as JSON")
	flag.BoolVar(&opts.async, "async", false, "Call asynchronously and print every response")
	flag.BoolVar(&opts.list, "list", false, "List engine functions and exit")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.Parse()

	if opts.funcName == "" && !opts.list && !opts.interactive {
		fmt.Fprintln(os.Stderr, "Usage: tonbridge [-lib path] [-config file] -func module.function [-params JSON] [-async]")
		fmt.Fprintln(os.Stderr, "       tonbridge [-lib path] -list")
		fmt.Fprintln(os.Stderr, "       tonbridge [-lib path] -i  (interactive mode)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(opts options) (*config.File, error) {
	var file *config.File
	if opts.configPath != "" {
		f, err := config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		file = f
	} else {
		file = config.DefaultFile()
		file.ApplyEnv()
	}

	if opts.library != "" {
		file.Library = opts.library
	}
	if opts.logLevel != "" {
		file.Log.Level = opts.logLevel
	}
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return file, nil
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

func run(ctx context.Context, opts options) error {
	file, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log, err := newLogger(file.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()
	native.SetLogger(log)
	client.SetLogger(log)

	reg := prometheus.NewRegistry()
	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	lib, err := client.LoadLibrary(ctx, file.Library,
		client.WithLogger(log),
		client.WithRegisterer(reg))
	if err != nil {
		return fmt.Errorf("load library: %w", err)
	}
	defer lib.Close()

	c, err := lib.NewClient(file.Client)
	if err != nil {
		return fmt.Errorf("create context: %w", err)
	}
	defer c.Close()

	switch {
	case opts.list:
		funcs, err := listFunctions(c)
		if err != nil {
			return err
		}
		fmt.Printf("Engine: %s\n\nFunctions:\n", file.Library)
		for _, f := range funcs {
			fmt.Printf("  %s\n", f)
		}
		return nil

	case opts.interactive:
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("interactive mode requires a terminal")
		}
		return runInteractive(c, file.Library)

	case opts.async:
		return callAsync(ctx, c, opts.funcName, opts.params, os.Stdout)
	}

	out, err := lib.RequestSync(c.Handle(), opts.funcName, opts.params)
	if err != nil {
		return fmt.Errorf("call %s: %w", opts.funcName, err)
	}
	fmt.Println(out)
	return nil
}

type apiReference struct {
	API struct {
		Version string `json:"version"`
		Modules []struct {
			Name      string `json:"name"`
			Functions []struct {
				Name string `json:"name"`
			} `json:"functions"`
		} `json:"modules"`
	} `json:"api"`
}

// listFunctions returns every "module.function" the engine reports.
func listFunctions(c *client.Client) ([]string, error) {
	var ref apiReference
	if err := c.CallSync("client.get_api_reference", nil, &ref); err != nil {
		return nil, fmt.Errorf("get api reference: %w", err)
	}

	var funcs []string
	for _, m := range ref.API.Modules {
		for _, f := range m.Functions {
			funcs = append(funcs, m.Name+"."+f.Name)
		}
	}
	sort.Strings(funcs)
	return funcs, nil
}

func callAsync(ctx context.Context, c *client.Client, function, params string, w io.Writer) error {
	if !json.Valid([]byte(params)) {
		return fmt.Errorf("params are not valid JSON: %s", params)
	}

	call, err := c.Stream(ctx, function, json.RawMessage(params))
	if err != nil {
		return fmt.Errorf("call %s: %w", function, err)
	}
	fmt.Fprintf(w, "request %d: %s\n", call.ID(), function)

	for {
		r, err := call.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		marker := ""
		if r.Finished {
			marker = " (final)"
		}
		fmt.Fprintf(w, "[%s]%s %s\n", r.Type, marker, r.Params)
	}
}
