package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dalsh/lighthouse"
	"github.com/dalsh/lighthouse/internal/config"
	"github.com/dalsh/lighthouse/internal/language"
	"github.com/dalsh/lighthouse/internal/metrics"
	"github.com/dalsh/lighthouse/internal/otel"
	"github.com/dalsh/lighthouse/internal/validation"

	"github.com/vektah/gqlparser/v2/validator"
)

const rootUsage = `lighthouse — GraphQL request-execution engine & tools

USAGE:
  lighthouse <command> [flags]

COMMANDS:
  serve         Run the HTTP GraphQL server
  compile-sdl   Assemble & validate the schema, print the combined SDL
  validate      Validate a query document against the schema and rules
  help          Show help for any command
`

const serveUsage = `serve FLAGS:
  -config <file>   Configuration file (required)
`

const compileSDLUsage = `compile-sdl FLAGS:
  -config <file>   Configuration file (required)
  -out <file>      Write combined SDL to file (default: stdout)
`

const validateUsage = `validate FLAGS:
  -config <file>   Configuration file (required)
  -query <file>    Query document to validate (default: stdin)
  (Exits non-zero when the document violates the configured rules)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := args[0]
	cmdArgs := args[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "compile-sdl":
		return cmdCompileSDL(cmdArgs)
	case "validate":
		return cmdValidate(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "compile-sdl":
		fmt.Print(compileSDLUsage)
	case "validate":
		fmt.Print(validateUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("logging level: %w", err)
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger(), nil
}

func loadHolder(fs *flag.FlagSet, usage string, args []string) (*config.Holder, zerolog.Logger, error) {
	configPath := fs.String("config", "", "Configuration file")
	fs.SetOutput(new(bytes.Buffer))
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, usage)
		return nil, zerolog.Nop(), err
	}
	if *configPath == "" {
		fmt.Fprint(os.Stderr, usage)
		return nil, zerolog.Nop(), fmt.Errorf("-config is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	abs, err := filepath.Abs(*configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("resolve config path: %w", err)
	}
	return config.NewHolder(cfg, abs, logger), logger, nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	holder, logger, err := loadHolder(fs, serveUsage, args)
	if err != nil {
		return err
	}
	cfg := holder.Get()

	if err := holder.WatchFile(); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	holder.WatchSignals()
	defer holder.Close()

	lh, err := lighthouse.New(holder, lighthouse.WithLogger(logger))
	if err != nil {
		return err
	}
	defer lh.Close()

	shutdown, err := otel.Setup(lh.Bus(), cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if cfg.Metrics.Enabled {
		collector := metrics.New(prometheus.DefaultRegisterer)
		collector.Subscribe(lh.Bus())
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics endpoint listening")
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", lh.Handler())

	logger.Info().Str("addr", cfg.Server.Addr).Msg("GraphQL server listening")
	return http.ListenAndServe(cfg.Server.Addr, mux)
}

func cmdCompileSDL(args []string) error {
	fs := flag.NewFlagSet("compile-sdl", flag.ContinueOnError)
	outFile := fs.String("out", "", "Write combined SDL to file")
	holder, logger, err := loadHolder(fs, compileSDLUsage, args)
	if err != nil {
		return err
	}

	lh, err := lighthouse.New(holder, lighthouse.WithLogger(logger))
	if err != nil {
		return err
	}
	defer lh.Close()

	doc, err := lh.DocumentAST(context.Background())
	if err != nil {
		return fmt.Errorf("assemble schema: %w", err)
	}
	if _, err := lh.ExecutableSchema(context.Background()); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	sdl := language.RenderSchemaDocument(doc)
	if *outFile == "" {
		fmt.Print(sdl)
		return nil
	}
	return os.WriteFile(*outFile, []byte(sdl), 0644)
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	queryFile := fs.String("query", "", "Query document to validate")
	holder, logger, err := loadHolder(fs, validateUsage, args)
	if err != nil {
		return err
	}
	cfg := holder.Get()

	var source []byte
	if *queryFile == "" {
		source, err = io.ReadAll(os.Stdin)
	} else {
		source, err = os.ReadFile(*queryFile)
	}
	if err != nil {
		return fmt.Errorf("read query: %w", err)
	}

	lh, err := lighthouse.New(holder, lighthouse.WithLogger(logger))
	if err != nil {
		return err
	}
	defer lh.Close()

	sch, err := lh.ExecutableSchema(context.Background())
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	doc, err := language.ParseQuery(string(source))
	if err != nil {
		return fmt.Errorf("parse query: %w", err)
	}

	if errs := validator.ValidateWithRules(sch, doc, validation.Rules(cfg.Security)); len(errs) > 0 {
		for _, verr := range errs {
			fmt.Fprintln(os.Stderr, verr.Error())
		}
		return fmt.Errorf("%d validation error(s)", len(errs))
	}
	fmt.Println("OK")
	return nil
}
