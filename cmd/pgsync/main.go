package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johndauphine/pg-table-sync/internal/config"
	"github.com/johndauphine/pg-table-sync/internal/db"
	"github.com/johndauphine/pg-table-sync/internal/exitcodes"
	"github.com/johndauphine/pg-table-sync/internal/logging"
	syncer "github.com/johndauphine/pg-table-sync/internal/sync"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

var version = "dev"

const argsUsage = "SOURCE_DB DESTINATION_DB TABLE USERNAME"

func main() {
	app := &cli.App{
		Name:      "pgsync",
		Usage:     "Incremental PostgreSQL table sync between two databases on the same server",
		Version:   version,
		ArgsUsage: argsUsage,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"f"},
				Usage:   "Path to optional YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "Log format: text or json",
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Value: "info",
				Usage: "Log verbosity level (debug, info, warn, error)",
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logging.ParseLevel(c.String("verbosity"))
			if err != nil {
				return err
			}
			logging.SetLevel(level)

			if c.String("log-format") == "json" {
				logging.SetFormat("json")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "single",
				Usage:     "Sync everything up to the current time once, then exit",
				ArgsUsage: argsUsage,
				Flags:     syncFlags(false),
				Action:    runSingle,
			},
			{
				Name:      "continuous",
				Usage:     "Repeat single-mode passes forever, sleeping between passes",
				ArgsUsage: argsUsage,
				Flags:     syncFlags(true),
				Action:    runContinuous,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		code := exitcodes.FromError(err)
		if code == exitcodes.Success {
			// Graceful interrupt
			os.Exit(exitcodes.Success)
		}
		fmt.Fprintf(os.Stderr, "Error: %v (%s)\n", err, exitcodes.Description(code))
		os.Exit(code)
	}
}

func syncFlags(continuous bool) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "hostname",
			Aliases: []string{"H"},
			Value:   "localhost",
			Usage:   "PostgreSQL server hostname",
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Value:   5432,
			Usage:   "PostgreSQL server port",
		},
		&cli.IntFlag{
			Name:    "chunksize",
			Aliases: []string{"c"},
			Value:   1000,
			Usage:   fmt.Sprintf("Rows per transaction chunk (max %d)", config.MaxChunkSize),
		},
		&cli.StringFlag{
			Name:    "password",
			Aliases: []string{"w"},
			Usage:   "Password (prompted when omitted)",
			EnvVars: []string{"PGSYNC_PASSWORD"},
		},
		&cli.StringFlag{
			Name:  "ordering-column",
			Value: "updated",
			Usage: "Monotonic bigint epoch-millis column present in both tables",
		},
		&cli.IntFlag{
			Name:  "window-size",
			Usage: "Target rows per window (default: chunksize)",
		},
		&cli.Int64Flag{
			Name:  "rows-per-slice",
			Value: 10_000_000,
			Usage: "Target rows per slice",
		},
		&cli.StringFlag{
			Name:  "sslmode",
			Value: "prefer",
			Usage: "PostgreSQL sslmode",
		},
		&cli.BoolFlag{
			Name:  "output-json",
			Usage: "Print a JSON pass summary to stdout on completion (logs go to stderr)",
		},
	}
	if continuous {
		flags = append(flags, &cli.IntFlag{
			Name:    "delay",
			Aliases: []string{"d"},
			Value:   5,
			Usage:   "Seconds to wait between passes",
		})
	}
	return flags
}

func runSingle(c *cli.Context) error {
	if c.Bool("output-json") {
		// Keep stdout clean for the JSON summary
		logging.SetOutput(os.Stderr)
	}

	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	runner, closeFn, err := buildRunner(ctx, c, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	result, runErr := runner.RunOnce(ctx)
	if c.Bool("output-json") && result != nil {
		if err := outputJSON(result); err != nil {
			logging.Warn("Failed to output JSON summary: %v", err)
		}
	}
	return runErr
}

func runContinuous(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	runner, closeFn, err := buildRunner(ctx, c, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	logging.Info("Starting continuous mode (delay %ds)", cfg.Sync.DelaySeconds)
	return runner.RunContinuous(ctx)
}

// buildConfig merges the optional YAML file, CLI flags, and positional
// arguments into a validated configuration. Flags win over the file.
func buildConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.New()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.NArg() > 0 {
		if c.NArg() != 4 {
			return nil, fmt.Errorf("invalid config: expected arguments %s, got %d argument(s)", argsUsage, c.NArg())
		}
		args := c.Args().Slice()
		cfg.Server.SourceDB = args[0]
		cfg.Server.DestinationDB = args[1]
		cfg.Sync.Table = args[2]
		cfg.Server.User = args[3]
	}

	if c.IsSet("hostname") || cfg.Server.Host == "" {
		cfg.Server.Host = c.String("hostname")
	}
	if c.IsSet("port") || cfg.Server.Port == 0 {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("chunksize") || cfg.Sync.ChunkSize == 0 {
		cfg.Sync.ChunkSize = c.Int("chunksize")
		// Window size follows chunksize unless set explicitly.
		if !c.IsSet("window-size") {
			cfg.Sync.WindowSize = cfg.Sync.ChunkSize
		}
	}
	if c.IsSet("window-size") {
		cfg.Sync.WindowSize = c.Int("window-size")
	}
	if c.IsSet("ordering-column") {
		cfg.Sync.OrderingColumn = c.String("ordering-column")
	}
	if c.IsSet("rows-per-slice") {
		cfg.Sync.RowsPerSlice = c.Int64("rows-per-slice")
	}
	if c.IsSet("sslmode") {
		cfg.Server.SSLMode = c.String("sslmode")
	}
	if c.IsSet("delay") {
		cfg.Sync.DelaySeconds = c.Int("delay")
	}
	if c.IsSet("password") {
		cfg.Server.Password = c.String("password")
	}

	cfg.ApplyDefaults()

	if cfg.Server.Password == "" {
		password, err := promptPassword(cfg.Server.User)
		if err != nil {
			return nil, err
		}
		cfg.Server.Password = password
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildRunner connects both pools, introspects the table, and wires the
// sync engine. The returned close function releases both pools.
func buildRunner(ctx context.Context, c *cli.Context, cfg *config.Config) (*syncer.Runner, func(), error) {
	srcPool, err := db.Connect(ctx, cfg.SourceDSN(), cfg.Server.SourceDB)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to source: %w", err)
	}

	dstPool, err := db.Connect(ctx, cfg.DestinationDSN(), cfg.Server.DestinationDB)
	if err != nil {
		srcPool.Close()
		return nil, nil, fmt.Errorf("connecting to destination: %w", err)
	}

	closeFn := func() {
		srcPool.Close()
		dstPool.Close()
	}

	src, err := db.NewSource(ctx, srcPool, cfg.Sync.Table, cfg.Sync.OrderingColumn)
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	dst, err := db.NewDestination(ctx, dstPool, src.Info(), cfg.Sync.OrderingColumn)
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	showProgress := !c.Bool("output-json") && logging.GetLevel() >= logging.LevelInfo
	runner := syncer.NewRunner(src, dst, syncer.Options{
		ChunkSize:    cfg.Sync.ChunkSize,
		WindowSize:   cfg.Sync.WindowSize,
		RowsPerSlice: cfg.Sync.RowsPerSlice,
		Delay:        time.Duration(cfg.Sync.DelaySeconds) * time.Second,
		Progress:     showProgress,
	})
	return runner, closeFn, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted. Finishing current chunk...")
		cancel()
	}()

	return ctx, cancel
}

// promptPassword reads the password interactively, the way psql does when
// no password is supplied.
func promptPassword(user string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("invalid config: no password supplied and stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "Password for user %s: ", user)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}

// outputJSON writes the pass summary as JSON to stdout
func outputJSON(result *syncer.PassResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
