package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/voltship/internal/adapters/fs"
	"github.com/bft-labs/voltship/internal/cliconfig"
	"github.com/bft-labs/voltship/internal/tui"
	"github.com/bft-labs/voltship/pkg/log"
	"github.com/bft-labs/voltship/pkg/voltship"
)

const helpDescription = `
Record voltages from an STM32 ADC over USB serial.

Highlights:
  - Every reading is appended to a plain text log, one value per line.
  - Stopping never drops data: buffered bytes are read and written first.
  - Export the log to an Excel workbook, or append to an existing one.
  - Configure via file, env (VOLTSHIP_*), or flags.
`

var exampleUsage = strings.TrimSpace(`
  voltship                          # interactive terminal UI
  voltship --port /dev/ttyACM0 --fresh
  voltship record --duration 10m
  voltship export voltages.xlsx --append
  voltship ports
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries configuration shared by every command.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string

	// base is cfg before the file and environment were applied; the config
	// watcher rebuilds from it.
	base    cliconfig.Config
	changed map[string]bool
	path    string

	log     zerolog.Logger
	logFile *os.File
}

// load layers file, env, and flags. With toFile the process log goes to the
// state directory so it does not fight the terminal UI for the screen.
func (c *cli) load(cmd *cobra.Command, toFile bool) error {
	c.changed = map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { c.changed[f.Name] = true })
	c.base = c.cfg

	path, err := cliconfig.Load(&c.cfg, c.cfgPath, c.changed)
	if err != nil {
		return err
	}
	c.path = path

	level, err := cliconfig.ParseLevel(c.cfg.LogLevel)
	if err != nil {
		return err
	}
	if toFile {
		logger, f, err := cliconfig.OpenLogFile(c.cfg.StateDir, level)
		if err != nil {
			return fmt.Errorf("open process log: %w", err)
		}
		c.log, c.logFile = logger, f
	} else {
		c.log = cliconfig.NewLogger(os.Stderr, level)
	}

	c.log.Info().Interface("config", c.cfg).Msg("configuration")
	return nil
}

func (c *cli) close() {
	if c.logFile != nil {
		_ = c.logFile.Close()
	}
}

// libConfig converts the CLI configuration to voltship.Config.
func (c *cli) libConfig() voltship.Config {
	cfg := c.cfg
	return voltship.Config{
		LogPath:         cfg.LogPath,
		StateDir:        cfg.StateDir,
		Match:           cfg.Match,
		BaudRate:        cfg.BaudRate,
		PollTimeout:     cfg.PollTimeout,
		VRef:            cfg.VRef,
		Resolution:      cfg.Resolution,
		Offset:          cfg.Offset,
		Precision:       cfg.Precision,
		BatchSize:       cfg.BatchSize,
		QueueCapacity:   cfg.QueueCapacity,
		FlushInterval:   cfg.FlushInterval,
		IdleInterval:    cfg.IdleInterval,
		EnqueueTimeout:  cfg.EnqueueTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
}

func (c *cli) newVoltship(observer voltship.Observer) (*voltship.Voltship, error) {
	v, err := voltship.New(c.libConfig(),
		voltship.WithLogger(log.NewZerologAdapterWithLogger(c.log)),
		voltship.WithObserver(observer),
	)
	if err != nil {
		return nil, fmt.Errorf("create voltship: %w", err)
	}
	return v, nil
}

// shutdown stops v within the configured timeout.
func (c *cli) shutdown(v *voltship.Voltship) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
	defer cancel()
	if err := v.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// watchConfig applies calibration edits from the config file while running.
func (c *cli) watchConfig(ctx context.Context, v *voltship.Voltship) *cliconfig.Watcher {
	if c.path == "" || !cliconfig.FileExists(c.path) {
		return nil
	}
	adapter := log.NewZerologAdapterWithLogger(c.log).With("config")
	w := cliconfig.NewWatcher(c.path, c.base, c.changed, func(cfg cliconfig.Config) {
		err := v.SetCalibration(voltship.Calibration{
			VRef:       cfg.VRef,
			Resolution: cfg.Resolution,
			Offset:     cfg.Offset,
		})
		if err != nil {
			adapter.Warn("calibration rejected", log.Err(err))
		}
	}, adapter)
	if err := w.Start(ctx); err != nil {
		c.log.Warn().Err(err).Str("path", c.path).Msg("config watcher disabled")
		return nil
	}
	return w
}

func main() {
	c := &cli{cfg: cliconfig.DefaultConfig()}
	var fresh bool

	root := &cobra.Command{
		Use:     "voltship",
		Short:   "Record voltages from an STM32 ADC over USB serial",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd, true); err != nil {
				return err
			}
			defer c.close()

			if fresh {
				if err := fs.TruncateLog(c.cfg.LogPath); err != nil {
					return fmt.Errorf("clear log: %w", err)
				}
			}

			feed := voltship.NewFeed(voltship.DefaultFeedLimit)
			v, err := c.newVoltship(feed)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if w := c.watchConfig(ctx, v); w != nil {
				defer w.Stop()
			}

			runErr := tui.Run(v, feed, tui.Options{
				Port:        c.cfg.Port,
				AutoConnect: true,
				OpTimeout:   c.cfg.ShutdownTimeout,
			})
			if err := c.shutdown(v); err != nil {
				c.log.Error().Err(err).Msg("shutdown")
				if runErr == nil {
					runErr = err
				}
			}
			return runErr
		},
	}

	// Flags
	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.voltship/config.toml)")
	pf.StringVar(&c.cfg.Port, "port", c.cfg.Port, "serial port (default: discover by description)")
	pf.StringVar(&c.cfg.Match, "match", c.cfg.Match, "port description substring used by discovery")
	pf.IntVar(&c.cfg.BaudRate, "baud", c.cfg.BaudRate, "serial baud rate")
	pf.StringVar(&c.cfg.LogPath, "log", c.cfg.LogPath, "voltage log file")
	pf.StringVar(&c.cfg.StateDir, "state-dir", c.cfg.StateDir, "state directory for status.json and voltship.log (default: $HOME/.voltship)")
	pf.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "process log level (debug, info, warn, error)")

	pf.Float64Var(&c.cfg.VRef, "v-ref", c.cfg.VRef, "ADC reference voltage")
	pf.IntVar(&c.cfg.Resolution, "resolution", c.cfg.Resolution, "ADC full-scale count")
	pf.Float64Var(&c.cfg.Offset, "offset", c.cfg.Offset, "voltage subtracted after scaling")
	pf.IntVar(&c.cfg.Precision, "precision", c.cfg.Precision, "decimals per logged value")

	pf.IntVar(&c.cfg.BatchSize, "batch-size", c.cfg.BatchSize, "readings per log append")
	pf.IntVar(&c.cfg.QueueCapacity, "queue-capacity", c.cfg.QueueCapacity, "readings buffered between reader and writer")
	pf.DurationVar(&c.cfg.FlushInterval, "flush-interval", c.cfg.FlushInterval, "flush partial batches after this long")
	pf.DurationVar(&c.cfg.IdleInterval, "idle-interval", c.cfg.IdleInterval, "reader sleep while not acquiring")
	pf.DurationVar(&c.cfg.PollTimeout, "poll-timeout", c.cfg.PollTimeout, "serial read timeout")
	pf.DurationVar(&c.cfg.EnqueueTimeout, "enqueue-timeout", c.cfg.EnqueueTimeout, "wait for queue space before warning")
	pf.DurationVar(&c.cfg.ShutdownTimeout, "shutdown-timeout", c.cfg.ShutdownTimeout, "maximum wait for stop and shutdown")
	for _, name := range []string{"idle-interval", "poll-timeout", "enqueue-timeout"} {
		if err := pf.MarkHidden(name); err != nil {
			fmt.Fprintf(os.Stderr, "failed to hide %s flag: %v\n", name, err)
		}
	}

	root.Flags().BoolVar(&fresh, "fresh", false, "clear the voltage log before starting")

	root.AddCommand(
		recordCmd(c),
		exportCmd(c),
		clearCmd(c),
		portsCmd(c),
	)

	if err := root.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError logs a command failure to w.
func reportError(w io.Writer, err error) {
	l := cliconfig.NewLogger(w, zerolog.InfoLevel)
	l.Error().Err(err).Msg("voltship")
}

// printEvents writes events to stdout until done is closed, then flushes.
func printEvents(feed *voltship.Feed, done <-chan struct{}) {
	for {
		select {
		case <-feed.Ready():
			for _, e := range feed.Drain() {
				fmt.Println(e.Message)
			}
		case <-done:
			for _, e := range feed.Drain() {
				fmt.Println(e.Message)
			}
			return
		}
	}
}

// withPrinter runs fn with a voltship instance whose events go to stdout.
func (c *cli) withPrinter(fn func(v *voltship.Voltship) error) error {
	feed := voltship.NewFeed(voltship.DefaultFeedLimit)
	v, err := c.newVoltship(feed)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(feed, done)
	}()

	runErr := fn(v)
	if err := c.shutdown(v); err != nil && runErr == nil {
		runErr = err
	}

	close(done)
	select {
	case <-printed:
	case <-time.After(time.Second):
	}
	return runErr
}
