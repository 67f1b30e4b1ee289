package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	serialAdapter "github.com/bft-labs/voltship/internal/adapters/serial"
	"github.com/bft-labs/voltship/internal/app"
	"github.com/bft-labs/voltship/pkg/voltship"
)

func recordCmd(c *cli) *cobra.Command {
	var (
		duration  time.Duration
		reconnect bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record without the terminal UI until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd, false); err != nil {
				return err
			}
			defer c.close()

			return c.withPrinter(func(v *voltship.Voltship) error {
				// Setup signal handling for graceful shutdown
				ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()

				if w := c.watchConfig(ctx, v); w != nil {
					defer w.Stop()
				}

				if err := v.Connect(ctx, c.cfg.Port); err != nil {
					return fmt.Errorf("connect: %w", err)
				}
				if err := v.Start(ctx); err != nil {
					return fmt.Errorf("start: %w", err)
				}

				var timer <-chan time.Time
				if duration > 0 {
					t := time.NewTimer(duration)
					defer t.Stop()
					timer = t.C
				}

				// Wait for signal, timer, or a fault
				ticker := time.NewTicker(100 * time.Millisecond)
				defer ticker.Stop()
			wait:
				for {
					select {
					case <-ctx.Done():
						c.log.Info().Msg("received signal, stopping...")
						break wait
					case <-timer:
						c.log.Info().Dur("duration", duration).Msg("duration elapsed, stopping...")
						break wait
					case <-ticker.C:
						st := v.Status()
						if st.State != voltship.StateError {
							continue
						}
						if !reconnect {
							return fmt.Errorf("acquisition failed: %w", st.Fault)
						}
						c.log.Warn().Err(st.Fault).Msg("acquisition failed, reconnecting")
						if err := c.reconnect(ctx, v); err != nil {
							break wait
						}
					}
				}

				if v.Status().State != voltship.StateRunning {
					return nil
				}
				stopCtx, stopCancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
				defer stopCancel()
				if err := v.Stop(stopCtx); err != nil {
					return fmt.Errorf("stop: %w", err)
				}

				st := v.Status()
				c.log.Info().
					Str("session", st.Session.ID).
					Int64("records", st.Session.Records).
					Int64("rejected", st.Rejected).
					Str("log", v.LogPath()).
					Msg("recording complete")
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (default: until interrupted)")
	cmd.Flags().BoolVar(&reconnect, "reconnect", false, "reconnect and resume after a device fault")
	return cmd
}

// reconnect retries Connect and Start until both succeed or ctx is done.
func (c *cli) reconnect(ctx context.Context, v *voltship.Voltship) error {
	backoff := app.NewBackoff(500*time.Millisecond, 10*time.Second)
	for attempt := 1; ; attempt++ {
		if err := backoff.Wait(ctx); err != nil {
			return err
		}
		if err := v.Connect(ctx, c.cfg.Port); err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Dur("next", backoff.Current()).Msg("reconnect failed")
			continue
		}
		if err := v.Start(ctx); err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("restart failed")
			continue
		}
		c.log.Info().Int("attempt", attempt).Str("port", v.Status().Port).Msg("reconnected")
		return nil
	}
}

func exportCmd(c *cli) *cobra.Command {
	var appendTo bool

	cmd := &cobra.Command{
		Use:   "export <workbook.xlsx>",
		Short: "Export the voltage log to an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd, false); err != nil {
				return err
			}
			defer c.close()

			return c.withPrinter(func(v *voltship.Voltship) error {
				res, err := v.Export(cmd.Context(), args[0], appendTo)
				if err != nil {
					return err
				}
				c.log.Info().
					Str("path", res.Path).
					Int("rows", res.Rows).
					Int("skipped", res.Skipped).
					Msg("export complete")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&appendTo, "append", false, "append to an existing workbook")
	return cmd
}

func clearCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the voltage log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd, false); err != nil {
				return err
			}
			defer c.close()

			return c.withPrinter(func(v *voltship.Voltship) error {
				return v.Clear(cmd.Context())
			})
		},
	}
}

func portsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports; * marks ports discovery would pick",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd, false); err != nil {
				return err
			}
			defer c.close()

			d := serialAdapter.NewDiscoverer(c.cfg.Match)
			infos, err := d.List()
			if err != nil {
				return fmt.Errorf("list ports: %w", err)
			}
			if len(infos) == 0 {
				fmt.Println("no serial ports found")
				return nil
			}
			for _, p := range infos {
				mark := " "
				if d.Matches(p) {
					mark = "*"
				}
				usb := ""
				if p.IsUSB {
					usb = fmt.Sprintf("%s:%s", p.VID, p.PID)
				}
				fmt.Printf("%s %-20s %-10s %s\n", mark, p.Name, usb, p.Description)
			}
			return nil
		},
	}
}
