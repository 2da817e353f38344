// Package main provides an NFC tag session agent. It arms a reader for a
// single read or write, runs the exchange with timeouts and retries, and
// streams session events to WebSocket observers.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nedpals/nfc-session/buildinfo"
	"github.com/nedpals/nfc-session/config"
	"github.com/nedpals/nfc-session/logging"
	"github.com/nedpals/nfc-session/nfc"
)

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"device":     "nfc.device",
	"mock":       "nfc.mock",
	"continuous": "nfc.continuous_read",
	"log-level":  "log.level",
	"log-format": "log.format",
	"log-file":   "log.file",
	"host":       "server.host",
	"port":       "server.port",
	"api-secret": "server.api_secret",
	"mdns":       "server.mdns",
}

// cliState is shared by the commands of one invocation.
type cliState struct {
	configFile string
	cfg        config.Config
	logCloser  io.Closer
}

func newRootCommand() *cobra.Command {
	state := &cliState{}

	cmd := &cobra.Command{
		Use:   buildinfo.Name,
		Short: buildinfo.Description,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDefault(state.configFile, cmd.Flags(), flagKeys)
			if err != nil {
				return err
			}
			closer, err := logging.ConfigureGlobalLogging(logging.Options{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				File:   cfg.Log.File,
			})
			if err != nil {
				return err
			}
			state.cfg = cfg
			state.logCloser = closer
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if state.logCloser != nil {
				return state.logCloser.Close()
			}
			return nil
		},
	}
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	flags := cmd.PersistentFlags()
	flags.StringVarP(&state.configFile, "config", "c", "", "Configuration file path (default "+config.DefaultConfigPath()+")")
	flags.String("device", "", "NFC device connection string (default: first reader found)")
	flags.Bool("mock", false, "Use a simulated reader instead of hardware")
	flags.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "", "Log format (text, json)")
	flags.String("log-file", "", "Also write logs to this file")

	cmd.AddCommand(
		newServeCommand(state),
		newReadCommand(state),
		newWriteCommand(state),
		newDevicesCommand(),
		newVersionCommand(),
	)
	return cmd
}

func newServeCommand(state *cliState) *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent with the WebSocket server (system tray by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := NewAgent(state.cfg, log.Logger)
			if !headless {
				NewSystrayApp(agent).Run()
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := agent.Start(""); err != nil {
				return fmt.Errorf("failed to start agent: %w", err)
			}
			defer agent.Stop()

			<-ctx.Done()
			log.Info().Msg("Shutdown signal received, stopping agent...")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&headless, "cli", false, "Run headless instead of in the system tray")
	flags.Bool("continuous", false, "Keep reading after every tag")
	flags.String("host", "", "Address to listen on")
	flags.Int("port", 0, "Port to listen on")
	flags.String("api-secret", "", "Secret required from WebSocket and status clients")
	flags.Bool("mdns", false, "Advertise the server over mDNS")
	return cmd
}

func newReadCommand(state *cliState) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Wait for a tag and print its payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runOnce(cmd.Context(), state.cfg, timeout, func(c *nfc.Controller) (*nfc.Pending, error) {
				return c.ArmForRead()
			})
			if err != nil {
				return printFailure(cmd.ErrOrStderr(), err)
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Tag %s\n", res.TagID)
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for a tag")
	return cmd
}

func newWriteCommand(state *cliState) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "write [data]",
		Short: "Wait for a tag and write data to it (the default payload when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload []byte
			if len(args) == 1 {
				payload = []byte(args[0])
			}
			res, err := runOnce(cmd.Context(), state.cfg, timeout, func(c *nfc.Controller) (*nfc.Pending, error) {
				return c.ArmForWrite(payload)
			})
			if err != nil {
				return printFailure(cmd.ErrOrStderr(), err)
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to tag %s\n", len(res.Data), res.TagID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for a tag")
	return cmd
}

func newDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the NFC readers libnfc can see",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := nfc.ListDevices()
			if err != nil {
				return printFailure(cmd.ErrOrStderr(), err)
			}
			if len(devices) == 0 {
				color.New(color.FgYellow).Fprintln(cmd.OutOrStdout(), "No NFC devices found")
				return nil
			}
			for _, d := range devices {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.BuildInfo())
		},
	}
}

// runOnce starts a server-less agent, arms it with arm and waits for the
// session result or the timeout.
func runOnce(ctx context.Context, cfg config.Config, timeout time.Duration, arm func(*nfc.Controller) (*nfc.Pending, error)) (nfc.Result, error) {
	cfg.Server.Enabled = false
	cfg.NFC.ContinuousRead = false

	agent := NewAgent(cfg, log.Logger)
	if err := agent.Start(""); err != nil {
		return nfc.Result{}, err
	}
	defer agent.Stop()

	pending, err := arm(agent.Controller())
	if err != nil {
		return nfc.Result{}, err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, errors.New("no tag presented"))
	defer cancel()

	res, err := pending.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		return nfc.Result{}, context.Cause(ctx)
	}
	return res, err
}

// reportedError marks an error that has already been printed.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// printFailure reports err in red and returns it so the process exits non-zero.
func printFailure(w io.Writer, err error) error {
	if code := nfc.GetErrorCode(err); code != 0 {
		color.New(color.FgRed).Fprintf(w, "%s: %v\n", code, err)
	} else {
		color.New(color.FgRed).Fprintf(w, "Error: %v\n", err)
	}
	return reportedError{err}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
