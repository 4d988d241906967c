// cmd/mmlctl/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"makino-adapter/internal/config"
	"makino-adapter/internal/utils"
)

// rootOptions are the flags shared by every command
type rootOptions struct {
	configPath string
	version    int
	emulate    bool
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mmlctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "mmlctl",
		Short:         "Inspect a Makino ProX controller and manage the adapter database",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "configuration file (default: search ./config.yaml)")
	flags.IntVar(&opts.version, "version", -1, "pin the ProX generation (3, 5 or 6; 0 probes)")
	flags.BoolVar(&opts.emulate, "emulate", false, "use the built-in controller emulator")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log controller traffic to stderr")

	root.AddCommand(newProbeCmd(opts))
	root.AddCommand(newToolsCmd(opts))
	root.AddCommand(newPositionsCmd(opts))
	root.AddCommand(newPropertiesCmd(opts))
	root.AddCommand(newMachineCmd(opts))
	root.AddCommand(newAlarmsCmd(opts))
	root.AddCommand(newDiscoverCmd(opts))
	root.AddCommand(newMigrateCmd(opts))

	return root
}

// load reads the configuration and applies the command line overrides
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.version >= 0 {
		cfg.Controller.ProXVersion = o.version
	}
	if o.emulate {
		cfg.Controller.Transport = config.TransportEmulator
	}
	return cfg, nil
}

// logger logs to stderr so that stdout only carries command output
func (o *rootOptions) logger() (*zap.Logger, error) {
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	return utils.NewLogger(&config.LoggingConfig{
		Level:  level,
		Format: "console",
		Output: "stderr",
	})
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
