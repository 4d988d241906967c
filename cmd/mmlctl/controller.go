// cmd/mmlctl/controller.go
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"makino-adapter/internal/controller"
	"makino-adapter/internal/service"
	"makino-adapter/internal/session"
)

// adapter is a one-shot controller connection without HTTP or persistence
type adapter struct {
	service *service.AdapterService
	backend *controller.Backend
	logger  *zap.Logger
}

func (o *rootOptions) connect() (*adapter, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	logger, err := o.logger()
	if err != nil {
		return nil, err
	}

	registry := controller.NewRegistry(logger)
	backend, err := controller.RegisterDefaultLinks(registry, &cfg.Controller, logger)
	if err != nil {
		return nil, err
	}
	opts, err := controller.SessionOptions(&cfg.Controller)
	if err != nil {
		backend.Close()
		return nil, err
	}

	// A one-shot command never waits for the reconnect delay
	negotiator := session.NewNegotiator(registry, session.NewThrottle(0), opts, logger)
	svc := service.NewAdapterService(negotiator, nil, cfg, logger, service.WithBackend(backend.Name()))
	negotiator.SetObserver(svc)

	return &adapter{service: svc, backend: backend, logger: logger}, nil
}

func (a *adapter) close(ctx context.Context) {
	if err := a.service.Close(ctx); err != nil {
		a.logger.Warn("Failed to close controller sessions", zap.Error(err))
	}
	if err := a.backend.Close(); err != nil {
		a.logger.Warn("Failed to close controller backend", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// runWithAdapter connects, runs fn and always frees the handles
func runWithAdapter(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *adapter) (interface{}, error)) error {
	a, err := opts.connect()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.close(context.WithoutCancel(ctx))

	result, err := fn(ctx, a)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

func newProbeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Negotiate the ProX generation and report the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithAdapter(cmd, opts, func(ctx context.Context, a *adapter) (interface{}, error) {
				if _, err := a.service.Refresh(ctx); err != nil {
					return nil, fmt.Errorf("probe failed: %w", err)
				}
				return a.service.Status(), nil
			})
		},
	}
}

func newToolsCmd(opts *rootOptions) *cobra.Command {
	var toolNumber string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Acquire and print the tool life data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithAdapter(cmd, opts, func(ctx context.Context, a *adapter) (interface{}, error) {
				data, err := a.service.Refresh(ctx)
				if err != nil {
					return nil, err
				}
				if toolNumber != "" {
					return data.FindByToolNumber(toolNumber), nil
				}
				return data, nil
			})
		},
	}
	cmd.Flags().StringVar(&toolNumber, "tool-number", "", "only print the records of one tool number")
	return cmd
}

func newPositionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "Print the registered tool positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithAdapter(cmd, opts, func(ctx context.Context, a *adapter) (interface{}, error) {
				if _, err := a.service.Refresh(ctx); err != nil {
					return nil, err
				}
				return a.service.Positions(), nil
			})
		},
	}
}

func newPropertiesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "properties",
		Short: "Print the raw item values of every registered position",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithAdapter(cmd, opts, func(ctx context.Context, a *adapter) (interface{}, error) {
				return a.service.Properties(ctx)
			})
		},
	}
}

func newMachineCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "machine",
		Short: "Poll once and print the spindle tool, pallet and M code",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithAdapter(cmd, opts, func(ctx context.Context, a *adapter) (interface{}, error) {
				if _, err := a.service.Poll(ctx); err != nil {
					return nil, err
				}
				return a.service.MachineState(), nil
			})
		},
	}
}

func newAlarmsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "alarms",
		Short: "Print the active machine and Cnc alarms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithAdapter(cmd, opts, func(ctx context.Context, a *adapter) (interface{}, error) {
				return a.service.Alarms(ctx)
			})
		},
	}
}
