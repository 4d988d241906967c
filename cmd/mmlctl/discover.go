// cmd/mmlctl/discover.go
package main

import (
	"github.com/spf13/cobra"

	"makino-adapter/internal/discovery"
	"makino-adapter/internal/discovery/serial"
	"makino-adapter/internal/discovery/tcp"
)

func newDiscoverCmd(opts *rootOptions) *cobra.Command {
	var hosts []string
	var ports []int
	var patterns []string
	var only string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find reachable gateways and serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger, err := opts.logger()
			if err != nil {
				return err
			}

			if len(hosts) == 0 {
				hosts = []string{cfg.Controller.Gateway.Host}
			}
			if len(ports) == 0 {
				ports = []int{cfg.Controller.Gateway.Port, cfg.Controller.ProXPort, cfg.Controller.CncPort}
			}

			manager := discovery.NewScannerManager(logger)
			manager.RegisterScanner(tcp.NewScanner(logger, &tcp.Config{
				Hosts:       hosts,
				Ports:       ports,
				ConnTimeout: cfg.Controller.Gateway.ConnectTimeout,
			}))
			manager.RegisterScanner(serial.NewScanner(logger, patterns...))

			var candidates []*discovery.Candidate
			if only != "" {
				candidates, err = manager.ScanByType(cmd.Context(), only)
			} else {
				candidates, err = manager.ScanAll(cmd.Context())
			}
			if err != nil {
				return err
			}
			if candidates == nil {
				candidates = []*discovery.Candidate{}
			}
			return writeJSON(cmd.OutOrStdout(), candidates)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&hosts, "host", nil, "hosts to dial (default: the configured gateway host)")
	flags.IntSliceVar(&ports, "port", nil, "ports to dial (default: the gateway, ProX and Cnc ports)")
	flags.StringSliceVar(&patterns, "serial-pattern", nil, "only list serial ports whose name contains a pattern")
	flags.StringVar(&only, "type", "", "run one scanner: tcp or serial")
	return cmd
}
