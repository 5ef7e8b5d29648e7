// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/holomush/worldgate/internal/config"
	"github.com/holomush/worldgate/internal/control"
)

// statusConfig holds configuration for the status command.
type statusConfig struct {
	controlAddr string
	timeout     time.Duration
	jsonOutput  bool
}

// ServiceStatus is the health of one service on the control server.
type ServiceStatus struct {
	Service string          `json:"service"`
	Health  string          `json:"health,omitempty"`
	Raw     json.RawMessage `json:"response,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// statusServices are queried in this order. The empty name is the
// overall server health.
var statusServices = []string{"", control.ServiceName}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running gateway",
		Long: `Query the gRPC health service of a running gateway. The command fails
when any service is unreachable or not serving.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.controlAddr, "control-addr", config.Default().ControlAddr, "control gRPC address of the gateway")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "time limit for each health check")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	statuses := make([]ServiceStatus, 0, len(statusServices))
	for _, service := range statusServices {
		statuses = append(statuses, queryServiceStatus(cmd.Context(), cfg.controlAddr, service, cfg.timeout))
	}

	if cfg.jsonOutput {
		output, err := formatStatusJSON(cfg.controlAddr, statuses)
		if err != nil {
			return err
		}
		cmd.Println(output)
	} else {
		cmd.Print(formatStatusTable(cfg.controlAddr, statuses))
	}

	for _, s := range statuses {
		if s.Health != "SERVING" {
			return oops.Code("GATEWAY_NOT_SERVING").
				With("addr", cfg.controlAddr).
				With("service", displayName(s.Service)).
				Errorf("gateway is not serving")
		}
	}
	return nil
}

// queryServiceStatus checks one service. Failures are reported in the
// Error field.
func queryServiceStatus(ctx context.Context, addr, service string, timeout time.Duration) ServiceStatus {
	status := ServiceStatus{Service: displayName(service)}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := control.Check(ctx, addr, service)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Health = resp.GetStatus().String()

	raw, err := protojson.Marshal(resp)
	if err != nil {
		status.Error = fmt.Sprintf("failed to encode health response: %v", err)
		return status
	}
	status.Raw = raw
	return status
}

func displayName(service string) string {
	if service == "" {
		return "server"
	}
	return service
}

// formatStatusTable formats the statuses as a human-readable table.
func formatStatusTable(addr string, statuses []ServiceStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "SERVICE\tADDRESS\tHEALTH")
	_, _ = fmt.Fprintln(w, "-------\t-------\t------")
	for _, s := range statuses {
		health := s.Health
		if s.Error != "" {
			health = "unreachable: " + s.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.Service, addr, health)
	}

	_ = w.Flush()
	return buf.String()
}

// formatStatusJSON formats the statuses as JSON.
func formatStatusJSON(addr string, statuses []ServiceStatus) (string, error) {
	data, err := json.MarshalIndent(struct {
		Addr     string          `json:"addr"`
		Services []ServiceStatus `json:"services"`
	}{Addr: addr, Services: statuses}, "", "  ")
	if err != nil {
		return "", oops.Code("STATUS_ENCODE_FAILED").Wrap(err)
	}
	return string(data), nil
}
