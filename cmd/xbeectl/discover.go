// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ZaparooProject/go-xbee/discovery"
	"github.com/spf13/cobra"
)

func newDiscoverCmd(a *app) *cobra.Command {
	var (
		timeout time.Duration
		grace   time.Duration
		options string
		nodeID  string
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List the modules in range of the local module",
		Long: `Runs node discovery (ND) on the local module and prints every node that
answers before the discovery timeout. NO and NT are changed only for the run
and restored afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("timeout") {
				a.cfg.DiscoveryTimeout = timeout
			}
			if flags.Changed("grace") {
				a.cfg.DiscoveryGrace = grace
			}
			if flags.Changed("options") {
				o, err := discovery.ParseOptions(options)
				if err != nil {
					return err
				}
				a.cfg.DiscoveryOptions = o
				a.cfg.SetDiscoveryOptions = true
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			device, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = device.Close() }()

			d, err := discovery.New(device, a.cfg.discoveryOptions()...)
			if err != nil {
				return err
			}

			if nodeID != "" {
				dev, err := d.FindDevice(ctx, nodeID)
				if err != nil {
					return err
				}
				printDevices(cmd.OutOrStdout(), []*discovery.RemoteDevice{dev})
				return nil
			}

			devices, err := d.Discover(ctx)
			printDevices(cmd.OutOrStdout(), devices)
			if err != nil && !errors.Is(err, ctx.Err()) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Discovery timeout (NT) for this run; 0 keeps the module's")
	cmd.Flags().DurationVar(&grace, "grace", discovery.DefaultGrace, "Extra listening time after the timeout")
	cmd.Flags().StringVarP(&options, "options", "o", "", `Discovery options (NO): "device-type", "self", "rssi", joined by |`)
	cmd.Flags().StringVarP(&nodeID, "node", "n", "", "Stop at the module with this node identifier")
	return cmd
}

func printDevices(out io.Writer, devices []*discovery.RemoteDevice) {
	if len(devices) == 0 {
		_, _ = fmt.Fprintln(out, "no modules answered")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ADDRESS64\tADDR16\tNODE ID\tROLE\tPARENT\tRSSI")
	for _, dev := range devices {
		rssi := "-"
		if dev.HasRSSI {
			rssi = fmt.Sprintf("-%d dBm", dev.RSSI)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			dev.Address64, dev.Address16, dev.NodeID, dev.Role, dev.Parent, rssi)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "%d module(s)\n", len(devices))
}
