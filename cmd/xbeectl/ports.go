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
	"strings"
	"text/tabwriter"

	"github.com/ZaparooProject/go-xbee/detection"
	_ "github.com/ZaparooProject/go-xbee/detection/uart" // registers the serial detector
	"github.com/spf13/cobra"
)

func newPortsCmd(a *app) *cobra.Command {
	var (
		mode   string
		ignore []string
	)

	cmd := &cobra.Command{
		Use:   "ports",
		Short: "Find attached XBee modules",
		Long: `Lists serial ports that hold an XBee module. Passive mode only reads USB
descriptors; safe mode sends one AT frame to each USB serial port at every
baud rate; full mode probes every port and reads the module's identity.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := detection.DefaultOptions()
			opts.EnableCache = false
			opts.IgnorePaths = ignore

			var err error
			if opts.Mode, err = parseMode(mode); err != nil {
				return err
			}
			if cmd.Flags().Changed("baud") {
				opts.BaudRates = []int{a.cfg.Baud}
			}

			devices, err := detection.DetectAll(cmd.Context(), &opts)
			if errors.Is(err, detection.ErrNoDevicesFound) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no XBee modules found")
				return nil
			}
			if err != nil {
				return err
			}
			printDetected(cmd.OutOrStdout(), devices)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", detection.Safe.String(), "Detection mode: passive, safe or full")
	cmd.Flags().StringSliceVar(&ignore, "ignore", nil, "Device paths to skip")
	return cmd
}

func parseMode(s string) (detection.Mode, error) {
	for _, m := range []detection.Mode{detection.Passive, detection.Safe, detection.Full} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown detection mode %q", s)
}

func printDetected(out io.Writer, devices []detection.DeviceInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PATH\tCONFIDENCE\tBAUD\tMODE\tNODE ID\tADDRESS64\tVID:PID")
	for _, d := range devices {
		meta := func(key string) string {
			if v := d.Metadata[key]; v != "" {
				return v
			}
			return "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", d.Path, d.Confidence,
			meta(detection.MetaBaudRate), meta(detection.MetaAPIMode), meta(detection.MetaNodeID),
			meta(detection.MetaAddress64), meta(detection.MetaVIDPID))
	}
	_ = w.Flush()
}
