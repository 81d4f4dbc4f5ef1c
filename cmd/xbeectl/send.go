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
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-xbee/packet"
	"github.com/spf13/cobra"
)

func newSendCmd(a *app) *cobra.Command {
	var asHex bool

	cmd := &cobra.Command{
		Use:   "send DESTINATION DATA",
		Short: "Transmit data to a remote module",
		Long: `DESTINATION is a 64-bit address, a 16-bit address (up to four hex digits,
sent with the 802.15.4 TX request) or "broadcast". The command waits for the
delivery report.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseValue(args[1], !asHex)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			device, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = device.Close() }()

			dest := strings.TrimSpace(args[0])
			switch {
			case strings.EqualFold(dest, "broadcast"):
				err = device.SendBroadcastData(ctx, data)
			case len(dest) <= 4:
				var addr packet.Address16
				if addr, err = packet.ParseAddress16(dest); err == nil {
					err = device.SendData16(ctx, addr, data)
				}
			default:
				var addr packet.Address64
				if addr, err = packet.ParseAddress64(dest); err == nil {
					err = device.SendData(ctx, addr, data)
				}
			}
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "delivered %d byte(s) to %s\n", len(data), dest)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asHex, "hex", false, "DATA is hex rather than text")
	return cmd
}
