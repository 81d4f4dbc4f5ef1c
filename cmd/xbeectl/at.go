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
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	xbee "github.com/ZaparooProject/go-xbee"
	"github.com/ZaparooProject/go-xbee/packet"
	"github.com/spf13/cobra"
)

func newATCmd(a *app) *cobra.Command {
	var (
		asText bool
		apply  bool
		write  bool
		remote string
	)

	cmd := &cobra.Command{
		Use:   "at COMMAND [VALUE]",
		Short: "Read, set or execute an AT parameter",
		Long: `Without VALUE the parameter is read (or, for commands such as AC and WR,
executed). VALUE is hexadecimal unless --text is given.`,
		Example: `  xbeectl at NI
  xbeectl at NI PUMP --text --write
  xbeectl at D1 04 --remote 0013A20040B1C2D3 --apply`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.ToUpper(args[0])
			if len(command) != 2 {
				return fmt.Errorf("AT command must be two characters, got %q", args[0])
			}

			var value []byte
			if len(args) == 2 {
				var err error
				if value, err = parseValue(args[1], asText); err != nil {
					return err
				}
			}

			var dest packet.Address64
			if remote != "" {
				var err error
				if dest, err = packet.ParseAddress64(remote); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			device, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = device.Close() }()

			switch {
			case remote != "" && value != nil:
				err = device.SetRemoteParameter(ctx, dest, command, value)
			case remote != "":
				value, err = device.GetRemoteParameter(ctx, dest, command)
			case value != nil:
				err = device.SetParameter(ctx, command, value)
			default:
				value, err = device.GetParameter(ctx, command)
			}
			if err != nil {
				return err
			}

			if write {
				if remote != "" {
					_, err = device.GetRemoteParameter(ctx, dest, xbee.CmdWriteChanges)
				} else {
					err = device.WriteChanges(ctx)
				}
				if err != nil {
					return err
				}
			}
			if apply && remote == "" {
				if err := device.ApplyChanges(ctx); err != nil {
					return err
				}
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", command, formatValue(value))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asText, "text", false, "VALUE is text rather than hex")
	cmd.Flags().BoolVar(&apply, "apply", false, "Send AC after setting (remote sets are applied immediately)")
	cmd.Flags().BoolVar(&write, "write", false, "Send WR after setting")
	cmd.Flags().StringVarP(&remote, "remote", "r", "", "64-bit address of a remote module")
	return cmd
}

// parseValue turns a command line value into parameter bytes. Hex values
// may carry a 0x prefix and an odd digit count.
func parseValue(s string, asText bool) ([]byte, error) {
	if asText {
		return []byte(s), nil
	}

	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	digits = strings.NewReplacer(" ", "", ":", "").Replace(digits)
	if digits == "" {
		return nil, fmt.Errorf("empty hex value %q", s)
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	b, err := hex.DecodeString(digits)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value %q (use --text for strings): %w", s, err)
	}
	return b, nil
}

// formatValue prints bytes as hex, followed by the text when every byte is
// printable ASCII.
func formatValue(b []byte) string {
	if len(b) == 0 {
		return "OK"
	}
	out := strings.ToUpper(hex.EncodeToString(b))
	printable := true
	for _, c := range b {
		if c > unicode.MaxASCII || !unicode.IsPrint(rune(c)) {
			printable = false
			break
		}
	}
	if printable {
		out += fmt.Sprintf(" (%q)", string(b))
	}
	return out
}
