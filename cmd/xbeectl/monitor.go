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
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	xbee "github.com/ZaparooProject/go-xbee"
	"github.com/ZaparooProject/go-xbee/discovery"
	"github.com/ZaparooProject/go-xbee/internal/syncutil"
	"github.com/ZaparooProject/go-xbee/metrics"
	"github.com/ZaparooProject/go-xbee/packet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newMonitorCmd(a *app) *cobra.Command {
	var (
		listen string
		every  time.Duration
		quiet  bool
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print received packets and serve Prometheus metrics",
		Long: `Prints every packet the local module delivers until interrupted. With
--listen the device counters are served at /metrics; with --discover-every
node discovery runs periodically and its results are logged and counted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("listen") {
				a.cfg.MetricsListen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			device, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = device.Close() }()

			return runMonitor(ctx, a, device, cmd.OutOrStdout(), every, quiet)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Address for the /metrics endpoint, e.g. :9110")
	cmd.Flags().DurationVar(&every, "discover-every", 0, "Run node discovery at this interval (0 disables)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print packets")
	return cmd
}

// lockedWriter serialises packet lines from the parser goroutine with
// discovery output.
type lockedWriter struct {
	w  io.Writer
	mu syncutil.Mutex
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintf(l.w, format, args...)
}

func runMonitor(ctx context.Context, a *app, device *xbee.Device, w io.Writer, every time.Duration, quiet bool) error {
	out := &lockedWriter{w: w}

	packets := metrics.NewPacketCounter(nil)
	discMetrics := metrics.NewDiscoveryMetrics(nil)
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg, device, packets, discMetrics); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	defer packets.Attach(device)()

	if !quiet {
		defer device.AddPacketListener(xbee.PacketListenerFunc(func(p packet.Packet) {
			out.printf("%s %s\n", time.Now().Format("15:04:05.000"), formatPacket(p))
		}))()
	}

	if a.cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: a.cfg.MetricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				xbee.Warnf("metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		xbee.Infof("serving metrics on %s/metrics", a.cfg.MetricsListen)
	}

	var ticks <-chan time.Time
	var discoverer *discovery.Discoverer
	if every > 0 {
		var err error
		if discoverer, err = discovery.New(device, a.cfg.discoveryOptions()...); err != nil {
			return err
		}
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		ticks = ticker.C
		startDiscovery(ctx, discoverer, discMetrics, out)
	}

	health := time.NewTicker(time.Second)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			if discoverer != nil {
				discoverer.Wait()
			}
			return nil
		case <-ticks:
			startDiscovery(ctx, discoverer, discMetrics, out)
		case <-health.C:
		}
		if err := device.Err(); err != nil {
			return err
		}
	}
}

func startDiscovery(ctx context.Context, d *discovery.Discoverer, m *metrics.DiscoveryMetrics, out *lockedWriter) {
	listener := m.Observe(discovery.ListenerFuncs{
		OnDevice: func(dev *discovery.RemoteDevice) {
			out.printf("%s discovered %s\n", time.Now().Format("15:04:05.000"), dev)
		},
		OnFinished: func(err error) {
			if err != nil && !errors.Is(err, context.Canceled) {
				xbee.Warnf("discovery: %v", err)
			}
		},
	}, d.Network())

	if err := d.Start(ctx, listener); err != nil {
		if errors.Is(err, discovery.ErrAlreadyRunning) {
			xbee.Debugf("discovery still running; skipping this interval")
			return
		}
		xbee.Warnf("discovery: %v", err)
	}
}

// formatPacket renders a packet as its frame type followed by its fields.
func formatPacket(p packet.Packet) string {
	return p.FrameType().String() + " " + strings.TrimPrefix(fmt.Sprintf("%+v", p), "&")
}
