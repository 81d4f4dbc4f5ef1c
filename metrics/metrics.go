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

// Package metrics exports device and discovery activity to Prometheus.
package metrics

import (
	"time"

	xbee "github.com/ZaparooProject/go-xbee"
	"github.com/ZaparooProject/go-xbee/discovery"
	"github.com/ZaparooProject/go-xbee/packet"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "xbee"

// StatsSource is implemented by *xbee.Device.
type StatsSource interface {
	Stats() xbee.Stats
}

// PacketSource is implemented by *xbee.Device.
type PacketSource interface {
	AddPacketListener(l xbee.PacketListener) (remove func())
}

type statDesc struct {
	desc  *prometheus.Desc
	value func(xbee.Stats) uint64
}

// statsCollector reads a Stats snapshot on every scrape.
type statsCollector struct {
	source StatsSource
	stats  []statDesc
}

func newStat(subsystem, name, help string, labels prometheus.Labels, value func(xbee.Stats) uint64) statDesc {
	return statDesc{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, labels),
		value: value,
	}
}

// NewStatsCollector returns a collector over the device counters. Labels
// are attached to every series, typically {"port": ...}.
func NewStatsCollector(source StatsSource, labels prometheus.Labels) prometheus.Collector {
	return &statsCollector{
		source: source,
		stats: []statDesc{
			newStat("rx", "bytes_total", "Bytes read from the transport.", labels,
				func(s xbee.Stats) uint64 { return s.BytesRead }),
			newStat("tx", "bytes_total", "Bytes written to the transport.", labels,
				func(s xbee.Stats) uint64 { return s.BytesWritten }),
			newStat("rx", "frames_total", "Frames decoded from the stream.", labels,
				func(s xbee.Stats) uint64 { return s.FramesReceived }),
			newStat("tx", "frames_total", "Frames written.", labels,
				func(s xbee.Stats) uint64 { return s.FramesSent }),
			newStat("rx", "framing_errors_total", "Frames rejected for a bad length or escape.", labels,
				func(s xbee.Stats) uint64 { return s.FramingErrors }),
			newStat("rx", "checksum_errors_total", "Frames rejected for a bad checksum.", labels,
				func(s xbee.Stats) uint64 { return s.ChecksumErrors }),
			newStat("rx", "unknown_frames_total", "Frames of an unregistered type.", labels,
				func(s xbee.Stats) uint64 { return s.UnknownFrames }),
			newStat("rx", "decode_errors_total", "Frames whose payload failed to decode.", labels,
				func(s xbee.Stats) uint64 { return s.DecodeErrors }),
			newStat("rx", "dropped_bytes_total", "Bytes skipped while resynchronising or lost to overruns.", labels,
				func(s xbee.Stats) uint64 { return s.DroppedBytes }),
			newStat("transport", "read_errors_total", "Transport read failures.", labels,
				func(s xbee.Stats) uint64 { return s.ReadErrors }),
			newStat("request", "timeouts_total", "Requests that got no response in time.", labels,
				func(s xbee.Stats) uint64 { return s.Timeouts }),
		},
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, s := range c.stats {
		ch <- s.desc
	}
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.source.Stats()
	for _, s := range c.stats {
		ch <- prometheus.MustNewConstMetric(s.desc, prometheus.CounterValue, float64(s.value(snapshot)))
	}
}

// PacketCounter counts received packets by frame type.
type PacketCounter struct {
	packets *prometheus.CounterVec
}

// NewPacketCounter creates the xbee_rx_packets_total family.
func NewPacketCounter(labels prometheus.Labels) *PacketCounter {
	return &PacketCounter{
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "rx",
			Name:        "packets_total",
			Help:        "Packets delivered to listeners, by frame type.",
			ConstLabels: labels,
		}, []string{"type"}),
	}
}

// PacketReceived implements xbee.PacketListener.
func (c *PacketCounter) PacketReceived(p packet.Packet) {
	c.packets.WithLabelValues(p.FrameType().String()).Inc()
}

// Attach starts counting packets from source.
func (c *PacketCounter) Attach(source PacketSource) (remove func()) {
	return source.AddPacketListener(c)
}

func (c *PacketCounter) Describe(ch chan<- *prometheus.Desc) { c.packets.Describe(ch) }

func (c *PacketCounter) Collect(ch chan<- prometheus.Metric) { c.packets.Collect(ch) }

// DiscoveryMetrics tracks node discovery runs.
type DiscoveryMetrics struct {
	runs     *prometheus.CounterVec
	nodes    prometheus.Counter
	errors   prometheus.Counter
	duration prometheus.Histogram
	known    prometheus.Gauge
}

// NewDiscoveryMetrics creates the xbee_discovery_* families.
func NewDiscoveryMetrics(labels prometheus.Labels) *DiscoveryMetrics {
	return &DiscoveryMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "discovery", Name: "runs_total",
			Help: "Finished discovery runs, by result.", ConstLabels: labels,
		}, []string{"result"}),
		nodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "discovery", Name: "nodes_reported_total",
			Help: "Node discovery responses accepted.", ConstLabels: labels,
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "discovery", Name: "errors_total",
			Help: "Non-fatal problems reported during discovery.", ConstLabels: labels,
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "discovery", Name: "duration_seconds",
			Help: "Discovery run duration.", ConstLabels: labels,
			Buckets: []float64{1, 2, 5, 10, 15, 30},
		}),
		known: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "discovery", Name: "known_nodes",
			Help: "Nodes in the network after the last run.", ConstLabels: labels,
		}),
	}
}

// Observe wraps next so the run is recorded before next sees each event.
// network may be nil; otherwise its size is recorded when the run ends.
func (m *DiscoveryMetrics) Observe(next discovery.Listener, network *discovery.Network) discovery.Listener {
	start := time.Now()
	return discovery.ListenerFuncs{
		OnDevice: func(dev *discovery.RemoteDevice) {
			m.nodes.Inc()
			if next != nil {
				next.DeviceDiscovered(dev)
			}
		},
		OnError: func(msg string) {
			m.errors.Inc()
			if next != nil {
				next.DiscoveryError(msg)
			}
		},
		OnFinished: func(err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			m.runs.WithLabelValues(result).Inc()
			m.duration.Observe(time.Since(start).Seconds())
			if network != nil {
				m.known.Set(float64(network.Len()))
			}
			if next != nil {
				next.DiscoveryFinished(err)
			}
		},
	}
}

func (m *DiscoveryMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.runs.Describe(ch)
	m.nodes.Describe(ch)
	m.errors.Describe(ch)
	m.duration.Describe(ch)
	m.known.Describe(ch)
}

func (m *DiscoveryMetrics) Collect(ch chan<- prometheus.Metric) {
	m.runs.Collect(ch)
	m.nodes.Collect(ch)
	m.errors.Collect(ch)
	m.duration.Collect(ch)
	m.known.Collect(ch)
}

// Register registers the non-nil collectors for one device on reg.
func Register(reg prometheus.Registerer, stats StatsSource, packets *PacketCounter, disc *DiscoveryMetrics) error {
	var collectors []prometheus.Collector
	if stats != nil {
		collectors = append(collectors, NewStatsCollector(stats, nil))
	}
	if packets != nil {
		collectors = append(collectors, packets)
	}
	if disc != nil {
		collectors = append(collectors, disc)
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err //nolint:wrapcheck // AlreadyRegisteredError is matched by callers
		}
	}
	return nil
}
