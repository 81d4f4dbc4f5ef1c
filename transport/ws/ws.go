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

// Package ws provides a transport for modules exposed through a WebSocket
// serial bridge. Each binary message carries raw serial bytes in either
// direction; other message types are ignored.
package ws

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	xbee "github.com/ZaparooProject/go-xbee"
	"github.com/ZaparooProject/go-xbee/internal/syncutil"
	"github.com/gorilla/websocket"
)

// Defaults
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultDialTimeout      = 15 * time.Second
	DefaultReadTimeout      = 50 * time.Millisecond
	writeTimeout            = 5 * time.Second
	inboundQueue            = 16
)

var errInvalidOption = errors.New("invalid WebSocket option")

// Transport implements xbee.Transport over a WebSocket connection.
type Transport struct {
	conn          *websocket.Conn
	url           *url.URL
	inbound       chan []byte
	done          chan struct{}
	readErr       error
	username      string
	password      string
	pending       []byte
	readTimeout   time.Duration
	handshake     time.Duration
	dialTimeout   time.Duration
	wg            sync.WaitGroup
	mu            syncutil.Mutex
	readMu        syncutil.Mutex
	writeMu       syncutil.Mutex
	skipTLSVerify bool
}

// Option configures a Transport
type Option func(*Transport) error

// WithBasicAuth sends HTTP Basic credentials with the handshake.
func WithBasicAuth(username, password string) Option {
	return func(t *Transport) error {
		t.username = username
		t.password = password
		return nil
	}
}

// WithInsecureSkipVerify disables certificate verification for wss URLs.
func WithInsecureSkipVerify(skip bool) Option {
	return func(t *Transport) error {
		t.skipTLSVerify = skip
		return nil
	}
}

// WithReadTimeout sets how long a Read waits for a message.
func WithReadTimeout(timeout time.Duration) Option {
	return func(t *Transport) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: read timeout %s", errInvalidOption, timeout)
		}
		t.readTimeout = timeout
		return nil
	}
}

// WithDialTimeout bounds the whole connection attempt.
func WithDialTimeout(timeout time.Duration) Option {
	return func(t *Transport) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: dial timeout %s", errInvalidOption, timeout)
		}
		t.dialTimeout = timeout
		t.handshake = min(t.handshake, timeout)
		return nil
	}
}

// New creates a closed transport for a ws:// or wss:// URL.
func New(rawURL string, opts ...Option) (*Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidOption, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("%w: unsupported URL scheme %q (use ws:// or wss://)", errInvalidOption, u.Scheme)
	}

	t := &Transport{
		url:         u,
		readTimeout: DefaultReadTimeout,
		handshake:   DefaultHandshakeTimeout,
		dialTimeout: DefaultDialTimeout,
	}
	if u.User != nil {
		t.username = u.User.Username()
		t.password, _ = u.User.Password()
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Name returns the URL with any password redacted.
func (t *Transport) Name() string {
	return t.url.Redacted()
}

// Open dials the bridge and starts receiving messages.
func (t *Transport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return xbee.ErrAlreadyOpen
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: t.handshake,
	}
	if t.url.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: t.skipTLSVerify, //nolint:gosec // opt-in for bridges with self-signed certificates
		}
	}

	headers := http.Header{}
	if t.username != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(t.username + ":" + t.password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.dialTimeout)
	defer cancel()

	target := *t.url
	target.User = nil
	conn, resp, err := dialer.DialContext(ctx, target.String(), headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("WebSocket connection to %s failed (HTTP %d): %w", t.Name(), resp.StatusCode, err)
		}
		return fmt.Errorf("WebSocket connection to %s failed: %w", t.Name(), err)
	}

	t.conn = conn
	t.inbound = make(chan []byte, inboundQueue)
	t.done = make(chan struct{})
	t.readErr = nil
	t.pending = nil

	t.wg.Add(1)
	go t.pump(conn, t.inbound, t.done)

	xbee.Debugf("WebSocket %s connected", t.Name())
	return nil
}

// pump moves binary messages from conn to inbound until the connection
// fails or done is closed.
func (t *Transport) pump(conn *websocket.Conn, inbound chan<- []byte, done <-chan struct{}) {
	defer t.wg.Done()
	defer close(inbound)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			t.readErr = err
			t.mu.Unlock()
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case inbound <- data:
		case <-done:
			return
		}
	}
}

// Close closes the connection. Closing a closed transport is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	done := t.done
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	close(done)
	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	t.writeMu.Unlock()
	err := conn.Close()
	t.wg.Wait()

	if err != nil {
		return fmt.Errorf("WebSocket close failed: %w", err)
	}
	return nil
}

// IsOpen returns true while connected
func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Read returns bytes from the current message, waiting up to the read
// timeout for the next one.
func (t *Transport) Read(p []byte) (int, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	if len(t.pending) > 0 {
		n := copy(p, t.pending)
		t.pending = t.pending[n:]
		return n, nil
	}

	t.mu.Lock()
	inbound, done := t.inbound, t.done
	open := t.conn != nil
	t.mu.Unlock()
	if !open {
		return 0, xbee.ErrTransportClosed
	}

	timer := time.NewTimer(t.readTimeout)
	defer timer.Stop()

	select {
	case data, ok := <-inbound:
		if !ok {
			return 0, t.closedError()
		}
		n := copy(p, data)
		t.pending = data[n:]
		return n, nil
	case <-timer.C:
		return 0, nil
	case <-done:
		return 0, xbee.ErrTransportClosed
	}
}

func (t *Transport) closedError() error {
	t.mu.Lock()
	cause := t.readErr
	t.mu.Unlock()
	if cause == nil {
		cause = xbee.ErrTransportClosed
	}
	return xbee.NewTransportError("read", t.Name(),
		fmt.Errorf("%w: %w", xbee.ErrTransportRead, cause), xbee.ErrorTypePermanent)
}

// Write sends p as one binary message.
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return 0, xbee.ErrTransportClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, xbee.NewTransportWriteError("write", t.Name(), err)
	}
	return len(p), nil
}

var (
	_ xbee.Transport = (*Transport)(nil)
	_ xbee.Namer     = (*Transport)(nil)
)
