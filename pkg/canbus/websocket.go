// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package canbus

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsBus implements Bus over a CAN-over-WebSocket gateway. Each binary
// message carries exactly one SocketCAN can_frame (16 bytes).
type wsBus struct {
	dispatcher

	conn      *websocket.Conn
	wmu       sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

// DialWebSocket connects to a CAN gateway with optional HTTP Basic auth.
func DialWebSocket(wsURL, username, password string, skipSSLVerify bool) (Bus, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return NewWebSocket(conn), nil
}

// NewWebSocket wraps an established WebSocket connection and starts the
// reader goroutine.
func NewWebSocket(conn *websocket.Conn) Bus {
	w := &wsBus{conn: conn, closed: make(chan struct{})}
	go w.readLoop()
	return w
}

func (w *wsBus) readLoop() {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		// A gateway may batch several frames into one message.
		for len(data) >= FrameSize {
			var f Frame
			if err := f.UnmarshalBinary(data[:FrameSize]); err == nil {
				w.dispatch(f)
			}
			data = data[FrameSize:]
		}
	}
}

// Send writes one frame as a binary message.
func (w *wsBus) Send(frame Frame) error {
	buf, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	select {
	case <-w.closed:
		return ErrClosed
	default:
	}
	w.wmu.Lock()
	defer w.wmu.Unlock()
	return w.conn.WriteMessage(websocket.BinaryMessage, buf)
}

func (w *wsBus) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closed)
		w.wmu.Lock()
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.wmu.Unlock()
		err = w.conn.Close()
	})
	return err
}
