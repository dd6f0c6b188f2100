package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/estepeen/tradooor-ledger/internal/domain"
)

// WSSourceConfig configures WebSocket feed behavior.
type WSSourceConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// BufferSize is the envelope channel capacity.
	BufferSize int
}

// DefaultWSSourceConfig returns default WebSocket feed configuration.
func DefaultWSSourceConfig() WSSourceConfig {
	return WSSourceConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		BufferSize:        1024,
	}
}

// WSSourceOptions contains configuration for creating a WSSource.
type WSSourceOptions struct {
	Endpoint string
	Wallets  []string        // initial subscription set
	Config   *WSSourceConfig // nil uses defaults
	Logger   *log.Logger
}

// WSSource streams transaction envelopes for subscribed wallets over a
// WebSocket feed. It reconnects with capped exponential backoff and
// resubscribes the full wallet set after every reconnect.
type WSSource struct {
	endpoint string
	config   WSSourceConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// wallets is the cumulative subscription set, replayed on reconnect
	wallets   []string
	walletsMu sync.RWMutex

	ch   chan Envelope
	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
	logger       *log.Logger
}

// NewWSSource connects to the feed and subscribes the initial wallet set.
func NewWSSource(ctx context.Context, opts WSSourceOptions) (*WSSource, error) {
	cfg := DefaultWSSourceConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultWSSourceConfig().BufferSize
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &WSSource{
		endpoint: opts.Endpoint,
		config:   cfg,
		wallets:  append([]string(nil), opts.Wallets...),
		ch:       make(chan Envelope, cfg.BufferSize),
		done:     make(chan struct{}),
		logger:   logger,
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	if err := s.subscribeCurrent(); err != nil {
		s.conn.Close()
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// connect establishes the WebSocket connection.
func (s *WSSource) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	return nil
}

type wsSubscribeRequest struct {
	Type    string   `json:"type"`
	Wallets []string `json:"wallets"`
}

// Subscribe adds wallets to the feed subscription. The set is cumulative
// and replayed after reconnects.
func (s *WSSource) Subscribe(addrs ...string) error {
	if s.closed.Load() {
		return fmt.Errorf("source closed")
	}
	if len(addrs) == 0 {
		return nil
	}

	s.walletsMu.Lock()
	s.wallets = append(s.wallets, addrs...)
	s.walletsMu.Unlock()

	return s.writeSubscribe(addrs)
}

// subscribeCurrent sends the full wallet set, used on connect and after
// every reconnect.
func (s *WSSource) subscribeCurrent() error {
	s.walletsMu.RLock()
	wallets := append([]string(nil), s.wallets...)
	s.walletsMu.RUnlock()

	if len(wallets) == 0 {
		return nil
	}
	return s.writeSubscribe(wallets)
}

func (s *WSSource) writeSubscribe(wallets []string) error {
	req := wsSubscribeRequest{Type: "subscribe", Wallets: wallets}

	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// readLoop reads feed messages and forwards envelopes.
func (s *WSSource) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			// A failed reconnect leaves conn nil; keep retrying with
			// the same backoff until one sticks.
			if !s.reconnecting.Swap(true) {
				go s.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}

			if !s.reconnecting.Swap(true) {
				go s.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay

		s.handleMessage(message)
	}
}

type wsInbound struct {
	Type          string                 `json:"type,omitempty"`
	WalletAddress string                 `json:"walletAddress,omitempty"`
	Transaction   *domain.RawTransaction `json:"transaction,omitempty"`
}

// handleMessage forwards one feed message. Control frames (anything with a
// type field) are ignored; malformed payloads are dropped with a log line.
func (s *WSSource) handleMessage(message []byte) {
	var msg wsInbound
	if err := json.Unmarshal(message, &msg); err != nil {
		s.logger.Printf("Dropping malformed feed message: %v", err)
		return
	}
	if msg.Type != "" {
		return
	}
	if msg.WalletAddress == "" || msg.Transaction == nil {
		s.logger.Printf("Dropping incomplete feed message")
		return
	}

	// Block until the consumer drains; never drop a decoded envelope.
	select {
	case s.ch <- Envelope{WalletAddress: msg.WalletAddress, Transaction: msg.Transaction}:
	case <-s.done:
	}
}

// reconnect attempts to reconnect and resubscribe.
func (s *WSSource) reconnect(delay time.Duration) {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}

	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	if s.closed.Load() {
		s.connMu.Lock()
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.connMu.Unlock()
		return
	}

	s.logger.Printf("Reconnected to feed %s", s.endpoint)

	if err := s.subscribeCurrent(); err != nil {
		s.logger.Printf("Resubscribe failed: %v", err)
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (s *WSSource) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			s.connMu.Unlock()
		}
	}
}

// Envelopes returns the delivery channel.
func (s *WSSource) Envelopes() <-chan Envelope {
	return s.ch
}

// Close shuts the feed down. Idempotent.
func (s *WSSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.ch)
	return nil
}

var _ Source = (*WSSource)(nil)
