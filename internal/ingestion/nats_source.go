package ingestion

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Default NATS source configuration values
const (
	DefaultNATSSubject    = "ledger.swaps.>"
	DefaultNATSQueueGroup = "ledger-ingest"
	DefaultNATSBuffer     = 1024
)

// NATSSourceOptions contains configuration for creating a NATSSource.
type NATSSourceOptions struct {
	URL        string
	Subject    string // wildcard subject, one token per wallet
	QueueGroup string // instances in the same group split the stream
	BufferSize int
	Logger     *log.Logger
}

// NATSSource consumes transaction envelopes from a NATS subject. Queue
// group subscription lets multiple ledger instances share one stream
// without double-ingesting. Core NATS delivery is at-most-once; anything
// dropped here is recovered by the reconciliation sweep.
type NATSSource struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	msgs   chan *nats.Msg
	ch     chan Envelope
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	logger *log.Logger
}

// NewNATSSource connects to NATS and subscribes to the configured subject.
func NewNATSSource(opts NATSSourceOptions) (*NATSSource, error) {
	subject := opts.Subject
	if subject == "" {
		subject = DefaultNATSSubject
	}
	queue := opts.QueueGroup
	if queue == "" {
		queue = DefaultNATSQueueGroup
	}
	buffer := opts.BufferSize
	if buffer <= 0 {
		buffer = DefaultNATSBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	conn, err := nats.Connect(opts.URL,
		nats.Name("tradooor-ledger"),
		nats.Timeout(5*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	msgs := make(chan *nats.Msg, buffer)
	sub, err := conn.ChanQueueSubscribe(subject, queue, msgs)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	s := &NATSSource{
		conn:   conn,
		sub:    sub,
		msgs:   msgs,
		ch:     make(chan Envelope, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	s.wg.Add(1)
	go s.forward()
	return s, nil
}

// forward decodes raw messages into envelopes. It is the only sender on
// the envelope channel and closes it on exit.
func (s *NATSSource) forward() {
	defer s.wg.Done()
	defer close(s.ch)

	for {
		select {
		case <-s.done:
			return
		case m := <-s.msgs:
			var env Envelope
			if err := json.Unmarshal(m.Data, &env); err != nil {
				s.logger.Printf("Dropping malformed envelope on %s: %v", m.Subject, err)
				continue
			}
			if env.WalletAddress == "" || env.Transaction == nil {
				s.logger.Printf("Dropping incomplete envelope on %s", m.Subject)
				continue
			}
			select {
			case s.ch <- env:
			case <-s.done:
				return
			}
		}
	}
}

// Envelopes returns the delivery channel.
func (s *NATSSource) Envelopes() <-chan Envelope {
	return s.ch
}

// Close unsubscribes and drops the connection. Idempotent.
func (s *NATSSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.sub.Unsubscribe()
		s.conn.Close()
		s.wg.Wait()
	})
	return err
}

var _ Source = (*NATSSource)(nil)
