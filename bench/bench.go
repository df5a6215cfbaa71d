// Package bench drives a running relay with synthetic producers and
// consumers and reports delivery and ordering.
//
// Each session gets one producer on /create and a fixed number of consumers
// on /join. The producer first sends probe frames until every consumer has
// seen one, so no consumer misses the start of the run, then sends numbered
// payloads. Consumers check that the numbers arrive in order.
package bench

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/session-relay/relay/session"
	relayws "github.com/wricardo/session-relay/transport/websocket"
)

const (
	probePrefix = "probe:"
	dataPrefix  = "msg:"

	probeInterval = 20 * time.Millisecond
	joinAttempts  = 50
	joinBackoff   = 20 * time.Millisecond
)

var (
	// ErrInvalidOptions is returned when Run is given unusable options
	ErrInvalidOptions = errors.New("invalid bench options")
	// ErrNotReady is returned when consumers fail to join before ReadyTimeout
	ErrNotReady = errors.New("consumers did not join in time")
)

// Options configures a run
type Options struct {
	// URL is the relay's base WebSocket URL, e.g. ws://127.0.0.1:3000
	URL                 string
	Sessions            int
	ConsumersPerSession int
	Messages            int
	// Interval is the pause between payloads; zero sends as fast as possible
	Interval       time.Duration
	Prefix         string
	ReadyTimeout   time.Duration
	ReceiveTimeout time.Duration
	Logger         zerolog.Logger
}

// DefaultOptions returns options for a small run against a local relay
func DefaultOptions() Options {
	return Options{
		URL:                 "ws://127.0.0.1:3000",
		Sessions:            10,
		ConsumersPerSession: 5,
		Messages:            100,
		Prefix:              "bench-" + uuid.NewString()[:8],
		ReadyTimeout:        5 * time.Second,
		ReceiveTimeout:      10 * time.Second,
		Logger:              zerolog.Nop(),
	}
}

// Report summarizes a run
type Report struct {
	Sessions   int           `json:"sessions"`
	Consumers  int           `json:"consumers"`
	Sent       int64         `json:"sent"`
	Expected   int64         `json:"expected"`
	Received   int64         `json:"received"`
	OutOfOrder int64         `json:"out_of_order"`
	Duration   time.Duration `json:"duration"`
}

// Lost is the number of expected deliveries that never arrived
func (r Report) Lost() int64 {
	return r.Expected - r.Received
}

// Rate is received payloads per second
func (r Report) Rate() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Received) / r.Duration.Seconds()
}

type counters struct {
	sent       atomic.Int64
	received   atomic.Int64
	outOfOrder atomic.Int64
}

// Run executes the benchmark and blocks until every session finishes or one
// of them fails. The report is filled in either way.
func Run(ctx context.Context, opts Options) (Report, error) {
	base, err := opts.validate()
	if err != nil {
		return Report{}, err
	}

	var c counters
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.Sessions; i++ {
		id := fmt.Sprintf("%s-%d", opts.Prefix, i)
		g.Go(func() error {
			return runSession(gctx, base, id, opts, &c)
		})
	}
	err = g.Wait()

	report := Report{
		Sessions:   opts.Sessions,
		Consumers:  opts.Sessions * opts.ConsumersPerSession,
		Sent:       c.sent.Load(),
		Received:   c.received.Load(),
		OutOfOrder: c.outOfOrder.Load(),
		Duration:   time.Since(start),
	}
	report.Expected = report.Sent * int64(opts.ConsumersPerSession)

	opts.Logger.Info().
		Int("sessions", report.Sessions).
		Int("consumers", report.Consumers).
		Int64("sent", report.Sent).
		Int64("received", report.Received).
		Int64("out_of_order", report.OutOfOrder).
		Dur("duration", report.Duration).
		Msg("Bench finished")

	return report, err
}

func (o Options) validate() (*url.URL, error) {
	if o.Sessions <= 0 {
		return nil, fmt.Errorf("%w: sessions must be positive", ErrInvalidOptions)
	}
	if o.ConsumersPerSession < 0 || o.Messages < 0 {
		return nil, fmt.Errorf("%w: consumers and messages must not be negative", ErrInvalidOptions)
	}
	if o.ReadyTimeout <= 0 || o.ReceiveTimeout <= 0 {
		return nil, fmt.Errorf("%w: timeouts must be positive", ErrInvalidOptions)
	}
	base, err := url.Parse(o.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if base.Scheme != "ws" && base.Scheme != "wss" {
		return nil, fmt.Errorf("%w: url scheme must be ws or wss", ErrInvalidOptions)
	}
	return base, nil
}

func runSession(ctx context.Context, base *url.URL, id string, opts Options, c *counters) error {
	producer, err := dial(ctx, base, session.CreatePath, id)
	if err != nil {
		return fmt.Errorf("producer %s: %w", id, err)
	}
	defer producer.Close()

	ready := make(chan struct{}, opts.ConsumersPerSession)

	g, gctx := errgroup.WithContext(ctx)
	for j := 0; j < opts.ConsumersPerSession; j++ {
		g.Go(func() error {
			return consume(gctx, base, id, opts, ready, c)
		})
	}
	g.Go(func() error {
		return produce(gctx, producer, opts, ready, c)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	opts.Logger.Debug().Str("session_id", id).Msg("Session finished")
	return nil
}

func produce(ctx context.Context, conn *websocket.Conn, opts Options, ready <-chan struct{}, c *counters) error {
	// Nothing is expected back; reading keeps control frames flowing
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	probe := time.NewTicker(probeInterval)
	defer probe.Stop()
	deadline := time.NewTimer(opts.ReadyTimeout)
	defer deadline.Stop()

	for joined := 0; joined < opts.ConsumersPerSession; {
		select {
		case <-ready:
			joined++
		case t := <-probe.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(probePrefix+t.Format(time.RFC3339Nano))); err != nil {
				return fmt.Errorf("probe: %w", err)
			}
		case <-deadline.C:
			return fmt.Errorf("%w: %d of %d joined", ErrNotReady, joined, opts.ConsumersPerSession)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for i := 0; i < opts.Messages; i++ {
		if opts.Interval > 0 && i > 0 {
			select {
			case <-time.After(opts.Interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(dataPrefix+strconv.Itoa(i))); err != nil {
			return fmt.Errorf("send %d: %w", i, err)
		}
		c.sent.Add(1)
	}
	return nil
}

// consume joins the session, retrying while the producer's session is not
// registered yet, and reads until every payload has arrived.
func consume(ctx context.Context, base *url.URL, id string, opts Options, ready chan<- struct{}, c *counters) error {
	for attempt := 1; ; attempt++ {
		conn, err := dial(ctx, base, session.JoinPath, id)
		if err != nil {
			return fmt.Errorf("consumer %s: %w", id, err)
		}

		err = receive(ctx, conn, opts, ready, c)
		conn.Close()

		if err == nil {
			return nil
		}
		if !websocket.IsCloseError(err, relayws.CloseSessionNotFound) || attempt >= joinAttempts {
			return fmt.Errorf("consumer %s: %w", id, err)
		}

		select {
		case <-time.After(joinBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func receive(ctx context.Context, conn *websocket.Conn, opts Options, ready chan<- struct{}, c *counters) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	announced := false
	next := 0
	for got := 0; got < opts.Messages || !announced; {
		conn.SetReadDeadline(time.Now().Add(opts.ReceiveTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		msg := string(data)
		if strings.HasPrefix(msg, probePrefix) {
			if !announced {
				announced = true
				ready <- struct{}{}
			}
			continue
		}

		seq, err := strconv.Atoi(strings.TrimPrefix(msg, dataPrefix))
		if err != nil {
			continue
		}
		if seq != next {
			c.outOfOrder.Add(1)
		}
		next = seq + 1
		got++
		c.received.Add(1)
	}
	return nil
}

func dial(ctx context.Context, base *url.URL, path, id string) (*websocket.Conn, error) {
	u := *base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = url.Values{session.SessionIDParam: {id}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return conn, nil
}
