// Package node runs the event loop shared by every workload binary. Two
// producers feed one consumer: a reader goroutine decoding lines from the
// input stream, and (for gossiping workloads) a ticker goroutine requesting
// anti-entropy rounds. The consumer is the only goroutine that touches
// workload state or the output stream, so handlers need no locking.
package node

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rafald1/distributed-system/internal/telemetry"
	"github.com/rafald1/distributed-system/pkg/protocol"
)

// Input lines are small JSON objects; this is headroom, not an expectation.
const maxLineBytes = 1 << 20

// Handler consumes one inbound envelope and returns the replies to write,
// mutating workload state as a side effect. Called only from the event loop
// goroutine.
type Handler interface {
	Handle(env protocol.Envelope) ([]protocol.Envelope, error)
}

// Gossiper is implemented by handlers that emit periodic anti-entropy
// traffic. Gossip is likewise called only from the event loop goroutine.
type Gossiper interface {
	Gossip() []protocol.Envelope
}

type Config struct {
	Codec   *protocol.Codec
	Handler Handler
	// GossipInterval is the tick period for handlers implementing Gossiper.
	// The ticker starts on the first init message and stops with the loop.
	GossipInterval time.Duration
	Logger         *zap.Logger
}

type Runner struct {
	codec    *protocol.Codec
	handler  Handler
	interval time.Duration
	log      *zap.Logger
}

func NewRunner(cfg Config) *Runner {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		codec:    cfg.Codec,
		handler:  cfg.Handler,
		interval: cfg.GossipInterval,
		log:      log,
	}
}

// event is one unit of consumer work: an inbound envelope, end of input, or
// a producer failure that must take the loop down. The channel is never
// closed so the ticker's failure path can always send safely.
type event struct {
	env *protocol.Envelope
	eof bool
	err error
}

// Run processes events until the input stream ends or a fatal error occurs.
// On return the gossip ticker has been stopped and joined.
func (r *Runner) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan event)
	ticks := make(chan struct{})

	// The reader owns the input stream. It terminates on EOF (delivering an
	// eof event) or when the loop cancels the context. It is not joined: a
	// reader blocked inside in.Read cannot be interrupted, and on the fatal
	// paths the process is about to exit anyway.
	go func() {
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for sc.Scan() {
			env, err := r.codec.DecodeLine(sc.Bytes())
			if err != nil {
				r.send(ctx, events, event{err: err})
				return
			}
			if !r.send(ctx, events, event{env: &env}) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			r.send(ctx, events, event{err: fmt.Errorf("read input: %w", err)})
			return
		}
		r.send(ctx, events, event{eof: true})
	}()

	var tickerWG sync.WaitGroup
	gossiper, canGossip := r.handler.(Gossiper)
	tickerStarted := false
	startTicker := func() {
		tickerWG.Add(1)
		go func() {
			defer tickerWG.Done()
			defer func() {
				// A dead timer means silent non-convergence; surface it.
				if p := recover(); p != nil {
					r.send(ctx, events, event{err: fmt.Errorf("gossip timer panicked: %v", p)})
				}
			}()
			t := time.NewTicker(r.interval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					select {
					case ticks <- struct{}{}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	w := bufio.NewWriter(out)
	err := func() error {
		for {
			select {
			case ev := <-events:
				if ev.eof {
					r.log.Info("input stream closed, shutting down")
					return nil
				}
				if ev.err != nil {
					return ev.err
				}
				kind := ev.env.Body.Kind()
				telemetry.MessagesTotal.WithLabelValues(string(kind)).Inc()
				replies, err := r.handler.Handle(*ev.env)
				if err != nil {
					return err
				}
				if _, isInit := ev.env.Body.(*protocol.Init); isInit && canGossip && r.interval > 0 && !tickerStarted {
					tickerStarted = true
					startTicker()
					r.log.Info("gossip timer started", zap.Duration("interval", r.interval))
				}
				r.log.Debug("handled message",
					zap.String("kind", string(kind)),
					zap.String("src", ev.env.Src),
					zap.Int("replies", len(replies)))
				if err := r.write(w, replies); err != nil {
					return err
				}
			case <-ticks:
				telemetry.GossipRounds.Inc()
				msgs := gossiper.Gossip()
				telemetry.GossipMessages.Add(float64(len(msgs)))
				if err := r.write(w, msgs); err != nil {
					return err
				}
			}
		}
	}()

	cancel()
	tickerWG.Wait()
	return err
}

// send delivers ev unless the loop has already shut down.
func (r *Runner) send(ctx context.Context, events chan<- event, ev event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// write encodes and writes each envelope as its own line, flushing once per
// batch so a reply is never interleaved with another.
func (r *Runner) write(w *bufio.Writer, envs []protocol.Envelope) error {
	if len(envs) == 0 {
		return nil
	}
	for _, env := range envs {
		line, err := r.codec.EncodeLine(env)
		if err != nil {
			return err
		}
		if _, err := w.Write(line); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	telemetry.RepliesTotal.Add(float64(len(envs)))
	return nil
}
