package ioruntime

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Acceptor owns one listening socket and feeds accepted connections into a
// Pool, throttled to approximate a configured connection_queue_limit (the
// real backlog is the kernel's listen(2) queue; the control callback in
// reuseport_linux.go only sets SO_REUSEPORT on the listener).
type Acceptor struct {
	ln      net.Listener
	pool    *Pool
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// ListenAndAccept opens addr and builds an Acceptor bound to pool. rps/burst
// of 0 disable throttling (an unlimited limiter).
func ListenAndAccept(addr string, pool *Pool, rps float64, burst int, log *zap.SugaredLogger) (*Acceptor, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	lc := net.ListenConfig{Control: reusePortControl}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	return &Acceptor{ln: ln, pool: pool, limiter: limiter, log: log}, nil
}

// Addr reports the bound local address.
func (a *Acceptor) Addr() net.Addr { return a.ln.Addr() }

// Close stops accepting new connections; in-flight work already submitted
// to the pool is unaffected.
func (a *Acceptor) Close() error { return a.ln.Close() }

// Run accepts connections until ctx is cancelled or the listener closes,
// submitting each to the pool. A per-Accept rate limit stands in for
// connection_queue_limit backpressure.
func (a *Acceptor) Run(ctx context.Context) error {
	for {
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		conn, err := a.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			a.log.Warnw("accept error", "err", err)
			continue
		}

		a.pool.Submit(conn)
	}
}
