package ioruntime

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/aetherproxy/aetherproxy/internal/certstore"
	"github.com/aetherproxy/aetherproxy/internal/flow"
	"github.com/aetherproxy/aetherproxy/internal/intercept"
	"github.com/aetherproxy/aetherproxy/internal/transport"
)

// Runtime ties the worker pool, acceptor, flow registry, and signal-driven
// shutdown into the single object cmd/aetherproxy's root command drives: a
// listener, a signal.Notify goroutine that cancels a shared context, and an
// accept loop — generalized from one goroutine per connection into a fixed
// pool plus a registry so flows can be looked up by id afterward.
type Runtime struct {
	Pool       *Pool
	Acceptor   *Acceptor
	Registry   *Registry
	Dispatcher *intercept.Dispatcher
	Certs      *certstore.Store
	Options    flow.Options
	Log        *zap.SugaredLogger

	nextID uint64
	paused atomic.Bool
}

// New builds a Runtime listening on addr. rps/burst of 0 disables the
// acceptor's rate limit. poolSize of 0 defaults to 2*runtime.GOMAXPROCS(0).
func New(addr string, poolSize int, rps float64, burst int, dispatcher *intercept.Dispatcher, certs *certstore.Store, opts flow.Options, log *zap.SugaredLogger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	rt := &Runtime{
		Registry:   NewRegistry(),
		Dispatcher: dispatcher,
		Certs:      certs,
		Options:    opts,
		Log:        log,
	}
	rt.Pool = NewPool(poolSize, rt.handle)

	acceptor, err := ListenAndAccept(addr, rt.Pool, rps, burst, log)
	if err != nil {
		return nil, err
	}
	rt.Acceptor = acceptor
	return rt, nil
}

// handle builds a Flow around one accepted connection and drives it to
// completion, registering/unregistering it in Registry for the lifetime of
// the call.
func (rt *Runtime) handle(ctx context.Context, w Work) {
	defer w.Conn.Close()

	id := rt.nextID
	rt.nextID++

	pair := transport.NewPair(transport.NewPlain(w.Conn))
	f := flow.New(id, w.Conn.RemoteAddr().String(), pair, rt.Dispatcher, rt.Certs, rt.Options, rt.Log)

	uid := rt.Registry.Register(f)
	defer rt.Registry.Unregister(uid)

	if err := f.Run(ctx); err != nil {
		rt.Log.Debugw("flow ended", "id", id, "uuid", uid, "worker", w.Worker, "err", err)
	}
}

// Run starts the pool and acceptor, then blocks until ctx is cancelled or a
// SIGINT/SIGTERM/SIGQUIT arrives (and the signal drain isn't Paused),
// draining both before returning.
func (rt *Runtime) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt.Pool.Start(runCtx)

	acceptDone := make(chan error, 1)
	go func() { acceptDone <- rt.Acceptor.Run(runCtx) }()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigc)

	for {
		select {
		case <-runCtx.Done():
			rt.shutdown(cancel)
			<-acceptDone
			return ctx.Err()
		case sig := <-sigc:
			if rt.paused.Load() {
				rt.Log.Debugw("signal received while paused, ignoring", "signal", sig)
				continue
			}
			rt.Log.Infow("shutting down", "signal", sig)
			rt.shutdown(cancel)
			<-acceptDone
			return nil
		}
	}
}

func (rt *Runtime) shutdown(cancel context.CancelFunc) {
	cancel()
	rt.Acceptor.Close()
	rt.Pool.Wait()
}

// Pause stops signals from triggering shutdown, for an interactive shell
// attached to the running proxy (spec.md's detach hook; the REPL itself is
// out of scope, but the capability to suspend signal-driven shutdown while
// one is attached is part of the I/O runtime's contract).
func (rt *Runtime) Pause() { rt.paused.Store(true) }

// Unpause resumes normal signal-driven shutdown.
func (rt *Runtime) Unpause() { rt.paused.Store(false) }
