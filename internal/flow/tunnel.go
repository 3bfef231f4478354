package flow

import (
	"context"
	"io"
	"sync"

	"go.uber.org/multierr"

	"github.com/aetherproxy/aetherproxy/internal/transport"
)

// stateConnectTunnel shuttles raw bytes between client and server until
// either side closes, then transitions to Closing. Grounded on
// original_source/aether/proxy/tcp/tunnel/tunnel_service.cpp's bidirectional
// copy, generalized from its two fixed directions to this flow's own
// client/server transports and extended to join both sides' errors instead
// of discarding one.
func (f *Flow) stateConnectTunnel(ctx context.Context) (state, error) {
	f.fireTunnelStart()
	defer f.fireTunnelStop()

	tunnelCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	f.Pair.Client.SetDeadline(f.Options.tunnelTimeout())
	f.Pair.Server.SetDeadline(f.Options.tunnelTimeout())

	err := f.copyBidirectional(tunnelCtx, cancel)
	return stateClosing, err
}

// copyBidirectional pumps f.br (which may still hold bytes peeked during
// protocol detection) to the server, and the server to the client,
// concurrently. The first direction to finish cancels tunnelCancel so the
// other side's blocking read/write unblocks instead of hanging until its
// own deadline.
func (f *Flow) copyBidirectional(ctx context.Context, tunnelCancel context.CancelFunc) error {
	var wg sync.WaitGroup
	var clientToServerErr, serverToClientErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer tunnelCancel()
		_, err := io.Copy(transport.Writer(ctx, f.Pair.Server), f.br)
		clientToServerErr = ignoreEOF(err)
	}()
	go func() {
		defer wg.Done()
		defer tunnelCancel()
		_, err := io.Copy(transport.Writer(ctx, f.Pair.Client), transport.Reader(ctx, f.Pair.Server))
		serverToClientErr = ignoreEOF(err)
	}()
	wg.Wait()

	return multierr.Append(clientToServerErr, serverToClientErr)
}

func ignoreEOF(err error) error {
	if err == io.EOF {
		return nil
	}
	return err
}
