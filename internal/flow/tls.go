package flow

import (
	"bufio"
	"context"
	"crypto/tls"

	"github.com/aetherproxy/aetherproxy/internal/certstore"
	"github.com/aetherproxy/aetherproxy/internal/tlshello"
	"github.com/aetherproxy/aetherproxy/internal/transport"
)

// stateMaybeTLS reads the ClientHello peeked by stateAccepted (or by the
// post-CONNECT re-peek in handleConnect) and decides whether this flow
// tunnels the TLS bytes opaquely or splices them with a minted certificate
// (spec §4.E "MaybeTls" node and its CONNECT/SNI decision rules).
func (f *Flow) stateMaybeTLS(ctx context.Context) (state, error) {
	hello, err := tlshello.Read(f.br)
	if err != nil {
		f.fireTLSError(err)
		return stateClosing, err
	}

	if sni, ok := hello.SNI(); ok {
		// SNI supersedes the CONNECT Host for target selection; impersonation
		// then uses the SNI value as the minted leaf's CN (spec §4.E).
		f.Pair.TargetHost = sni
	}
	if f.Pair.TargetPort == "" {
		f.Pair.TargetPort = "443"
	}

	if !f.decideTLSSplice() {
		if !f.Pair.Connected() {
			// By the time MaybeTls runs, any CONNECT 200 (or raw TLS accept)
			// has already committed the client to this stream: a failed dial
			// here closes the connection rather than synthesizing an HTTP
			// error response, since no HTTP exchange exists on this path.
			if err := f.dialServer(ctx, f.Pair.TargetHost, f.Pair.TargetPort, false, transport.ClientTLSArgs{}); err != nil {
				return stateClosing, err
			}
		}
		return stateConnectTunnel, nil
	}

	return stateHandshakeWithClient, nil
}

// decideTLSSplice applies spec §4.E's CONNECT decision rule to whichever
// path reached MaybeTls (a CONNECT tunnel or a directly accepted TLS
// stream): ssl_passthrough_strict always tunnels; ssl_passthrough tunnels
// unless an interceptor set flow.intercept_tls; otherwise the default is to
// splice.
func (f *Flow) decideTLSSplice() bool {
	if f.Options.SSLPassthroughStrict {
		return false
	}
	if f.Options.SSLPassthrough {
		return f.interceptTLS
	}
	return true
}

// stateHandshakeWithClient mints (or reuses) a leaf certificate for the
// chosen target host and performs the server-side TLS handshake with the
// client, presenting it. On success the client transport is swapped for the
// TLS-wrapped one and decrypted HTTP parsing resumes in stateHTTPProxy.
func (f *Flow) stateHandshakeWithClient(ctx context.Context) (state, error) {
	host := f.Pair.TargetHost

	if f.Options.SSLSupplyServerChain && !f.Pair.Connected() {
		dialCtx, cancel := context.WithTimeout(ctx, f.Options.timeout())
		tlsArgs := f.Options.UpstreamTLS
		tlsArgs.ServerName = host
		err := f.dialServer(dialCtx, host, f.Pair.TargetPort, true, tlsArgs)
		cancel()
		if err != nil {
			// Chain harvesting is a best-effort enrichment, not a precondition
			// for splicing: fall back to a self-contained minted chain.
			f.Log.Warnw("upstream chain harvest failed, splicing without it", "host", host, "err", err)
		}
	}

	iface := certstore.Interface{CommonName: host, SANs: []string{host}}
	f.fireCertSearch(iface)
	if _, hit := f.Certs.Lookup(iface); !hit {
		f.fireCertCreate(iface)
	}
	cert, err := f.Certs.GetOrMint(iface)
	if err != nil {
		f.fireTLSError(err)
		return stateClosing, err
	}

	nc := transport.UnderlyingConn(f.Pair.Client)
	peeked := transport.NewPeekedConn(nc, f.br)

	clientTLS, err := transport.ServerTLS(ctx, peeked, transport.ServerTLSArgs{
		Certificates: []tls.Certificate{f.leafCertificate(cert)},
	})
	if err != nil {
		f.fireTLSError(err)
		return stateClosing, err
	}

	f.Pair.Client = clientTLS
	f.br = bufio.NewReader(transport.Reader(ctx, f.Pair.Client))
	f.fireTLSEstablished()
	return stateHTTPProxy, nil
}

// leafCertificate builds the chain presented to the client: the minted leaf
// followed by whichever non-leaf certificates the upstream handshake
// harvested (spec §4.E "certs in that chain that are not the leaf are
// passed through... alongside a minted leaf"), falling back to the store's
// own CA certificate when no chain was harvested.
func (f *Flow) leafCertificate(cert certstore.MemoryCertificate) tls.Certificate {
	if f.Pair.Connected() {
		if chain := transport.PeerChain(f.Pair.Server); len(chain) > 1 {
			certChain := make([][]byte, 0, len(chain))
			certChain = append(certChain, cert.CertDER)
			for _, c := range chain[1:] {
				certChain = append(certChain, c.Raw)
			}
			return tls.Certificate{Certificate: certChain, PrivateKey: cert.Key, Leaf: cert.Cert}
		}
	}
	return cert.TLSCertificate(f.Certs.CACertificateDER())
}
