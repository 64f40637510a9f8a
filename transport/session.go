package transport

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net"
	"time"

	"github.com/dragit/dragit-go/protocol"
)

// Dial connects to address, upgrades the connection (TCP_NODELAY, Noise XX,
// yamux), and returns the multiplexed client session (§4.1).
func Dial(ctx context.Context, address string, identity ed25519.PrivateKey, identityPub ed25519.PublicKey) (*Muxer, error) {
	dialer := net.Dialer{Timeout: protocol.HandshakeTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", address, err)
	}

	if tcp, ok := raw.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	_ = raw.SetDeadline(time.Now().Add(protocol.HandshakeTimeout))

	session, err := ClientHandshake(raw, identity, identityPub)
	if err != nil {
		raw.Close()
		return nil, err
	}
	_ = raw.SetDeadline(time.Time{})

	return newClientMuxer(session)
}

// Listener wraps a net.Listener, upgrading every accepted connection the
// same way Dial does, on the listener side.
type Listener struct {
	ln          net.Listener
	identity    ed25519.PrivateKey
	identityPub ed25519.PublicKey
}

// Listen opens a TCP listener on "0.0.0.0:<port>" per §4.1.
func Listen(port int, identity ed25519.PrivateKey, identityPub ed25519.PublicKey) (*Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, identity: identity, identityPub: identityPub}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Accept blocks for the next incoming connection and upgrades it. Callers
// typically loop calling Accept from a dedicated goroutine.
func (l *Listener) Accept() (*Muxer, error) {
	raw, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}

	if tcp, ok := raw.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	_ = raw.SetDeadline(time.Now().Add(protocol.HandshakeTimeout))

	session, err := ServerHandshake(raw, l.identity, l.identityPub)
	if err != nil {
		raw.Close()
		return nil, err
	}
	_ = raw.SetDeadline(time.Time{})

	return newServerMuxer(session)
}
