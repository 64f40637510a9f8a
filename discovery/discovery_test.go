package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/dragit/dragit-go/protocol"
)

type pipeStream struct {
	net.Conn
}

func (p pipeStream) SetDeadline(t time.Time) error { return p.Conn.SetDeadline(t) }

func TestExchange(t *testing.T) {
	dialerConn, listenerConn := net.Pipe()
	defer dialerConn.Close()
	defer listenerConn.Close()

	dialerHost := protocol.Host{Hostname: "dialer-box", OS: protocol.OSLinux}
	listenerHost := protocol.Host{Hostname: "listener-box", OS: protocol.OSMacos}

	type result struct {
		host protocol.Host
		err  error
	}

	dialerResult := make(chan result, 1)
	listenerResult := make(chan result, 1)

	go func() {
		h, err := DialerExchange(pipeStream{dialerConn}, dialerHost)
		dialerResult <- result{h, err}
	}()
	go func() {
		h, err := ListenerExchange(pipeStream{listenerConn}, listenerHost)
		listenerResult <- result{h, err}
	}()

	dr := <-dialerResult
	lr := <-listenerResult

	if dr.err != nil {
		t.Fatalf("dialer exchange: %v", dr.err)
	}
	if lr.err != nil {
		t.Fatalf("listener exchange: %v", lr.err)
	}
	if dr.host != listenerHost {
		t.Fatalf("dialer learned %+v, want %+v", dr.host, listenerHost)
	}
	if lr.host != dialerHost {
		t.Fatalf("listener learned %+v, want %+v", lr.host, dialerHost)
	}
}
