// Package swarm wires together presence, discovery, transport, and the
// transfer engine into the single background task that owns a peer's
// network behaviour (§4.8, §4.9): advertise, browse, accept and dial
// connections, run the per-connection discovery exchange, and drain the
// outbound file queue as connections become available.
package swarm

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/dragit/dragit-go/core"
	"github.com/dragit/dragit-go/discovery"
	"github.com/dragit/dragit-go/presence"
	"github.com/dragit/dragit-go/protocol"
	"github.com/dragit/dragit-go/transport"
	"github.com/dragit/dragit-go/xfer"
)

// interfaceProbeInterval is the retry period while no usable non-loopback
// network interface is present (§4.9).
const interfaceProbeInterval = 5 * time.Second

// Swarm is the single owner of every live connection and the outbound
// file queue. A Backend supplies identity, peer table, and event/command
// channels; Swarm supplies the network behaviour driving them (§9
// "Cross-task state": the backend never touches the network directly).
type Swarm struct {
	backend *core.Backend
	queue   *xfer.OutboundQueue

	mu    sync.Mutex
	conns map[core.PeerID]*transport.Muxer

	listener *transport.Listener
	presence *presence.Presence
}

// New creates a Swarm bound to backend. Call Run to start it.
func New(backend *core.Backend) *Swarm {
	return &Swarm{
		backend: backend,
		queue:   xfer.NewOutboundQueue(),
		conns:   make(map[core.PeerID]*transport.Muxer),
	}
}

// Enqueue queues a file for send. The drain loop started by Run picks it
// up on its next tick, dialing the peer first if no live connection to it
// exists (§4.8).
func (s *Swarm) Enqueue(file xfer.FileToSend) {
	s.queue.Push(file)
}

// Run blocks until ctx is cancelled, owning the listener, presence
// advertisement/browse, and the outbound drain loop. It first waits for a
// usable non-loopback network interface to exist, retrying every
// interfaceProbeInterval and emitting an Error event on each failed
// attempt (§4.9).
func (s *Swarm) Run(ctx context.Context) error {
	if err := waitForInterface(ctx, s.backend.Events); err != nil {
		return err
	}

	listener, err := transport.Listen(s.backend.Config.Port, s.backend.Identity.PrivateKey, s.backend.Identity.PublicKey)
	if err != nil {
		return fmt.Errorf("swarm: listen on port %d: %w", s.backend.Config.Port, err)
	}
	s.listener = listener
	defer listener.Close()

	s.presence = presence.New(s.onDiscovered, s.onExpired)
	if err := s.presence.Advertise(string(s.backend.Identity.ID()), s.backend.Config.Port); err != nil {
		return fmt.Errorf("swarm: advertise presence: %w", err)
	}
	defer s.presence.Shutdown()

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		s.acceptLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := s.presence.Run(ctx, string(s.backend.Identity.ID())); err != nil {
			log.Printf("swarm: presence browse stopped: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		s.drainLoop(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	return nil
}

// waitForInterface blocks until at least one non-loopback interface with
// an address exists, polling every interfaceProbeInterval.
func waitForInterface(ctx context.Context, events core.EventSender) error {
	for {
		if hasUsableInterface() {
			return nil
		}
		events.Emit(core.Error{Message: "no usable network interface, retrying"})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interfaceProbeInterval):
		}
	}
}

func hasUsableInterface() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		return true
	}
	return false
}

// onDiscovered is presence's callback for a newly seen (or refreshed) peer.
func (s *Swarm) onDiscovered(peerID, address string) {
	s.backend.Peers.Discovered(core.PeerID(peerID), address)
}

// onExpired is presence's callback for a peer not re-observed in time.
func (s *Swarm) onExpired(peerID string) {
	id := core.PeerID(peerID)
	s.mu.Lock()
	muxer, connected := s.conns[id]
	delete(s.conns, id)
	s.mu.Unlock()

	if connected {
		muxer.Close()
	}
	s.backend.Peers.Expired(id)
}

// acceptLoop accepts inbound connections until ctx is cancelled.
func (s *Swarm) acceptLoop(ctx context.Context) {
	for {
		muxer, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("swarm: accept error: %v", err)
			continue
		}
		go s.handleConnection(ctx, muxer, false)
	}
}

// drainLoop periodically checks the outbound queue first, then waits on a
// short tick so newly queued files for already-connected peers are picked
// up promptly without busy-looping (§4.8 "drain: check outbound file
// queue first, then drain internal event vector").
func (s *Swarm) drainLoop(ctx context.Context) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drainOnce(ctx)
		}
	}
}

func (s *Swarm) drainOnce(ctx context.Context) {
	for _, peer := range s.queue.Peers() {
		muxer, err := s.connectionFor(ctx, peer)
		if err != nil {
			log.Printf("swarm: dial %s: %v", peer, err)
			continue
		}

		file, ok := s.queue.Pop(peer)
		if !ok {
			continue
		}

		stream, err := muxer.OpenSubstream()
		if err != nil {
			log.Printf("swarm: open substream to %s: %v", peer, err)
			continue
		}

		go func() {
			defer stream.Close()
			if err := protocol.WriteProtocolID(stream, protocol.TransferProtocolID); err != nil {
				log.Printf("swarm: negotiate transfer substream to %s: %v", peer, err)
				return
			}
			if err := xfer.Send(stream, file, s.backend.Events); err != nil {
				log.Printf("swarm: send to %s: %v", peer, err)
			}
		}()
	}
}

// connectionFor returns the live connection to peer, dialing one if none
// exists yet.
func (s *Swarm) connectionFor(ctx context.Context, peer core.PeerID) (*transport.Muxer, error) {
	s.mu.Lock()
	muxer, ok := s.conns[peer]
	s.mu.Unlock()
	if ok && !muxer.IsClosed() {
		return muxer, nil
	}

	known, ok := s.backend.Peers.Get(peer)
	if !ok || known.Address == "" {
		return nil, fmt.Errorf("no known address for peer %s", peer)
	}

	dialed, err := transport.Dial(ctx, known.Address, s.backend.Identity.PrivateKey, s.backend.Identity.PublicKey)
	if err != nil {
		return nil, err
	}

	go s.handleConnection(ctx, dialed, true)
	return dialed, nil
}

// handleConnection registers the connection, opens the dialer's discovery
// substream (if we dialed), and loops accepting further substreams,
// routing each to discovery or transfer by its negotiated protocol id
// (§4.1, §4.2, §4.3). Discovery runs over exactly one substream per
// connection, opened by the dialer and accepted by the listener, since
// discovery.DialerExchange/ListenerExchange implement complementary
// halves of a single exchange rather than two independent ones - opening
// a discovery substream from both sides would leave each blocked reading
// the other's before either reaches its accept loop.
func (s *Swarm) handleConnection(ctx context.Context, muxer *transport.Muxer, dialed bool) {
	peer := core.PeerIDFromPublicKey(muxer.RemoteID)

	s.mu.Lock()
	s.conns[peer] = muxer
	s.mu.Unlock()
	s.backend.Peers.ConnectionEstablished(peer, "")

	defer func() {
		s.mu.Lock()
		if s.conns[peer] == muxer {
			delete(s.conns, peer)
		}
		s.mu.Unlock()
	}()

	if dialed {
		go s.openDiscovery(muxer, peer)
	}

	for {
		stream, err := muxer.AcceptSubstream()
		if err != nil {
			return
		}
		go s.handleSubstream(ctx, stream, peer)
	}
}

// openDiscovery is the dialer side of the per-connection discovery
// exchange: open a substream, negotiate the discovery protocol id, then
// run DialerExchange.
func (s *Swarm) openDiscovery(muxer *transport.Muxer, peer core.PeerID) {
	stream, err := muxer.OpenSubstream()
	if err != nil {
		log.Printf("swarm: open discovery substream to %s: %v", peer, err)
		return
	}
	defer stream.Close()

	if err := protocol.WriteProtocolID(stream, protocol.DiscoveryProtocolID); err != nil {
		log.Printf("swarm: negotiate discovery substream to %s: %v", peer, err)
		return
	}

	remote, err := discovery.DialerExchange(stream, s.backend.HostRecord())
	if err != nil {
		log.Printf("swarm: discovery with %s failed: %v", peer, err)
		return
	}
	s.backend.Peers.IdentityResolved(peer, remote)
}

// handleSubstream reads the negotiated protocol id off a freshly accepted
// substream and dispatches it to the discovery listener side or the
// transfer receiver accordingly.
func (s *Swarm) handleSubstream(ctx context.Context, stream *transport.Substream, peer core.PeerID) {
	id, err := protocol.ReadProtocolID(stream)
	if err != nil {
		log.Printf("swarm: read protocol id from %s: %v", peer, err)
		stream.Close()
		return
	}

	switch id {
	case protocol.DiscoveryProtocolID:
		defer stream.Close()
		remote, err := discovery.ListenerExchange(stream, s.backend.HostRecord())
		if err != nil {
			log.Printf("swarm: discovery with %s failed: %v", peer, err)
			return
		}
		s.backend.Peers.IdentityResolved(peer, remote)
	case protocol.TransferProtocolID:
		s.handleInboundTransfer(ctx, stream)
	default:
		stream.Close()
		log.Printf("swarm: unknown substream protocol %q from %s", id, peer)
	}
}

func (s *Swarm) handleInboundTransfer(ctx context.Context, stream *transport.Substream) {
	defer stream.Close()

	transferCtx, cancel := context.WithTimeout(ctx, protocol.TransferSubstreamTimeout)
	defer cancel()

	if err := xfer.Receive(transferCtx, stream, s.backend.Config.DownloadDir, s.backend.Events, s.backend.Commands); err != nil {
		log.Printf("swarm: receive failed: %v", err)
	}
}
