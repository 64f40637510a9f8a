package core

import (
	"sync"

	"github.com/dragit/dragit-go/protocol"
)

// Peer is a remote peer's identity, network address, and (once the
// discovery exchange completes) hostname/OS tag (§3).
type Peer struct {
	ID       PeerID
	Address  string // host:port, last-known
	Hostname string
	OS       protocol.OS

	hasIdentity bool // true once the discovery exchange has filled Hostname/OS
}

// PeerTable is the set of currently-known peers. It is owned exclusively
// by the swarm task (§9 "Cross-task state"): every mutation here also
// emits a PeersUpdated snapshot through the given EventSender, via
// non-blocking try-send (§4.7).
type PeerTable struct {
	mu      sync.RWMutex
	peers   map[PeerID]*Peer
	events  EventSender
}

// NewPeerTable creates an empty peer table that publishes mutations to
// events.
func NewPeerTable(events EventSender) *PeerTable {
	return &PeerTable{
		peers:  make(map[PeerID]*Peer),
		events: events,
	}
}

// Discovered inserts a peer first seen via multicast presence (§4.7). If
// the peer is already known, its address is refreshed instead.
func (t *PeerTable) Discovered(id PeerID, address string) {
	t.mu.Lock()
	peer, ok := t.peers[id]
	if !ok {
		peer = &Peer{ID: id}
		t.peers[id] = peer
	}
	peer.Address = address
	t.mu.Unlock()

	t.publish()
}

// Expired removes a peer on multicast expiry or disconnect (§4.7).
func (t *PeerTable) Expired(id PeerID) {
	t.mu.Lock()
	_, existed := t.peers[id]
	delete(t.peers, id)
	t.mu.Unlock()

	if existed {
		t.publish()
	}
}

// ConnectionEstablished records that a connection to id is live, inserting
// the peer if it was not already known (an inbound connection can arrive
// before any multicast presence announcement is seen). An empty address
// leaves a previously known address untouched rather than clearing it.
func (t *PeerTable) ConnectionEstablished(id PeerID, address string) {
	if address == "" {
		t.mu.Lock()
		_, ok := t.peers[id]
		if !ok {
			t.peers[id] = &Peer{ID: id}
		}
		t.mu.Unlock()

		if !ok {
			t.publish()
		}
		return
	}

	t.Discovered(id, address)
}

// IdentityResolved fills in the hostname/OS learned from a completed
// discovery substream exchange (§4.2).
func (t *PeerTable) IdentityResolved(id PeerID, host protocol.Host) {
	t.mu.Lock()
	peer, ok := t.peers[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	peer.Hostname = host.Hostname
	peer.OS = host.OS
	peer.hasIdentity = true
	t.mu.Unlock()

	t.publish()
}

// Get returns a copy of the peer record, if known.
func (t *PeerTable) Get(id PeerID) (Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	peer, ok := t.peers[id]
	if !ok {
		return Peer{}, false
	}
	return *peer, true
}

// Snapshot returns a copy of every known peer, for PeersUpdated events and
// for the UI's initial peer list.
func (t *PeerTable) Snapshot() []Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Peer, 0, len(t.peers))
	for _, peer := range t.peers {
		out = append(out, *peer)
	}
	return out
}

func (t *PeerTable) publish() {
	t.events.Emit(PeersUpdated{Peers: t.Snapshot()})
}
