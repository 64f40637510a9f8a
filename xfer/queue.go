package xfer

import (
	"sync"

	"github.com/dragit/dragit-go/core"
)

// OutboundQueue holds files queued for send, one stack per destination
// peer. When multiple files are queued for the same peer, they drain in
// LIFO order (last push consumed first): this matches the original
// source's stack discipline rather than promoting it to FIFO (§4.3
// "Ordering & tie-breaks", recovered from
// original_source/src/p2p/transfer/jobs.rs). A reimplementation is
// explicitly permitted to use FIFO instead; this one keeps the faithful
// LIFO choice and documents it here rather than silently changing it.
type OutboundQueue struct {
	mu     sync.Mutex
	byPeer map[core.PeerID][]FileToSend
}

// NewOutboundQueue creates an empty queue.
func NewOutboundQueue() *OutboundQueue {
	return &OutboundQueue{byPeer: make(map[core.PeerID][]FileToSend)}
}

// Push queues a file for its target peer.
func (q *OutboundQueue) Push(f FileToSend) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byPeer[f.PeerID] = append(q.byPeer[f.PeerID], f)
}

// Pop removes and returns the most recently queued file for peer, if any.
func (q *OutboundQueue) Pop(peer core.PeerID) (FileToSend, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.byPeer[peer]
	if len(items) == 0 {
		return FileToSend{}, false
	}

	last := items[len(items)-1]
	items = items[:len(items)-1]
	if len(items) == 0 {
		delete(q.byPeer, peer)
	} else {
		q.byPeer[peer] = items
	}
	return last, true
}

// Peers returns the set of peers with at least one queued file, used by
// the swarm behaviour to decide which peers to dial (§4.8).
func (q *OutboundQueue) Peers() []core.PeerID {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]core.PeerID, 0, len(q.byPeer))
	for peer := range q.byPeer {
		out = append(out, peer)
	}
	return out
}
