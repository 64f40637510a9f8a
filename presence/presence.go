// Package presence advertises and discovers peers over mDNS, the
// "multicast presence" boundary named in §6. Peers are learned and expired
// via periodic mDNS browse results (§4.7): a peer not re-observed within
// two browse intervals is considered gone.
package presence

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	serviceName    = "_dragit._tcp"
	serviceDomain  = "local."
	browseInterval = 10 * time.Second
	expireAfter    = 2 * browseInterval

	// instanceLabelLen bounds the mDNS instance name to well under the
	// 63-octet DNS label limit. The peer's full hex-encoded ed25519 id
	// (64 characters) goes in a TXT record instead (idTXTKey), so the
	// instance name only needs enough entropy to be unique on the LAN.
	instanceLabelLen = 16
	idTXTKey         = "id="
)

// Presence tracks the advertise+browse lifecycle for one local peer.
type Presence struct {
	server *zeroconf.Server

	mu       sync.Mutex
	lastSeen map[string]time.Time

	onDiscovered func(peerID, address string)
	onExpired    func(peerID string)
}

// New creates a Presence tracker. onDiscovered fires every time a browse
// cycle reports a peer id, with its dialable address; onExpired fires once a previously known peer id has not been seen for
// expireAfter.
func New(onDiscovered func(peerID, address string), onExpired func(peerID string)) *Presence {
	return &Presence{
		lastSeen:     make(map[string]time.Time),
		onDiscovered: onDiscovered,
		onExpired:    onExpired,
	}
}

// Advertise registers this peer's presence on the LAN. The full peerID is
// published in a TXT record (mDNS instance names are capped at 63 octets,
// shorter than a 64-character hex-encoded ed25519 id); the instance name
// itself is just a truncated prefix, unique enough for zeroconf's own
// bookkeeping but not used as an identity by either side.
func (p *Presence) Advertise(peerID string, port int) error {
	server, err := zeroconf.Register(instanceLabel(peerID), serviceName, serviceDomain, port, []string{idTXTKey + peerID}, nil)
	if err != nil {
		return fmt.Errorf("presence: register mDNS service: %w", err)
	}
	p.server = server
	return nil
}

func instanceLabel(peerID string) string {
	if len(peerID) <= instanceLabelLen {
		return peerID
	}
	return peerID[:instanceLabelLen]
}

// Shutdown withdraws the mDNS advertisement.
func (p *Presence) Shutdown() {
	if p.server != nil {
		p.server.Shutdown()
	}
}

// Run browses for peers until ctx is cancelled, periodically sweeping for
// expiry. It blocks and should be started in its own goroutine.
func (p *Presence) Run(ctx context.Context, selfID string) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("presence: create resolver: %w", err)
	}

	ticker := time.NewTicker(browseInterval)
	defer ticker.Stop()

	for {
		entries := make(chan *zeroconf.ServiceEntry, 8)
		go p.consume(entries, selfID)

		browseCtx, cancel := context.WithTimeout(ctx, browseInterval)
		if err := resolver.Browse(browseCtx, serviceName, serviceDomain, entries); err != nil {
			cancel()
			log.Printf("presence: browse error: %v", err)
		}

		select {
		case <-ctx.Done():
			cancel()
			return nil
		case <-browseCtx.Done():
			cancel()
		}

		p.sweepExpired()
	}
}

func (p *Presence) consume(entries <-chan *zeroconf.ServiceEntry, selfID string) {
	for entry := range entries {
		id, ok := peerIDFromText(entry.Text)
		if !ok {
			continue // foreign _dragit._tcp advertiser without our TXT record
		}
		if id == selfID {
			continue // loopback: our own advertisement
		}
		if len(entry.AddrIPv4) == 0 {
			continue
		}

		address := net.JoinHostPort(entry.AddrIPv4[0].String(), strconv.Itoa(entry.Port))

		p.mu.Lock()
		p.lastSeen[id] = time.Now()
		p.mu.Unlock()

		if p.onDiscovered != nil {
			p.onDiscovered(id, address)
		}
	}
}

// peerIDFromText recovers the full peer id published in Advertise's TXT
// record, since the mDNS instance name only carries a truncated prefix.
func peerIDFromText(txt []string) (string, bool) {
	for _, rec := range txt {
		if id, found := strings.CutPrefix(rec, idTXTKey); found {
			return id, true
		}
	}
	return "", false
}

func (p *Presence) sweepExpired() {
	cutoff := time.Now().Add(-expireAfter)

	p.mu.Lock()
	var expired []string
	for id, seen := range p.lastSeen {
		if seen.Before(cutoff) {
			expired = append(expired, id)
			delete(p.lastSeen, id)
		}
	}
	p.mu.Unlock()

	for _, id := range expired {
		if p.onExpired != nil {
			p.onExpired(id)
		}
	}
}
