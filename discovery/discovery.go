// Package discovery implements the one-shot per-connection identity
// exchange on protocol id "/discovery/1.0" (§4.2): each side learns the
// other's hostname and OS tag.
package discovery

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/dragit/dragit-go/protocol"
)

// Stream is the minimal substream capability discovery needs: read,
// write, and a deadline, matching the "capability set" dynamic-dispatch
// boundary named in §9.
type Stream interface {
	io.Reader
	io.Writer
	SetDeadline(time.Time) error
}

// DialerExchange runs the dialer side: read the listener's Host first,
// then write our own (§4.2 "Wire flow for the dialer").
func DialerExchange(s Stream, self protocol.Host) (remote protocol.Host, err error) {
	_ = s.SetDeadline(time.Now().Add(protocol.DiscoverySubstreamTimeout))

	if remote, err = readHost(s); err != nil {
		return protocol.Host{}, fmt.Errorf("discovery: read remote host: %w", err)
	}
	if err = writeHost(s, self); err != nil {
		return protocol.Host{}, fmt.Errorf("discovery: write self host: %w", err)
	}
	return remote, nil
}

// ListenerExchange runs the listener side: the inverse order of
// DialerExchange.
func ListenerExchange(s Stream, self protocol.Host) (remote protocol.Host, err error) {
	_ = s.SetDeadline(time.Now().Add(protocol.DiscoverySubstreamTimeout))

	if err = writeHost(s, self); err != nil {
		return protocol.Host{}, fmt.Errorf("discovery: write self host: %w", err)
	}
	if remote, err = readHost(s); err != nil {
		return protocol.Host{}, fmt.Errorf("discovery: read remote host: %w", err)
	}
	return remote, nil
}

func writeHost(w io.Writer, h protocol.Host) error {
	data := h.Marshal()
	if len(data) > protocol.HostPacketMaxSize {
		return fmt.Errorf("discovery: encoded host %d bytes exceeds max %d", len(data), protocol.HostPacketMaxSize)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readHost(r io.Reader) (protocol.Host, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return protocol.Host{}, err
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > protocol.HostPacketMaxSize {
		return protocol.Host{}, fmt.Errorf("discovery: remote host packet %d bytes exceeds max %d", n, protocol.HostPacketMaxSize)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return protocol.Host{}, err
	}

	return protocol.UnmarshalHost(buf)
}
