package protocol

import (
	"fmt"
	"io"
)

// maxProtocolIDLen bounds the single length-prefix byte used by
// WriteProtocolID/ReadProtocolID; DiscoveryProtocolID and
// TransferProtocolID are both well under this.
const maxProtocolIDLen = 255

// WriteProtocolID writes a length-prefixed protocol identifier as the
// first bytes of a freshly opened substream, so the accepting side can
// route it to the right handler instead of guessing from its content
// (§4.1, "substream protocol negotiated the same way libp2p-style
// multistream protocols are").
func WriteProtocolID(w io.Writer, id string) error {
	if len(id) > maxProtocolIDLen {
		return fmt.Errorf("protocol: id %q exceeds %d bytes", id, maxProtocolIDLen)
	}
	if _, err := w.Write([]byte{byte(len(id))}); err != nil {
		return err
	}
	_, err := io.WriteString(w, id)
	return err
}

// ReadProtocolID reads the length-prefixed protocol identifier a peer
// wrote with WriteProtocolID.
func ReadProtocolID(r io.Reader) (string, error) {
	var lenByte [1]byte
	if _, err := io.ReadFull(r, lenByte[:]); err != nil {
		return "", err
	}

	buf := make([]byte, lenByte[0])
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
