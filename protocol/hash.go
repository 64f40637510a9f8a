package protocol

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
)

// hashBufferSize is the read buffer used while streaming a payload through
// the hash function, per §4.6.
const hashBufferSize = 1024

// HashReader streams r through MD5 and returns the lowercase hex digest. It
// never buffers more than hashBufferSize bytes at a time, so it is safe to
// use on arbitrarily large files.
func HashReader(r io.Reader) (digest string, err error) {
	h := md5.New()
	buf := make([]byte, hashBufferSize)

	if _, err = io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes hashes an in-memory payload, used for Text transfers where the
// payload is UTF-8 bytes already held in memory (§4.6).
func HashBytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// NewHasher returns a streaming MD5 hasher (read its digest with HexDigest),
// for callers that need to hash a stream while also forwarding its bytes
// elsewhere (the archive streamer hashes the same bytes that traverse the
// wire, per §4.6).
func NewHasher() hash.Hash {
	return md5.New()
}

// HexDigest formats a running hash.Hash as the lowercase hex digest used
// throughout the wire protocol.
func HexDigest(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
