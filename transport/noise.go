// Package transport implements the connection upgrade pipeline: TCP with
// TCP_NODELAY, a Noise XX authenticated handshake binding an ephemeral
// X25519 keypair to the process's long-term ed25519 identity, and stream
// multiplexing on top of the resulting secure channel (§4.1).
package transport

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/flynn/noise"
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherAESGCM, noise.HashSHA256)

// identityProof binds the ephemeral Noise static key to the long-term
// ed25519 identity: the peer signs the Noise static public key with its
// ed25519 private key, and the remote side verifies the signature against
// the advertised ed25519 public key before trusting the session (§4.1,
// "Noise XX authenticated handshake ... bound to the process's long-term
// ed25519 identity").
type identityProof struct {
	PublicKey ed25519.PublicKey
	Signature []byte
}

func encodeProof(p identityProof) []byte {
	out := make([]byte, 0, 2+len(p.PublicKey)+2+len(p.Signature))
	out = appendLenPrefixed(out, p.PublicKey)
	out = appendLenPrefixed(out, p.Signature)
	return out
}

func decodeProof(b []byte) (identityProof, error) {
	pub, rest, err := consumeLenPrefixed(b)
	if err != nil {
		return identityProof{}, err
	}
	sig, _, err := consumeLenPrefixed(rest)
	if err != nil {
		return identityProof{}, err
	}
	return identityProof{PublicKey: ed25519.PublicKey(pub), Signature: sig}, nil
}

func appendLenPrefixed(dst, data []byte) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(data)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, data...)
}

func consumeLenPrefixed(b []byte) (field, rest []byte, err error) {
	if len(b) < 2 {
		return nil, nil, errors.New("transport: truncated identity proof")
	}
	n := int(binary.BigEndian.Uint16(b))
	if len(b) < 2+n {
		return nil, nil, errors.New("transport: truncated identity proof field")
	}
	return b[2 : 2+n], b[2+n:], nil
}

// Session is an authenticated, encrypted channel established over a raw
// io.ReadWriteCloser (a TCP connection). It satisfies io.ReadWriteCloser so
// it can host a yamux session directly.
type Session struct {
	conn   io.ReadWriteCloser
	send   *noise.CipherState
	recv   *noise.CipherState
	RemoteID ed25519.PublicKey

	readBuf []byte
}

// handshakeTransport is the conn type passed to handshakeXX; kept as
// io.ReadWriteCloser rather than net.Conn so tests can run the handshake
// over an in-memory pipe.
type handshakeTransport = io.ReadWriteCloser

// ClientHandshake runs the XX handshake as the dialing side.
func ClientHandshake(conn handshakeTransport, identity ed25519.PrivateKey, identityPub ed25519.PublicKey) (*Session, error) {
	return runHandshake(conn, identity, identityPub, true)
}

// ServerHandshake runs the XX handshake as the listening side.
func ServerHandshake(conn handshakeTransport, identity ed25519.PrivateKey, identityPub ed25519.PublicKey) (*Session, error) {
	return runHandshake(conn, identity, identityPub, false)
}

func runHandshake(conn handshakeTransport, identity ed25519.PrivateKey, identityPub ed25519.PublicKey, initiator bool) (*Session, error) {
	staticKey, err := cipherSuite.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("transport: generate noise static key: %w", err)
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: staticKey,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: init handshake state: %w", err)
	}

	var remotePub ed25519.PublicKey
	var sendCS, recvCS *noise.CipherState

	proof := identityProof{PublicKey: identityPub}

	if initiator {
		// -> e
		msg1, _, _, err := hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, err
		}
		if err := writeFramed(conn, msg1); err != nil {
			return nil, err
		}

		// <- e, ee, s, es
		msg2, err := readFramed(conn)
		if err != nil {
			return nil, err
		}
		payload2, _, _, err := hs.ReadMessage(nil, msg2)
		if err != nil {
			return nil, fmt.Errorf("transport: read handshake message 2: %w", err)
		}
		peerProof, err := decodeProof(payload2)
		if err != nil {
			return nil, err
		}
		remotePub = peerProof.PublicKey
		if !ed25519.Verify(remotePub, hs.PeerStatic(), peerProof.Signature) {
			return nil, errors.New("transport: peer identity signature does not match its noise static key")
		}

		// sign our own static key to prove we hold identity's private key.
		proof.Signature = ed25519.Sign(identity, staticKey.Public)

		// -> s, se
		msg3, cs1, cs2, err := hs.WriteMessage(nil, encodeProof(proof))
		if err != nil {
			return nil, err
		}
		if err := writeFramed(conn, msg3); err != nil {
			return nil, err
		}
		sendCS, recvCS = cs1, cs2
	} else {
		// -> e
		msg1, err := readFramed(conn)
		if err != nil {
			return nil, err
		}
		if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
			return nil, fmt.Errorf("transport: read handshake message 1: %w", err)
		}

		// sign our own static key to prove we hold identity's private key.
		proof.Signature = ed25519.Sign(identity, staticKey.Public)

		// <- e, ee, s, es
		msg2, _, _, err := hs.WriteMessage(nil, encodeProof(proof))
		if err != nil {
			return nil, err
		}
		if err := writeFramed(conn, msg2); err != nil {
			return nil, err
		}

		// -> s, se
		msg3, err := readFramed(conn)
		if err != nil {
			return nil, err
		}
		payload3, cs1, cs2, err := hs.ReadMessage(nil, msg3)
		if err != nil {
			return nil, fmt.Errorf("transport: read handshake message 3: %w", err)
		}
		peerProof, err := decodeProof(payload3)
		if err != nil {
			return nil, err
		}
		remotePub = peerProof.PublicKey

		if !ed25519.Verify(remotePub, hs.PeerStatic(), peerProof.Signature) {
			return nil, errors.New("transport: peer identity signature does not match its noise static key")
		}

		// responder sends first, receives second
		sendCS, recvCS = cs2, cs1
	}

	return &Session{conn: conn, send: sendCS, recv: recvCS, RemoteID: remotePub}, nil
}

const maxFrame = 65519 // noise message limit minus AEAD tag headroom

func writeFramed(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readFramed(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Read implements io.Reader over the decrypted stream.
func (s *Session) Read(p []byte) (int, error) {
	for len(s.readBuf) == 0 {
		ciphertext, err := readFramed(s.conn)
		if err != nil {
			return 0, err
		}
		plaintext, err := s.recv.Decrypt(nil, nil, ciphertext)
		if err != nil {
			return 0, fmt.Errorf("transport: decrypt record: %w", err)
		}
		s.readBuf = plaintext
	}

	n := copy(p, s.readBuf)
	s.readBuf = s.readBuf[n:]
	return n, nil
}

// Write implements io.Writer, encrypting and framing p in maxFrame chunks.
func (s *Session) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxFrame {
			chunk = chunk[:maxFrame]
		}
		ciphertext := s.send.Encrypt(nil, nil, chunk)
		if err := writeFramed(s.conn, ciphertext); err != nil {
			return total, err
		}
		total += len(chunk)
		p = p[len(chunk):]
	}
	return total, nil
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
