// Package xfer implements the transfer protocol engine: the outbound and
// inbound state machines that drive one substream from metadata exchange
// through payload streaming to completion (§4.3).
package xfer

import (
	"fmt"
	"os"
	"strings"

	"github.com/dragit/dragit-go/archive"
	"github.com/dragit/dragit-go/core"
	"github.com/dragit/dragit-go/protocol"
)

// Kind is the payload variant of an outbound intent (§3 "FileToSend").
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindText
)

// FileToSend is an outbound intent queued by the UI bridge and consumed
// when an outbound substream opens (§3).
type FileToSend struct {
	PeerID      core.PeerID
	DisplayName string
	Kind        Kind
	Path        string // File, Dir
	Text        string // Text
}

// NewFile builds a File intent. The path must resolve at construction time
// (§3 invariant).
func NewFile(peer core.PeerID, path string) (FileToSend, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileToSend{}, fmt.Errorf("xfer: resolve file %q: %w", path, err)
	}
	if info.IsDir() {
		return FileToSend{}, fmt.Errorf("xfer: %q is a directory, use NewDir", path)
	}
	return FileToSend{PeerID: peer, DisplayName: info.Name(), Kind: KindFile, Path: path}, nil
}

// NewDir builds a Dir intent. The path must resolve at construction time.
func NewDir(peer core.PeerID, path string) (FileToSend, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileToSend{}, fmt.Errorf("xfer: resolve dir %q: %w", path, err)
	}
	if !info.IsDir() {
		return FileToSend{}, fmt.Errorf("xfer: %q is not a directory, use NewFile", path)
	}
	return FileToSend{PeerID: peer, DisplayName: info.Name(), Kind: KindDir, Path: path}, nil
}

// NewText builds a Text intent. The display name is the first five
// characters of the text with newlines stripped, suffixed with " (...)"
// (§3 invariant, recovered from original_source/src/p2p/transfer/jobs.rs).
func NewText(peer core.PeerID, text string) FileToSend {
	return FileToSend{PeerID: peer, DisplayName: textDisplayName(text), Kind: KindText, Text: text}
}

func textDisplayName(text string) string {
	stripped := strings.ReplaceAll(strings.ReplaceAll(text, "\r", ""), "\n", "")
	runes := []rune(stripped)
	if len(runes) > 5 {
		runes = runes[:5]
	}
	return string(runes) + " (...)"
}

// TransferType maps the intent's Kind to the wire enum.
func (f FileToSend) TransferType() protocol.TransferType {
	switch f.Kind {
	case KindDir:
		return protocol.TransferDir
	case KindText:
		return protocol.TransferText
	default:
		return protocol.TransferFile
	}
}

// resolvedMetadata is the outcome of hashing and sizing a payload before
// the Metadata packet is sent (§4.3 step 2).
type resolvedMetadata struct {
	metadata protocol.Metadata
	open     func() (readCloser, error)
}

type readCloser interface {
	Read([]byte) (int, error)
	Close() error
}

// resolve computes name/hash/size for f and returns a function that opens
// a fresh reader over the same bytes for streaming. For Dir payloads this
// necessarily walks the tree twice (once to hash, §4.3 step 2; once to
// stream) since the hash must be known before Metadata is sent.
func (f FileToSend) resolve() (resolvedMetadata, error) {
	switch f.Kind {
	case KindFile:
		file, err := os.Open(f.Path)
		if err != nil {
			return resolvedMetadata{}, err
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			return resolvedMetadata{}, err
		}

		hash, err := protocol.HashReader(file)
		if err != nil {
			return resolvedMetadata{}, err
		}

		return resolvedMetadata{
			metadata: protocol.Metadata{Name: f.DisplayName, Hash: hash, Size: uint64(info.Size()), Type: protocol.TransferFile},
			open: func() (readCloser, error) {
				return os.Open(f.Path)
			},
		}, nil

	case KindDir:
		size, hash, err := archive.Digest(f.Path)
		if err != nil {
			return resolvedMetadata{}, err
		}

		return resolvedMetadata{
			metadata: protocol.Metadata{Name: f.DisplayName, Hash: hash, Size: size, Type: protocol.TransferDir},
			open: func() (readCloser, error) {
				return archive.Stream(f.Path)
			},
		}, nil

	case KindText:
		data := []byte(f.Text)
		hash := protocol.HashBytes(data)

		return resolvedMetadata{
			metadata: protocol.Metadata{Name: f.DisplayName, Hash: hash, Size: uint64(len(data)), Type: protocol.TransferText},
			open: func() (readCloser, error) {
				return newByteReadCloser(data), nil
			},
		}, nil
	}

	return resolvedMetadata{}, fmt.Errorf("xfer: unknown payload kind %d", f.Kind)
}
