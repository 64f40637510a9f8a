package xfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dragit/dragit-go/archive"
	"github.com/dragit/dragit-go/core"
	"github.com/dragit/dragit-go/protocol"
	"github.com/google/uuid"
)

// Receive drives the receiver-side state machine for one inbound transfer
// substream: read the fixed-size Metadata packet, wait for the UI's
// accept/deny decision, answer, then materialise the payload and verify
// its hash (§4.3, §8).
func Receive(ctx context.Context, stream Substream, downloadDir string, events core.EventSender, commands *core.CommandReceiver) error {
	packet := make([]byte, protocol.MetadataPacketSize)
	if _, err := io.ReadFull(stream, packet); err != nil {
		return fmt.Errorf("xfer: read metadata: %w", err)
	}
	metadata, err := protocol.UnmarshalMetadata(packet)
	if err != nil {
		return fmt.Errorf("xfer: unmarshal metadata: %w", err)
	}

	events.Emit(core.FileIncoming{
		Name: metadata.Name,
		Hash: metadata.Hash,
		Size: metadata.Size,
		Type: transferTypeName(metadata.Type),
	})

	waitCtx, cancel := context.WithTimeout(ctx, protocol.TransferSubstreamTimeout)
	defer cancel()

	accept, err := commands.WaitFor(waitCtx, metadata.Hash)
	if err != nil {
		return fmt.Errorf("xfer: waiting for decision on %s: %w", metadata.Hash, err)
	}

	answer := protocol.Answer{Accepted: accept, Hash: metadata.Hash}
	if _, err := stream.Write(answer.Marshal()); err != nil {
		return fmt.Errorf("xfer: write answer: %w", err)
	}
	if !accept {
		events.Emit(core.TransferRejected{})
		return nil
	}

	if metadata.Type == protocol.TransferText {
		return receiveText(stream, metadata, events)
	}
	if metadata.Type == protocol.TransferDir {
		return receiveDir(stream, metadata, downloadDir, events)
	}
	return receiveFile(stream, metadata, downloadDir, events)
}

func transferTypeName(t protocol.TransferType) core.TransferTypeName {
	switch t {
	case protocol.TransferDir:
		return core.TransferTypeDir
	case protocol.TransferText:
		return core.TransferTypeText
	default:
		return core.TransferTypeFile
	}
}

// receiveText buffers the payload through a uniquely named temp file
// rather than in memory directly, so the same receivePayload/hash path
// serves all three payload kinds; the temp file is removed once the text
// has been read back.
func receiveText(stream Substream, metadata protocol.Metadata, events core.EventSender) error {
	tempPath := filepath.Join(os.TempDir(), "dragit-"+uuid.NewString()+".txt")
	defer os.Remove(tempPath)

	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("xfer: create temp file: %w", err)
	}
	if err := receivePayload(f, stream, metadata.Size, events); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	data, err := os.ReadFile(tempPath)
	if err != nil {
		return fmt.Errorf("xfer: reread temp file: %w", err)
	}

	if protocol.HashBytes(data) != metadata.Hash {
		events.Emit(core.FileIncorrect{})
		return nil
	}

	events.Emit(core.FileCorrect{
		Name:    metadata.Name,
		Payload: core.Payload{Text: string(data), IsText: true},
	})
	return nil
}

func receiveFile(stream Substream, metadata protocol.Metadata, downloadDir string, events core.EventSender) error {
	dest, err := allocateDestination(downloadDir, metadata.Name)
	if err != nil {
		return fmt.Errorf("xfer: allocate destination: %w", err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("xfer: create %s: %w", dest, err)
	}
	if err := receivePayload(f, stream, metadata.Size, events); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	hash, err := hashFile(dest)
	if err != nil {
		return err
	}
	if hash != metadata.Hash {
		events.Emit(core.FileIncorrect{})
		return nil
	}

	events.Emit(core.FileCorrect{Name: metadata.Name, Payload: core.Payload{Path: dest}})
	return nil
}

// receiveDir buffers the incoming zip archive to a temp file, verifies its
// hash against Metadata before touching the destination directory at all,
// then unpacks it (§4.5, §8) - an archive that fails verification never
// reaches the filesystem as a directory tree.
func receiveDir(stream Substream, metadata protocol.Metadata, downloadDir string, events core.EventSender) error {
	archivePath := filepath.Join(os.TempDir(), "dragit-"+uuid.NewString()+".zip")
	defer os.Remove(archivePath)

	af, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("xfer: create temp archive: %w", err)
	}
	if err := receivePayload(af, stream, metadata.Size, events); err != nil {
		af.Close()
		return err
	}
	if err := af.Close(); err != nil {
		return err
	}

	hash, err := hashFile(archivePath)
	if err != nil {
		return err
	}
	if hash != metadata.Hash {
		events.Emit(core.FileIncorrect{})
		return nil
	}

	dest, err := allocateDestination(downloadDir, dirRootName(metadata.Name))
	if err != nil {
		return fmt.Errorf("xfer: allocate destination: %w", err)
	}
	if err := archive.Unpack(archivePath, dest); err != nil {
		return fmt.Errorf("xfer: unpack archive: %w", err)
	}

	events.Emit(core.FileCorrect{Name: metadata.Name, Payload: core.Payload{Path: dest}})
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return protocol.HashReader(f)
}

// receivePayload copies exactly the payload bytes from src to dst,
// reporting progress the same way the sender does (§4.4).
func receivePayload(dst io.Writer, src io.Reader, total uint64, events core.EventSender) error {
	buf := make([]byte, protocol.ChunkSize)
	tracker := newProgressTracker(total)

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			if done, tot, notify := tracker.Add(n); notify {
				events.Emit(core.TransferProgress{BytesDone: done, BytesTotal: tot, Direction: core.Incoming})
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
