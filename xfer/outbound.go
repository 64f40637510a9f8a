package xfer

import (
	"fmt"
	"io"

	"github.com/dragit/dragit-go/core"
	"github.com/dragit/dragit-go/protocol"
)

// Substream is the minimal surface a transfer reads and writes from; a
// *transport.Substream (yamux.Stream) satisfies it, and so does anything
// used as a test double (§4.3).
type Substream interface {
	io.Reader
	io.Writer
}

// Send drives the sender-side state machine for one queued file over an
// already-open transfer substream: resolve metadata, write it, wait for
// the Answer, then stream the payload (§4.3).
func Send(stream Substream, file FileToSend, events core.EventSender) error {
	events.Emit(core.WaitingForAnswer{})

	resolved, err := file.resolve()
	if err != nil {
		return fmt.Errorf("xfer: resolve %s: %w", file.DisplayName, err)
	}

	packet, err := resolved.metadata.Marshal()
	if err != nil {
		return fmt.Errorf("xfer: marshal metadata: %w", err)
	}
	if _, err := stream.Write(packet); err != nil {
		return fmt.Errorf("xfer: write metadata: %w", err)
	}

	answerPacket := make([]byte, protocol.AnswerPacketSize)
	if _, err := io.ReadFull(stream, answerPacket); err != nil {
		return fmt.Errorf("xfer: read answer: %w", err)
	}
	answer, err := protocol.UnmarshalAnswer(answerPacket)
	if err != nil {
		return fmt.Errorf("xfer: unmarshal answer: %w", err)
	}
	if !answer.Accepted {
		events.Emit(core.TransferRejected{})
		return nil
	}

	src, err := resolved.open()
	if err != nil {
		return fmt.Errorf("xfer: open payload: %w", err)
	}
	defer src.Close()

	if err := sendPayload(stream, src, resolved.metadata.Size, events); err != nil {
		return fmt.Errorf("xfer: stream payload: %w", err)
	}
	if c, ok := stream.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("xfer: close substream: %w", err)
		}
	}

	events.Emit(core.TransferCompleted{})
	return nil
}

// chunk is one buffer handed from the payload reader goroutine to the
// substream writer.
type chunk struct {
	data []byte
	err  error
}

// sendPayload reads src on its own goroutine into a bounded channel
// (protocol.RingCapacity chunks of protocol.ChunkSize bytes) and writes
// each chunk to dst as it arrives, so a slow peer applies backpressure
// through the channel rather than through src directly (§5).
func sendPayload(dst io.Writer, src io.Reader, total uint64, events core.EventSender) error {
	chunks := make(chan chunk, protocol.RingCapacity)

	go func() {
		defer close(chunks)
		buf := make([]byte, protocol.ChunkSize)
		for {
			n, err := src.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				chunks <- chunk{data: data}
			}
			if err != nil {
				if err != io.EOF {
					chunks <- chunk{err: err}
				}
				return
			}
		}
	}()

	tracker := newProgressTracker(total)
	for c := range chunks {
		if c.err != nil {
			return c.err
		}
		if _, err := dst.Write(c.data); err != nil {
			return err
		}
		if done, tot, notify := tracker.Add(len(c.data)); notify {
			events.Emit(core.TransferProgress{BytesDone: done, BytesTotal: tot, Direction: core.Outgoing})
		}
	}
	return nil
}
