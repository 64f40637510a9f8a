package xfer

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dragit/dragit-go/core"
)

func TestSendReceiveFileRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "test")
	if err := os.WriteFile(srcPath, []byte("test"), 0o644); err != nil {
		t.Fatal(err)
	}

	file, err := NewFile(core.PeerID("peer-a"), srcPath)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	senderConn, receiverConn := net.Pipe()
	defer senderConn.Close()
	defer receiverConn.Close()

	senderEvents, _ := core.NewEventChannel()
	receiverEvents, receiverRx := core.NewEventChannel()
	commandTx, commands := core.NewCommandChannel(4)

	destDir := t.TempDir()

	done := make(chan error, 1)
	go func() {
		done <- Receive(context.Background(), receiverConn, destDir, receiverEvents, commands)
	}()

	go func() {
		for e := range receiverRx {
			if incoming, ok := e.(core.FileIncoming); ok {
				commandTx <- core.Command{Accept: true, Hash: incoming.Hash}
				return
			}
		}
	}()

	if err := Send(senderConn, file, senderEvents); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// net.Pipe has no half-close; closing the sender's end is how the
	// receiver's read loop observes EOF and knows the payload is over (§6).
	senderConn.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for receive to finish")
	}

	var correct *core.FileCorrect
	for correct == nil {
		select {
		case e, ok := <-receiverRx:
			if !ok {
				t.Fatal("receiver event channel closed before FileCorrect")
			}
			if fc, ok := e.(core.FileCorrect); ok {
				correct = &fc
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for FileCorrect")
		}
	}

	data, err := os.ReadFile(correct.Payload.Path)
	if err != nil {
		t.Fatalf("reading received file: %v", err)
	}
	if string(data) != "test" {
		t.Fatalf("received content = %q, want %q", data, "test")
	}
}

// TestSendReceiveDirRoundTrip drives receiveDir end-to-end over a real
// Send/Receive pair, the integration path that archive_test.go's
// unit-level TestRoundTripPreservesTreeShape cannot exercise on its own:
// it would have caught the archive being unpacked one level too deep
// under downloadDir.
func TestSendReceiveDirRoundTrip(t *testing.T) {
	srcRoot := t.TempDir()
	srcDir := filepath.Join(srcRoot, "photos")
	if err := os.MkdirAll(filepath.Join(srcDir, "empty_dir"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "pic.jpg"), []byte("binary-ish"), 0o644); err != nil {
		t.Fatal(err)
	}

	dir, err := NewDir(core.PeerID("peer-a"), srcDir)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}

	senderConn, receiverConn := net.Pipe()
	defer senderConn.Close()
	defer receiverConn.Close()

	senderEvents, _ := core.NewEventChannel()
	receiverEvents, receiverRx := core.NewEventChannel()
	commandTx, commands := core.NewCommandChannel(4)

	downloadDir := t.TempDir()

	done := make(chan error, 1)
	go func() {
		done <- Receive(context.Background(), receiverConn, downloadDir, receiverEvents, commands)
	}()

	go func() {
		for e := range receiverRx {
			if incoming, ok := e.(core.FileIncoming); ok {
				commandTx <- core.Command{Accept: true, Hash: incoming.Hash}
				return
			}
		}
	}()

	if err := Send(senderConn, dir, senderEvents); err != nil {
		t.Fatalf("Send: %v", err)
	}
	senderConn.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for receive to finish")
	}

	var correct *core.FileCorrect
	for correct == nil {
		select {
		case e, ok := <-receiverRx:
			if !ok {
				t.Fatal("receiver event channel closed before FileCorrect")
			}
			if fc, ok := e.(core.FileCorrect); ok {
				correct = &fc
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for FileCorrect")
		}
	}

	if got := filepath.Join(downloadDir, "photos"); correct.Payload.Path != got {
		t.Fatalf("FileCorrect.Payload.Path = %q, want %q", correct.Payload.Path, got)
	}
	if _, err := os.Stat(filepath.Join(correct.Payload.Path, "photos")); err == nil {
		t.Fatal("receiveDir nested the root a second time")
	}

	data, err := os.ReadFile(filepath.Join(correct.Payload.Path, "pic.jpg"))
	if err != nil {
		t.Fatalf("pic.jpg missing: %v", err)
	}
	if string(data) != "binary-ish" {
		t.Fatalf("received content = %q, want %q", data, "binary-ish")
	}

	info, err := os.Stat(filepath.Join(correct.Payload.Path, "empty_dir"))
	if err != nil {
		t.Fatalf("empty_dir missing: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("empty_dir is not a directory")
	}
}

func TestSendReceiveRejection(t *testing.T) {
	file := NewText(core.PeerID("peer-a"), "Hello there")

	senderConn, receiverConn := net.Pipe()
	defer senderConn.Close()
	defer receiverConn.Close()

	senderEvents, _ := core.NewEventChannel()
	receiverEvents, receiverRx := core.NewEventChannel()
	commandTx, commands := core.NewCommandChannel(4)

	done := make(chan error, 1)
	go func() {
		done <- Receive(context.Background(), receiverConn, t.TempDir(), receiverEvents, commands)
	}()

	go func() {
		for e := range receiverRx {
			if incoming, ok := e.(core.FileIncoming); ok {
				commandTx <- core.Command{Accept: false, Hash: incoming.Hash}
				return
			}
		}
	}()

	if err := Send(senderConn, file, senderEvents); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for receive to finish")
	}
}

func TestOutboundQueueLIFO(t *testing.T) {
	q := NewOutboundQueue()
	peer := core.PeerID("peer-a")

	first := NewText(peer, "first")
	second := NewText(peer, "second")
	q.Push(first)
	q.Push(second)

	got, ok := q.Pop(peer)
	if !ok || got.Text != "second" {
		t.Fatalf("Pop = %+v, ok=%v, want second", got, ok)
	}

	got, ok = q.Pop(peer)
	if !ok || got.Text != "first" {
		t.Fatalf("Pop = %+v, ok=%v, want first", got, ok)
	}

	if _, ok := q.Pop(peer); ok {
		t.Fatal("Pop on empty queue returned ok=true")
	}
}

func TestOutboundQueuePeers(t *testing.T) {
	q := NewOutboundQueue()
	q.Push(NewText(core.PeerID("a"), "x"))
	q.Push(NewText(core.PeerID("b"), "y"))

	peers := q.Peers()
	if len(peers) != 2 {
		t.Fatalf("Peers() = %v, want 2 entries", peers)
	}
}

func TestAllocateDestinationCollision(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "report.txt")
	if err := os.WriteFile(existing, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	path, err := allocateDestination(dir, "report.txt")
	if err != nil {
		t.Fatalf("allocateDestination: %v", err)
	}
	if path == existing {
		t.Fatalf("allocateDestination returned colliding path %s", path)
	}
	if filepath.Ext(path) != ".txt" {
		t.Fatalf("allocateDestination dropped extension: %s", path)
	}
}

func TestDirRootNameStripsTarSuffix(t *testing.T) {
	if got := dirRootName("photos.tar"); got != "photos" {
		t.Fatalf("dirRootName = %q, want %q", got, "photos")
	}
	if got := dirRootName("photos"); got != "photos" {
		t.Fatalf("dirRootName = %q, want %q", got, "photos")
	}
}
