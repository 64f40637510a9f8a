package archive

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func buildFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "test_dir")
	if err := os.MkdirAll(filepath.Join(dir, "empty_dir"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "test.odt"), make([]byte, 8988), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestDigestMatchesStreamSize(t *testing.T) {
	dir := buildFixture(t)

	size, hash, err := Digest(dir)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if size == 0 || hash == "" {
		t.Fatalf("unexpected digest: size=%d hash=%q", size, hash)
	}

	stream, err := Stream(dir)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	n, err := io.Copy(io.Discard, stream)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if uint64(n) != size {
		t.Fatalf("stream produced %d bytes, Digest reported %d", n, size)
	}
}

func TestRoundTripPreservesTreeShape(t *testing.T) {
	dir := buildFixture(t)

	archivePath := filepath.Join(t.TempDir(), "archive.zip")
	stream, err := Stream(dir)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	out, err := os.Create(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.Copy(out, stream); err != nil {
		t.Fatalf("copy archive: %v", err)
	}
	out.Close()

	// dest plays the role of the recreated root itself, named the same as
	// the original directory - matching how xfer.receiveDir calls Unpack
	// with a destination already named after the transfer's metadata. Its
	// contents must land directly inside dest, not nested one level
	// deeper under another "test_dir".
	dest := filepath.Join(t.TempDir(), "test_dir")
	if err := Unpack(archivePath, dest); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "test_dir")); err == nil {
		t.Fatal("Unpack nested the root a second time")
	}

	info, err := os.Stat(filepath.Join(dest, "test.odt"))
	if err != nil {
		t.Fatalf("test.odt missing: %v", err)
	}
	if info.Size() != 8988 {
		t.Fatalf("test.odt size = %d, want 8988", info.Size())
	}

	emptyInfo, err := os.Stat(filepath.Join(dest, "empty_dir"))
	if err != nil {
		t.Fatalf("empty_dir missing: %v", err)
	}
	if !emptyInfo.IsDir() {
		t.Fatal("empty_dir is not a directory")
	}
}
