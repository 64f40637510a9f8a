package xfer

import "bytes"

type byteReadCloser struct {
	*bytes.Reader
}

func (byteReadCloser) Close() error { return nil }

func newByteReadCloser(data []byte) readCloser {
	return byteReadCloser{bytes.NewReader(data)}
}
