package core

import (
	"os"
	"runtime"

	"github.com/dragit/dragit-go/protocol"
)

func osHostname() (string, error) {
	return os.Hostname()
}

// currentOS maps runtime.GOOS to the wire enum named in §3 and recovered
// from the original source's Os tag (original_source/src/p2p/discovery/protocol.rs).
func currentOS() protocol.OS {
	switch runtime.GOOS {
	case "linux":
		return protocol.OSLinux
	case "windows":
		return protocol.OSWindows
	case "darwin":
		return protocol.OSMacos
	case "":
		return protocol.OSUnknown
	default:
		return protocol.OSOther
	}
}
