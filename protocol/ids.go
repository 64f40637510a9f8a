/*
Package protocol defines the on-wire messages exchanged between dragit
peers: the discovery Host record, the transfer Metadata and Answer
records, and the protocol identifiers and size constants that the
transport layer uses to route substreams.
*/
package protocol

import "time"

// Substream protocol identifiers, negotiated the same way libp2p-style
// multistream protocols are: a short ASCII string sent once when a
// substream is opened.
const (
	DiscoveryProtocolID = "/discovery/1.0"
	TransferProtocolID  = "/transfer/1.1"
)

// OS is the operating system tag carried in the discovery Host record.
type OS int32

const (
	OSLinux OS = iota
	OSWindows
	OSMacos
	OSOther
	OSUnknown
)

func (os OS) String() string {
	switch os {
	case OSLinux:
		return "Linux"
	case OSWindows:
		return "Windows"
	case OSMacos:
		return "Macos"
	case OSOther:
		return "Other"
	default:
		return "Unknown"
	}
}

// TransferType distinguishes the three payload shapes a Metadata record
// can describe.
type TransferType int32

const (
	TransferFile TransferType = iota
	TransferDir
	TransferText
)

func (t TransferType) String() string {
	switch t {
	case TransferFile:
		return "File"
	case TransferDir:
		return "Dir"
	case TransferText:
		return "Text"
	default:
		return "Unknown"
	}
}

// Wire size constants, fixed by §6 of the protocol.
const (
	MetadataPacketSize = 1024 // Metadata is always padded to this size; a larger encoding is an error.
	AnswerPacketSize   = 2    // Answer is a minimal two-byte packet: one bool field.
	HostPacketMaxSize  = 1024 // Host is length-prefixed but capped at this size.
	ChunkSize          = 64 * 1024        // payload streaming chunk size
	RingCapacity       = 128              // chunks buffered between socket and disk
	RingByteCeiling    = ChunkSize * RingCapacity

	HandshakeTimeout          = 60 * time.Second
	ConnectionIdleTimeout     = 60 * time.Second
	TransferSubstreamTimeout  = 600 * time.Second
	DiscoverySubstreamTimeout = 10 * time.Second

	MaxMuxBufferSize = 40960
	MuxSplitSendSize = 524288
)
