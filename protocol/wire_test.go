package protocol

import "testing"

func TestHostRoundTrip(t *testing.T) {
	h := Host{Hostname: "workstation-1", OS: OSLinux}

	decoded, err := UnmarshalHost(h.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalHost: %v", err)
	}
	if decoded != h {
		t.Fatalf("got %+v, want %+v", decoded, h)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	m := Metadata{Name: "report.pdf", Hash: "098f6bcd4621d373cade4e832627b4f6", Size: 4, Type: TransferFile}

	packet, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(packet) != MetadataPacketSize {
		t.Fatalf("packet size = %d, want %d", len(packet), MetadataPacketSize)
	}

	decoded, err := UnmarshalMetadata(packet)
	if err != nil {
		t.Fatalf("UnmarshalMetadata: %v", err)
	}
	if decoded != m {
		t.Fatalf("got %+v, want %+v", decoded, m)
	}
}

func TestMetadataNameTooLarge(t *testing.T) {
	huge := make([]byte, MetadataPacketSize)
	m := Metadata{Name: string(huge)}

	if _, err := m.Marshal(); err == nil {
		t.Fatal("expected error for oversized metadata")
	}
}

func TestAnswerRoundTrip(t *testing.T) {
	a := Answer{Accepted: true}

	packet := a.Marshal()
	if len(packet) != AnswerPacketSize {
		t.Fatalf("packet size = %d, want %d", len(packet), AnswerPacketSize)
	}

	decoded, err := UnmarshalAnswer(packet)
	if err != nil {
		t.Fatalf("UnmarshalAnswer: %v", err)
	}
	if !decoded.Accepted {
		t.Fatal("expected accepted=true to survive the round trip")
	}
}

func TestAnswerDenied(t *testing.T) {
	packet := Answer{Accepted: false}.Marshal()

	decoded, err := UnmarshalAnswer(packet)
	if err != nil {
		t.Fatalf("UnmarshalAnswer: %v", err)
	}
	if decoded.Accepted {
		t.Fatal("expected accepted=false")
	}
}

func TestHashBytesKnownVectors(t *testing.T) {
	cases := map[string]string{
		"":            "d41d8cd98f00b204e9800998ecf8427e",
		"Hello there": "e8ea7a8d1e93e8764a84a0f3df4644de",
		"test":        "098f6bcd4621d373cade4e832627b4f6",
	}

	for in, want := range cases {
		if got := HashBytes([]byte(in)); got != want {
			t.Errorf("HashBytes(%q) = %s, want %s", in, got, want)
		}
	}
}
