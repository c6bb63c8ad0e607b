package wol

import (
	"bytes"
	"testing"
)

func TestBuildMagicPacket(t *testing.T) {
	packet, err := BuildMagicPacket("AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(packet) != 102 {
		t.Fatalf("magic packet must be 102 bytes, got %d", len(packet))
	}
	if !bytes.Equal(packet[:6], []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}) {
		t.Fatalf("packet must start with six 0xFF bytes, got %x", packet[:6])
	}

	mac := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	for i := 0; i < 16; i++ {
		chunk := packet[6+i*6 : 6+(i+1)*6]
		if !bytes.Equal(chunk, mac) {
			t.Fatalf("repetition %d does not match MAC: %x", i, chunk)
		}
	}
}

func TestBuildMagicPacketDashSeparators(t *testing.T) {
	if _, err := BuildMagicPacket("aa-bb-cc-dd-ee-ff"); err != nil {
		t.Fatalf("dash separated MACs must parse: %v", err)
	}
}

func TestBuildMagicPacketInvalid(t *testing.T) {
	for _, mac := range []string{"", "not-a-mac", "AA:BB:CC:DD:EE"} {
		if _, err := BuildMagicPacket(mac); err == nil {
			t.Fatalf("expected error for %q", mac)
		}
	}
}
