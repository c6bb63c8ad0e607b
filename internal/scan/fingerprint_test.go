package scan

import (
	"context"
	"testing"
	"time"
)

func TestGenericBannerKeywords(t *testing.T) {
	cases := []struct {
		banner string
		want   string
	}{
		{"SSH-2.0-OpenSSH_9.6\r\n", "SSH"},
		{"220 ftp.example ready\r\n", "FTP"},
		{"220 mail.example.com ESMTP Postfix\r\n", "SMTP"},
		{"220 mail.example.com SMTP ready\r\n", "SMTP"},
		{"+OK POP3 ready\r\n", "POP3"},
		{"* OK IMAP4rev1 ready\r\n", "IMAP"},
		{"RFB 003.008\n", "VNC"},
	}

	for _, tc := range cases {
		probe := ProbeResult{Port: 12345, Protocol: "tcp", Open: true, Banner: []byte(tc.banner)}
		desc := genericBanner(context.Background(), "127.0.0.1", probe)
		if desc == nil {
			t.Fatalf("banner %q yielded no descriptor", tc.banner)
		}
		if desc.Name != tc.want {
			t.Fatalf("banner %q classified as %q, want %q", tc.banner, desc.Name, tc.want)
		}
		if len(desc.Operations) == 0 {
			t.Fatalf("classified banner %q must yield a capability", tc.banner)
		}
	}
}

func TestGenericBannerTelnetIAC(t *testing.T) {
	probe := ProbeResult{Port: 23, Protocol: "tcp", Open: true, Banner: []byte{0xFF, 0xFD, 0x18}}
	desc := genericBanner(context.Background(), "127.0.0.1", probe)
	if desc == nil || desc.Name != "Telnet" {
		t.Fatalf("IAC-led banner should classify as Telnet, got %+v", desc)
	}
}

func TestGenericBannerUnclassified(t *testing.T) {
	probe := ProbeResult{Port: 4242, Protocol: "tcp", Open: true, Banner: []byte("hello world")}
	desc := genericBanner(context.Background(), "127.0.0.1", probe)
	if desc == nil {
		t.Fatalf("unknown banner must still yield a descriptor")
	}
	if len(desc.Operations) != 1 || desc.Operations[0].Name != "Raw TCP connection" {
		t.Fatalf("expected raw connection fallback capability, got %+v", desc.Operations)
	}
}

type fakeFingerprinter struct {
	name    string
	matched uint16
	desc    *ServiceDescriptor
	calls   int
}

func (f *fakeFingerprinter) Name() string           { return f.name }
func (f *fakeFingerprinter) Match(port uint16) bool { return port == f.matched }
func (f *fakeFingerprinter) Probe(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	f.calls++
	return f.desc
}

func TestFingerprintPortFirstConfirmWins(t *testing.T) {
	first := &fakeFingerprinter{name: "first", matched: 80, desc: &ServiceDescriptor{Port: 80, Name: "First"}}
	second := &fakeFingerprinter{name: "second", matched: 80, desc: &ServiceDescriptor{Port: 80, Name: "Second"}}

	probe := ProbeResult{Port: 80, Protocol: "tcp", Open: true}
	desc := fingerprintPort(context.Background(), "127.0.0.1", probe, []Fingerprinter{first, second})

	if desc == nil || desc.Name != "First" {
		t.Fatalf("expected the first confirming fingerprinter to win, got %+v", desc)
	}
	if second.calls != 0 {
		t.Fatalf("later fingerprinters must not run after a confirmation")
	}
}

func TestFingerprintPortFallsThroughOnNil(t *testing.T) {
	declined := &fakeFingerprinter{name: "declined", matched: 80, desc: nil}
	confirmed := &fakeFingerprinter{name: "confirmed", matched: 80, desc: &ServiceDescriptor{Port: 80, Name: "Confirmed"}}

	probe := ProbeResult{Port: 80, Protocol: "tcp", Open: true, Banner: []byte("x")}
	desc := fingerprintPort(context.Background(), "127.0.0.1", probe, []Fingerprinter{declined, confirmed})

	if desc == nil || desc.Name != "Confirmed" {
		t.Fatalf("nil from a fingerprinter must fall through, got %+v", desc)
	}
	if declined.calls != 1 {
		t.Fatalf("declining fingerprinter should have been consulted once, got %d", declined.calls)
	}
}

func TestFingerprintPortSkipsNonMatching(t *testing.T) {
	other := &fakeFingerprinter{name: "other", matched: 443, desc: &ServiceDescriptor{Port: 443, Name: "Other"}}

	probe := ProbeResult{Port: 80, Protocol: "tcp", Open: true, Banner: []byte("plain")}
	desc := fingerprintPort(context.Background(), "127.0.0.1", probe, []Fingerprinter{other})

	if other.calls != 0 {
		t.Fatalf("fingerprinter must not be probed for a non-matching port")
	}
	if desc == nil {
		t.Fatalf("generic fallback must produce a descriptor")
	}
}

func TestSanitizeBanner(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"SSH-2.0-OpenSSH\r\nextra", "SSH-2.0-OpenSSH"},
		{"\x01\x02binary\x7f", "binary"},
		{"  padded  ", "padded"},
	}
	for _, tc := range cases {
		if got := sanitizeBanner([]byte(tc.in)); got != tc.want {
			t.Fatalf("sanitizeBanner(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDefaultRegistryOrder(t *testing.T) {
	registry := defaultRegistry(time.Second)
	if len(registry) == 0 {
		t.Fatalf("registry must not be empty")
	}
	// The secure web fingerprinter must come first so 8443 is not claimed by
	// the plain one.
	if _, ok := registry[0].(*webFingerprinter); !ok {
		t.Fatalf("expected web fingerprinter first, got %T", registry[0])
	}
}

func TestDefaultRegistryIsTCPOnly(t *testing.T) {
	// DNS and SNMP dial UDP and are wired through the engine's UDP path; a
	// registry entry claiming 53 or 161 would misbehave on a TCP probe.
	for _, fp := range defaultRegistry(time.Second) {
		if fp.Match(53) || fp.Match(161) {
			t.Fatalf("fingerprinter %q must not claim a UDP port", fp.Name())
		}
	}
}
