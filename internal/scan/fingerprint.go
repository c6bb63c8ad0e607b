package scan

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"
)

// Fingerprinter confirms a service's identity on an open port with a minimal
// protocol-appropriate handshake. Probe returns nil when the service is not
// confirmed; that is a normal outcome, never an error. Fingerprinters hold no
// state between calls and never retry with altered parameters.
type Fingerprinter interface {
	Name() string
	Match(port uint16) bool
	Probe(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor
}

// defaultRegistry returns the TCP fingerprinters consulted in priority order.
// More specific handshakes come before looser ones; the generic banner grab
// is the final fallback and matches every port. The UDP fingerprinters (DNS,
// SNMP) are wired separately since their ports carry no TCP handshake.
func defaultRegistry(timeout time.Duration) []Fingerprinter {
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	return []Fingerprinter{
		&webFingerprinter{timeout: timeout, secure: true},
		&webFingerprinter{timeout: timeout},
		&sshFingerprinter{timeout: timeout},
		&telnetFingerprinter{timeout: timeout},
		&ftpFingerprinter{timeout: timeout},
		&smbFingerprinter{timeout: 3 * time.Second},
		&rtspFingerprinter{timeout: timeout},
		&airplayFingerprinter{timeout: timeout},
		&mqttFingerprinter{timeout: timeout},
		&displayFingerprinter{timeout: timeout},
		&ippFingerprinter{timeout: timeout},
		&jetdirectFingerprinter{timeout: timeout},
	}
}

// fingerprintPort runs the registry against one open port. The first
// fingerprinter whose port predicate matches and whose handshake confirms
// wins; everything else falls through to the generic banner path.
func fingerprintPort(ctx context.Context, host string, probe ProbeResult, registry []Fingerprinter) *ServiceDescriptor {
	for _, fp := range registry {
		if ctx.Err() != nil {
			return nil
		}
		if !fp.Match(probe.Port) {
			continue
		}
		if desc := fp.Probe(ctx, host, probe); desc != nil {
			return desc
		}
	}
	return genericBanner(ctx, host, probe)
}

// bannerKeywords maps banner text fragments to a service identity.
// Consulted in order so the more specific fragments win.
var bannerKeywords = []struct {
	fragment string
	service  string
	protocol string
}{
	{"ssh-", "SSH", "ssh"},
	{"rtsp/", "RTSP", "rtsp"},
	{"http/", "HTTP", "http"},
	// SMTP greetings also start with "220 ", so the mail fragments must be
	// consulted before the bare FTP rule.
	{"esmtp", "SMTP", "smtp"},
	{"smtp", "SMTP", "smtp"},
	{"220 ", "FTP", "ftp"},
	{"+ok", "POP3", "pop3"},
	{"* ok", "IMAP", "imap"},
	{"vnc", "VNC", "vnc"},
	{"rfb ", "VNC", "vnc"},
	{"mysql", "MySQL", "mysql"},
	{"redis", "Redis", "redis"},
}

// genericBanner reads whatever bytes arrive within a short window on a raw
// connect and classifies by keyword matching. Unclassifiable services still
// yield a descriptor so the port is represented in the profile.
func genericBanner(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	banner := probe.Banner
	if len(banner) == 0 {
		banner = grabBanner(ctx, host, probe.Port, time.Second)
	}

	desc := &ServiceDescriptor{
		Port:    probe.Port,
		Name:    "TCP " + portString(probe.Port),
		Details: map[string]string{},
	}
	text := strings.ToLower(string(banner))
	if len(banner) > 0 {
		desc.Details["banner"] = sanitizeBanner(banner)
	}

	for _, kw := range bannerKeywords {
		if strings.Contains(text, kw.fragment) {
			desc.Name = kw.service
			desc.Operations = append(desc.Operations, Capability{
				Name:        kw.service + " connection",
				Description: "Connect to the " + kw.service + " service",
				Available:   true,
				Protocol:    kw.protocol,
				Port:        probe.Port,
				Operation:   "connect",
			})
			return desc
		}
	}

	// Telnet option negotiation starts with IAC (0xFF).
	if len(banner) > 0 && banner[0] == 0xFF {
		desc.Name = "Telnet"
		desc.Operations = append(desc.Operations, Capability{
			Name:        "Telnet session",
			Description: "Open an interactive Telnet session",
			Available:   true,
			Protocol:    "telnet",
			Port:        probe.Port,
			Operation:   "connect",
		})
		return desc
	}

	desc.Operations = append(desc.Operations, Capability{
		Name:        "Raw TCP connection",
		Description: "Open a raw connection to port " + portString(probe.Port),
		Available:   true,
		Protocol:    "tcp",
		Port:        probe.Port,
		Operation:   "connect",
	})
	return desc
}

// grabBanner opens a raw connection and reads the first unsolicited bytes.
func grabBanner(ctx context.Context, host string, port uint16, timeout time.Duration) []byte {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", formatHostPort(host, port))
	if err != nil {
		return nil
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(timeout / 2))
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return nil
	}
	return buf[:n]
}

// sanitizeBanner trims a banner to a single printable line.
func sanitizeBanner(banner []byte) string {
	text := string(banner)
	if idx := strings.IndexAny(text, "\r\n"); idx >= 0 {
		text = text[:idx]
	}
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7F {
			return -1
		}
		return r
	}, text)
	return strings.TrimSpace(cleaned)
}

func portString(port uint16) string {
	return strconv.Itoa(int(port))
}
