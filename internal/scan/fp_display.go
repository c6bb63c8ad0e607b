package scan

import (
	"context"
	"net"
	"strings"
	"time"
)

// displayFingerprinter covers remote-display protocols: an X.224 connection
// request for RDP and the RFB version banner for VNC.
type displayFingerprinter struct {
	timeout time.Duration
}

func (f *displayFingerprinter) Name() string { return "remote-display" }

func (f *displayFingerprinter) Match(port uint16) bool {
	return port == 3389 || port == 5900
}

func (f *displayFingerprinter) Probe(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	if probe.Port == 5900 {
		return f.probeVNC(ctx, host, probe)
	}
	return f.probeRDP(ctx, host, probe)
}

// x224ConnectionRequest is a minimal TPKT-framed RDP negotiation request.
var x224ConnectionRequest = []byte{
	0x03, 0x00, 0x00, 0x13, // TPKT header, length 19
	0x0e, 0xe0, 0x00, 0x00, 0x00, 0x00, 0x00, // X.224 CR
	0x01, 0x00, 0x08, 0x00, 0x03, 0x00, 0x00, 0x00, // RDP negotiation request
}

func (f *displayFingerprinter) probeRDP(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	dialer := &net.Dialer{Timeout: f.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", formatHostPort(host, probe.Port))
	if err != nil {
		return nil
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(f.timeout))

	if _, err := conn.Write(x224ConnectionRequest); err != nil {
		return nil
	}
	response := make([]byte, 19)
	n, err := conn.Read(response)
	if err != nil || n < 4 || response[0] != 0x03 {
		return nil
	}

	desc := &ServiceDescriptor{
		Port:    probe.Port,
		Name:    "RDP",
		Details: map[string]string{"negotiation": "x224"},
		hints:   []string{"workstation"},
	}
	desc.Operations = append(desc.Operations, Capability{
		Name:        "Remote desktop",
		Description: "Open a remote desktop session over RDP",
		Available:   true,
		Protocol:    "rdp",
		Port:        probe.Port,
		Operation:   "connect",
	})
	return desc
}

func (f *displayFingerprinter) probeVNC(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	banner := probe.Banner
	if len(banner) == 0 {
		banner = grabBanner(ctx, host, probe.Port, f.timeout)
	}
	text := sanitizeBanner(banner)
	if !strings.HasPrefix(text, "RFB ") {
		return nil
	}

	desc := &ServiceDescriptor{
		Port:    probe.Port,
		Name:    "VNC",
		Version: strings.TrimPrefix(text, "RFB "),
		Details: map[string]string{"rfb_version": text},
	}
	desc.Operations = append(desc.Operations, Capability{
		Name:        "Remote screen control",
		Description: "View and control the screen over VNC",
		Available:   true,
		Protocol:    "vnc",
		Port:        probe.Port,
		Operation:   "connect",
	})
	return desc
}
