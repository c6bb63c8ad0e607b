package scan

import (
	"context"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// sshFingerprinter reads the SSH identification banner without completing a
// key exchange, then optionally runs a full version exchange to confirm the
// endpoint really negotiates SSH.
type sshFingerprinter struct {
	timeout time.Duration
}

func (f *sshFingerprinter) Name() string { return "ssh" }

func (f *sshFingerprinter) Match(port uint16) bool {
	return port == 22 || port == 2222
}

func (f *sshFingerprinter) Probe(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	banner := probe.Banner
	if len(banner) == 0 {
		banner = grabBanner(ctx, host, probe.Port, f.timeout)
	}
	text := sanitizeBanner(banner)
	if !strings.HasPrefix(text, "SSH-") {
		return nil
	}

	desc := &ServiceDescriptor{
		Port:    probe.Port,
		Name:    "SSH",
		Details: map[string]string{"banner": text},
	}
	// "SSH-2.0-OpenSSH_8.9" -> software hint "OpenSSH_8.9".
	if parts := strings.SplitN(text, "-", 3); len(parts) == 3 {
		desc.Version = parts[2]
	}
	if confirmSSHExchange(ctx, host, probe.Port, f.timeout) {
		desc.Details["key_exchange"] = "confirmed"
	}

	desc.Operations = append(desc.Operations,
		Capability{
			Name:        "SSH connection",
			Description: "Open a remote shell over SSH",
			Available:   true,
			Protocol:    "ssh",
			Port:        probe.Port,
			Operation:   "connect",
		},
		Capability{
			Name:        "Secure file transfer",
			Description: "Copy files over SFTP or SCP",
			Available:   true,
			Protocol:    "ssh",
			Port:        probe.Port,
			Operation:   "transfer",
		},
	)
	return desc
}

// confirmSSHExchange runs an anonymous version exchange. The handshake is
// expected to fail at authentication; reaching that stage proves the peer
// speaks SSH rather than merely printing an SSH-like banner.
func confirmSSHExchange(ctx context.Context, host string, port uint16, timeout time.Duration) bool {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", formatHostPort(host, port))
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	config := &ssh.ClientConfig{
		User:            "capscan",
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, formatHostPort(host, port), config)
	if err != nil {
		return strings.Contains(err.Error(), "unable to authenticate")
	}
	// An open server; close the unexpected session cleanly.
	client := ssh.NewClient(sshConn, chans, reqs)
	_ = client.Close()
	return true
}

// telnetFingerprinter sniffs the option negotiation (IAC) a Telnet server
// sends unprompted.
type telnetFingerprinter struct {
	timeout time.Duration
}

func (f *telnetFingerprinter) Name() string { return "telnet" }

func (f *telnetFingerprinter) Match(port uint16) bool { return port == 23 }

func (f *telnetFingerprinter) Probe(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	banner := probe.Banner
	if len(banner) == 0 {
		banner = grabBanner(ctx, host, probe.Port, f.timeout)
	}
	if len(banner) == 0 {
		return nil
	}
	isNegotiation := banner[0] == 0xFF
	text := sanitizeBanner(banner)
	if !isNegotiation && text == "" {
		return nil
	}

	desc := &ServiceDescriptor{
		Port:    probe.Port,
		Name:    "Telnet",
		Details: map[string]string{},
	}
	if isNegotiation {
		desc.Details["negotiation"] = "iac"
	} else {
		desc.Details["banner"] = text
	}
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

// ftpFingerprinter expects the 220 greeting an FTP server sends on connect.
type ftpFingerprinter struct {
	timeout time.Duration
}

func (f *ftpFingerprinter) Name() string { return "ftp" }

func (f *ftpFingerprinter) Match(port uint16) bool { return port == 21 }

func (f *ftpFingerprinter) Probe(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	banner := probe.Banner
	if len(banner) == 0 {
		banner = grabBanner(ctx, host, probe.Port, f.timeout)
	}
	text := sanitizeBanner(banner)
	if !strings.HasPrefix(text, "220") {
		return nil
	}

	desc := &ServiceDescriptor{
		Port:    probe.Port,
		Name:    "FTP",
		Details: map[string]string{"banner": text},
	}
	if greeting := strings.TrimSpace(strings.TrimPrefix(text, "220")); greeting != "" {
		desc.Version = strings.TrimPrefix(greeting, "-")
	}
	desc.Operations = append(desc.Operations,
		Capability{
			Name:        "Transfer files",
			Description: "Upload and download files over FTP",
			Available:   true,
			Protocol:    "ftp",
			Port:        probe.Port,
			Operation:   "transfer",
		},
		Capability{
			Name:        "Browse FTP directory",
			Description: "List the server's published directories",
			Available:   true,
			Protocol:    "ftp",
			Port:        probe.Port,
			Operation:   "browse",
		},
	)
	return desc
}
