package scan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// ippFingerprinter sends a Get-Printer-Attributes request over HTTP POST.
// A response with the application/ipp content type confirms a print service
// even when the attribute payload itself cannot be parsed.
type ippFingerprinter struct {
	timeout time.Duration
}

func (f *ippFingerprinter) Name() string { return "ipp" }

func (f *ippFingerprinter) Match(port uint16) bool { return port == 631 }

func (f *ippFingerprinter) Probe(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	printerURI := fmt.Sprintf("ipp://%s/ipp/print", formatHostPort(host, probe.Port))
	url := fmt.Sprintf("http://%s/ipp/print", formatHostPort(host, probe.Port))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url,
		bytes.NewReader(buildIPPGetAttributes(printerURI)))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/ipp")

	client := &http.Client{Timeout: f.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/ipp") {
		return nil
	}

	desc := &ServiceDescriptor{
		Port:    probe.Port,
		Name:    "IPP",
		Details: map[string]string{},
		hints:   []string{"printer"},
	}
	if server := strings.TrimSpace(resp.Header.Get("Server")); server != "" {
		desc.Version = server
	}
	desc.Operations = append(desc.Operations,
		Capability{
			Name:        "Print document",
			Description: "Submit a print job over IPP",
			Available:   true,
			Protocol:    "ipp",
			Port:        probe.Port,
			Operation:   "print",
			URL:         printerURI,
		},
		Capability{
			Name:        "Printer status",
			Description: "Query printer and job attributes",
			Available:   true,
			Protocol:    "ipp",
			Port:        probe.Port,
			Operation:   "status",
		},
	)
	return desc
}

// buildIPPGetAttributes encodes a minimal IPP 1.1 Get-Printer-Attributes
// operation (charset, language, printer-uri, end-of-attributes).
func buildIPPGetAttributes(printerURI string) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x01, 0x01})             // version 1.1
	buf.Write([]byte{0x00, 0x0B})             // Get-Printer-Attributes
	buf.Write([]byte{0x00, 0x00, 0x00, 0x01}) // request id
	buf.WriteByte(0x01)                       // operation attributes tag

	writeIPPAttr := func(tag byte, name, value string) {
		buf.WriteByte(tag)
		buf.WriteByte(byte(len(name) >> 8))
		buf.WriteByte(byte(len(name)))
		buf.WriteString(name)
		buf.WriteByte(byte(len(value) >> 8))
		buf.WriteByte(byte(len(value)))
		buf.WriteString(value)
	}
	writeIPPAttr(0x47, "attributes-charset", "utf-8")
	writeIPPAttr(0x48, "attributes-natural-language", "en")
	writeIPPAttr(0x45, "printer-uri", printerURI)

	buf.WriteByte(0x03) // end of attributes
	return buf.Bytes()
}

// jetdirectFingerprinter treats an accepting raw-9100 socket as a JetDirect
// style print queue. There is no handshake to speak; an open connect that
// stays open briefly is the whole signal.
type jetdirectFingerprinter struct {
	timeout time.Duration
}

func (f *jetdirectFingerprinter) Name() string { return "jetdirect" }

func (f *jetdirectFingerprinter) Match(port uint16) bool {
	return port == 9100 || port == 515
}

func (f *jetdirectFingerprinter) Probe(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	dialer := &net.Dialer{Timeout: f.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", formatHostPort(host, probe.Port))
	if err != nil {
		return nil
	}
	conn.Close()

	name := "JetDirect"
	protocol := "raw9100"
	if probe.Port == 515 {
		name = "LPD"
		protocol = "lpd"
	}
	desc := &ServiceDescriptor{
		Port:    probe.Port,
		Name:    name,
		Details: map[string]string{},
		hints:   []string{"printer"},
	}
	desc.Operations = append(desc.Operations, Capability{
		Name:        "Print raw job",
		Description: "Send a raw print job to the " + name + " queue",
		Available:   true,
		Protocol:    protocol,
		Port:        probe.Port,
		Operation:   "print",
	})
	return desc
}
