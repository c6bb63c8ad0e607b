package scan

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"howett.net/plist"
)

// rtspFingerprinter sends a minimal OPTIONS request; any RTSP/1.0 status
// line confirms a streaming endpoint.
type rtspFingerprinter struct {
	timeout time.Duration
}

func (f *rtspFingerprinter) Name() string { return "rtsp" }

func (f *rtspFingerprinter) Match(port uint16) bool {
	return port == 554 || port == 8554
}

func (f *rtspFingerprinter) Probe(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	dialer := &net.Dialer{Timeout: f.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", formatHostPort(host, probe.Port))
	if err != nil {
		return nil
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(f.timeout))

	fmt.Fprintf(conn, "OPTIONS rtsp://%s RTSP/1.0\r\nCSeq: 1\r\nUser-Agent: capscan\r\n\r\n",
		formatHostPort(host, probe.Port))

	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(status, "RTSP/1.0") {
		return nil
	}

	desc := &ServiceDescriptor{
		Port:    probe.Port,
		Name:    "RTSP",
		Details: map[string]string{"status": strings.TrimSpace(status)},
		hints:   []string{"camera"},
	}
	// Collect the Public/Server headers while they keep arriving.
	for {
		line, err := reader.ReadString('\n')
		if err != nil || strings.TrimSpace(line) == "" {
			break
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "public":
			desc.Details["methods"] = strings.TrimSpace(value)
		case "server":
			desc.Version = strings.TrimSpace(value)
		}
	}

	desc.Operations = append(desc.Operations, Capability{
		Name:        "View video stream",
		Description: "Watch the live RTSP stream",
		Available:   true,
		Protocol:    "rtsp",
		Port:        probe.Port,
		Operation:   "stream",
		URL:         fmt.Sprintf("rtsp://%s/", formatHostPort(host, probe.Port)),
	})
	return desc
}

const maxAirPlayResponseSize = 1 << 20

// airplayFingerprinter fetches the plist metadata AirPlay endpoints expose
// over HTTP on port 7000.
type airplayFingerprinter struct {
	timeout time.Duration
}

func (f *airplayFingerprinter) Name() string { return "airplay" }

func (f *airplayFingerprinter) Match(port uint16) bool { return port == 7000 }

func (f *airplayFingerprinter) Probe(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	client := &http.Client{Timeout: f.timeout}

	for _, endpoint := range []string{"info", "server-info"} {
		url := fmt.Sprintf("http://%s/%s", formatHostPort(host, probe.Port), endpoint)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxAirPlayResponseSize))
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			continue
		}
		fields := parseAirPlayPlist(data)
		if len(fields) == 0 {
			continue
		}

		desc := &ServiceDescriptor{
			Port:    probe.Port,
			Name:    "AirPlay",
			Details: fields,
			hints:   []string{"media"},
		}
		if model := fields["model"]; model != "" {
			desc.Version = model
		}
		desc.Operations = append(desc.Operations,
			Capability{
				Name:        "Stream media",
				Description: "Send audio or video to the AirPlay receiver",
				Available:   true,
				Protocol:    "airplay",
				Port:        probe.Port,
				Operation:   "cast",
			},
			Capability{
				Name:        "Mirror screen",
				Description: "Mirror a display to the AirPlay receiver",
				Available:   true,
				Protocol:    "airplay",
				Port:        probe.Port,
				Operation:   "mirror",
			},
		)
		return desc
	}
	return nil
}

// parseAirPlayPlist flattens the plist dictionary into printable strings.
func parseAirPlayPlist(data []byte) map[string]string {
	if len(data) == 0 {
		return nil
	}
	var payload any
	if _, err := plist.Unmarshal(data, &payload); err != nil {
		return nil
	}
	raw, ok := payload.(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}

	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := make(map[string]string, len(raw))
	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				fields[key] = trimmed
			}
		case bool:
			fields[key] = fmt.Sprintf("%t", v)
		case int, int32, int64, uint, uint64, float32, float64:
			fields[key] = fmt.Sprintf("%v", v)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
