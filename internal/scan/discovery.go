package scan

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	ssdpPort        = "1900"
	wsDiscoveryPort = "3702"
)

// discoveryResult carries the optional metadata a discovery protocol adds to
// the profile. Discovery never gates the scan: an empty result is normal.
type discoveryResult struct {
	Details      map[string]string
	Hints        []string
	Capabilities []Capability
}

func (r *discoveryResult) empty() bool {
	return r == nil || (len(r.Details) == 0 && len(r.Hints) == 0 && len(r.Capabilities) == 0)
}

// discoveryCheck is one discovery-protocol exchange against a single target.
type discoveryCheck func(ctx context.Context, host string) *discoveryResult

func defaultDiscoveryChecks() []discoveryCheck {
	return []discoveryCheck{probeSSDP, probeMDNS, probeWSDiscovery}
}

// runDiscovery fans the checks out concurrently and merges their results in
// check order so the output is deterministic regardless of completion order.
func runDiscovery(ctx context.Context, host string, checks []discoveryCheck) *discoveryResult {
	results := make([]*discoveryResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check discoveryCheck) {
			defer wg.Done()
			results[i] = check(ctx, host)
		}(i, check)
	}
	wg.Wait()

	merged := &discoveryResult{Details: map[string]string{}}
	for _, r := range results {
		if r.empty() {
			continue
		}
		for k, v := range r.Details {
			if _, exists := merged.Details[k]; !exists {
				merged.Details[k] = v
			}
		}
		merged.Hints = append(merged.Hints, r.Hints...)
		merged.Capabilities = append(merged.Capabilities, r.Capabilities...)
	}
	return merged
}

// probeSSDP sends a unicast M-SEARCH to udp/1900 and parses the SERVER and
// LOCATION headers of any UPnP answer.
func probeSSDP(ctx context.Context, host string) *discoveryResult {
	searchMsg := "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"MX: 1\r\n" +
		"ST: ssdp:all\r\n" +
		"\r\n"

	dialer := &net.Dialer{Timeout: 500 * time.Millisecond}
	conn, err := dialer.DialContext(ctx, "udp", net.JoinHostPort(host, ssdpPort))
	if err != nil {
		return nil
	}
	defer conn.Close()

	deadline := time.Now().Add(1 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write([]byte(searchMsg)); err != nil {
		return nil
	}

	response := make([]byte, 2048)
	n, err := conn.Read(response)
	if err != nil || n == 0 {
		return nil
	}
	text := string(response[:n])
	if !strings.Contains(text, "HTTP/1.1 200 OK") &&
		!strings.Contains(strings.ToUpper(text), "SERVER:") {
		return nil
	}

	result := &discoveryResult{Details: map[string]string{"upnp": "responded"}}
	for _, line := range strings.Split(text, "\r\n") {
		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, "SERVER:") {
			if _, value, ok := strings.Cut(line, ":"); ok {
				result.Details["upnp_server"] = strings.TrimSpace(value)
			}
		}
		if strings.HasPrefix(upper, "LOCATION:") {
			if _, value, ok := strings.Cut(line, ":"); ok {
				result.Details["upnp_location"] = strings.TrimSpace(value)
			}
		}
	}
	result.Capabilities = append(result.Capabilities, Capability{
		Name:        "Browse UPnP services",
		Description: "Enumerate the device's advertised UPnP services",
		Available:   true,
		Protocol:    "ssdp",
		Port:        1900,
		Operation:   "browse",
		URL:         result.Details["upnp_location"],
	})

	server := strings.ToLower(result.Details["upnp_server"])
	switch {
	case strings.Contains(server, "igd") || strings.Contains(server, "router"):
		result.Hints = append(result.Hints, "router")
	case strings.Contains(server, "mediaserver") || strings.Contains(server, "dlna"):
		result.Hints = append(result.Hints, "media")
	}
	return result
}

// mdnsServiceTypes is the browse set; kept narrow because each type costs a
// full browse round.
var mdnsServiceTypes = []string{
	"_services._dns-sd._udp",
	"_workstation._tcp",
	"_http._tcp",
	"_ipp._tcp",
	"_printer._tcp",
	"_airplay._tcp",
	"_googlecast._tcp",
	"_smb._tcp",
}

// probeMDNS browses the local mDNS domain and keeps entries whose advertised
// addresses match the target host.
func probeMDNS(ctx context.Context, host string) *discoveryResult {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	var mu sync.Mutex
	result := &discoveryResult{Details: map[string]string{}}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			if !entryMatchesHost(entry, host) {
				continue
			}
			mu.Lock()
			if entry.HostName != "" {
				result.Details["mdns_hostname"] = strings.TrimSuffix(entry.HostName, ".")
			}
			if entry.Instance != "" {
				result.Details["mdns_instance"] = entry.Instance
			}
			switch {
			case strings.Contains(entry.Service, "_ipp") || strings.Contains(entry.Service, "_printer"):
				result.Hints = append(result.Hints, "printer")
			case strings.Contains(entry.Service, "_airplay") || strings.Contains(entry.Service, "_googlecast"):
				result.Hints = append(result.Hints, "media")
			case strings.Contains(entry.Service, "_workstation"):
				result.Hints = append(result.Hints, "workstation")
			}
			mu.Unlock()
		}
	}()

	var browseWg sync.WaitGroup
	for _, serviceType := range mdnsServiceTypes {
		if ctx.Err() != nil {
			break
		}
		serviceEntries := make(chan *zeroconf.ServiceEntry, 16)
		browseWg.Add(1)
		go func(in chan *zeroconf.ServiceEntry) {
			defer browseWg.Done()
			for entry := range in {
				select {
				case entries <- entry:
				case <-ctx.Done():
					return
				}
			}
		}(serviceEntries)
		_ = resolver.Browse(ctx, serviceType, "local.", serviceEntries)
	}

	<-ctx.Done()
	browseWg.Wait()
	close(entries)
	<-done

	if len(result.Details) == 0 {
		return nil
	}
	result.Capabilities = append(result.Capabilities, Capability{
		Name:        "Resolve local name",
		Description: "Address the device by its advertised mDNS name",
		Available:   true,
		Protocol:    "mdns",
		Operation:   "resolve",
	})
	return result
}

func entryMatchesHost(entry *zeroconf.ServiceEntry, host string) bool {
	for _, ip := range entry.AddrIPv4 {
		if ip.String() == host {
			return true
		}
	}
	for _, ip := range entry.AddrIPv6 {
		if ip.String() == host {
			return true
		}
	}
	return false
}

// wsDiscoveryProbe is a minimal WS-Discovery Probe envelope; ONVIF cameras
// and Windows hosts answer it on udp/3702.
const wsDiscoveryProbe = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<e:Envelope xmlns:e="http://www.w3.org/2003/05/soap-envelope"` +
	` xmlns:w="http://schemas.xmlsoap.org/ws/2004/08/addressing"` +
	` xmlns:d="http://schemas.xmlsoap.org/ws/2005/04/discovery">` +
	`<e:Header><w:MessageID>uuid:capscan-probe-1</w:MessageID>` +
	`<w:To>urn:schemas-xmlsoap-org:ws:2005:04:discovery</w:To>` +
	`<w:Action>http://schemas.xmlsoap.org/ws/2005/04/discovery/Probe</w:Action></e:Header>` +
	`<e:Body><d:Probe/></e:Body></e:Envelope>`

// probeWSDiscovery sends a unicast WS-Discovery Probe and inspects any
// ProbeMatches answer for device-class scopes.
func probeWSDiscovery(ctx context.Context, host string) *discoveryResult {
	dialer := &net.Dialer{Timeout: 500 * time.Millisecond}
	conn, err := dialer.DialContext(ctx, "udp", net.JoinHostPort(host, wsDiscoveryPort))
	if err != nil {
		return nil
	}
	defer conn.Close()

	deadline := time.Now().Add(1 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write([]byte(wsDiscoveryProbe)); err != nil {
		return nil
	}

	response := make([]byte, 4096)
	n, err := conn.Read(response)
	if err != nil || n == 0 {
		return nil
	}
	text := string(response[:n])
	if !strings.Contains(text, "ProbeMatches") {
		return nil
	}

	result := &discoveryResult{Details: map[string]string{"ws_discovery": "responded"}}
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "networkvideotransmitter") || strings.Contains(lower, "onvif"):
		result.Hints = append(result.Hints, "camera")
		result.Details["ws_types"] = "NetworkVideoTransmitter"
	case strings.Contains(lower, "printer"):
		result.Hints = append(result.Hints, "printer")
		result.Details["ws_types"] = "Printer"
	}
	result.Capabilities = append(result.Capabilities, Capability{
		Name:        "Query device metadata",
		Description: "Fetch device description via WS-Discovery",
		Available:   true,
		Protocol:    "ws-discovery",
		Port:        3702,
		Operation:   "probe",
	})
	return result
}
