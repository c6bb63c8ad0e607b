package scan

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const maxWebBodyBytes = 64 * 1024

var (
	titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	realmPattern = regexp.MustCompile(`(?i)realm="?([^"\s]+)"?`)
)

// webKeywordHints score bounded page content against device families. A hit
// seeds an archetype hint for the classifier; the strongest evidence the
// engine collects short of a dedicated protocol handshake.
var webKeywordHints = map[string][]string{
	"router":  {"router", "gateway", "wireless settings", "wan ", "dd-wrt", "openwrt", "mikrotik", "access point"},
	"printer": {"printer", "toner", "ink level", "cups", "print jobs", "laserjet", "pixma"},
	"camera":  {"camera", "ipcam", "surveillance", "webcam", "nvr", "live view", "onvif"},
	"storage": {"nas", "synology", "qnap", "raid", "shared folder", "truenas", "file station"},
	"media":   {"plex", "jellyfin", "kodi", "media server", "dlna", "now playing"},
}

// webAPISuffixes are probed to detect a programmatic control interface.
var webAPISuffixes = []string{"/api", "/api/v1", "/rest", "/json"}

// webFingerprinter confirms plain and TLS web services. Beyond the status
// line it fetches a bounded body prefix for keyword scoring, checks a small
// set of API suffixes, and performs a real ONVIF GetDeviceInformation call
// when the path responds.
type webFingerprinter struct {
	timeout time.Duration
	secure  bool
}

func (f *webFingerprinter) Name() string {
	if f.secure {
		return "https"
	}
	return "http"
}

func (f *webFingerprinter) Match(port uint16) bool {
	if f.secure {
		return port == 443 || port == 8443
	}
	switch port {
	case 80, 8000, 8080, 5000, 9090, 10000:
		return true
	default:
		return false
	}
}

func (f *webFingerprinter) Probe(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	client := f.client()
	base := f.baseURL(host, probe.Port)

	resp, err := f.get(ctx, client, base+"/")
	if err != nil {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxWebBodyBytes))
	resp.Body.Close()

	name := "HTTP"
	protocol := "http"
	if f.secure {
		name = "HTTPS"
		protocol = "https"
	}

	desc := &ServiceDescriptor{
		Port:    probe.Port,
		Name:    name,
		Details: map[string]string{},
	}
	if server := strings.TrimSpace(resp.Header.Get("Server")); server != "" {
		desc.Version = server
		desc.Details["server"] = server
	}
	if title := extractTitle(body); title != "" {
		desc.Details["title"] = title
	}
	if f.secure {
		if cert := fetchCertSubject(ctx, host, probe.Port, f.timeout); cert != "" {
			desc.Details["tls_subject"] = cert
		}
	}

	desc.hints = scoreWebKeywords(desc.Details["title"] + " " + string(body))

	// An authentication challenge still confirms the service; report it with
	// a login capability instead of treating the challenge as failure.
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		desc.Details["auth_required"] = "true"
		if m := realmPattern.FindStringSubmatch(resp.Header.Get("WWW-Authenticate")); len(m) == 2 {
			desc.Details["realm"] = m[1]
		}
		desc.Operations = append(desc.Operations, Capability{
			Name:        "Log in",
			Description: "Authenticate against the web interface on port " + portString(probe.Port),
			Available:   true,
			Protocol:    protocol,
			Port:        probe.Port,
			Operation:   "login",
			URL:         base + "/",
		})
	}

	desc.Operations = append(desc.Operations, Capability{
		Name:        "Open web interface",
		Description: "Browse the " + name + " interface on port " + portString(probe.Port),
		Available:   true,
		Protocol:    protocol,
		Port:        probe.Port,
		Operation:   "browse",
		URL:         base + "/",
	})

	if apiPath := f.findAPI(ctx, client, base); apiPath != "" {
		desc.Details["api_path"] = apiPath
		desc.Operations = append(desc.Operations, Capability{
			Name:        "Call device API",
			Description: "Programmatic control interface at " + apiPath,
			Available:   true,
			Protocol:    protocol,
			Port:        probe.Port,
			Operation:   "api",
			URL:         base + apiPath,
		})
	}

	if info := probeONVIF(ctx, client, base); info != nil {
		desc.Details["onvif_manufacturer"] = info.Manufacturer
		desc.Details["onvif_model"] = info.Model
		desc.hints = append(desc.hints, "camera")
		desc.Operations = append(desc.Operations, Capability{
			Name:        "View camera stream",
			Description: "ONVIF-managed video stream",
			Available:   true,
			Protocol:    "onvif",
			Port:        probe.Port,
			Operation:   "stream",
			URL:         base + "/onvif/device_service",
		})
	}

	return desc
}

func (f *webFingerprinter) client() *http.Client {
	transport := &http.Transport{
		TLSClientConfig:   &tls.Config{InsecureSkipVerify: true},
		DisableKeepAlives: true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   f.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (f *webFingerprinter) baseURL(host string, port uint16) string {
	scheme := "http"
	if f.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, formatHostPort(host, port))
}

func (f *webFingerprinter) get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "capscan/1.0")
	return client.Do(req)
}

// findAPI probes well-known API path suffixes; any non-404 answer counts as a
// programmatic interface.
func (f *webFingerprinter) findAPI(ctx context.Context, client *http.Client, base string) string {
	for _, suffix := range webAPISuffixes {
		if ctx.Err() != nil {
			return ""
		}
		resp, err := f.get(ctx, client, base+suffix)
		if err != nil {
			continue
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound && resp.StatusCode < 500 {
			return suffix
		}
	}
	return ""
}

func extractTitle(body []byte) string {
	m := titlePattern.FindSubmatch(body)
	if len(m) != 2 {
		return ""
	}
	return strings.Join(strings.Fields(string(m[1])), " ")
}

// scoreWebKeywords returns the archetype hints whose keyword sets match the
// page content, strongest first.
func scoreWebKeywords(content string) []string {
	lowered := strings.ToLower(content)
	type scored struct {
		hint  string
		count int
	}
	var matches []scored
	for hint, keywords := range webKeywordHints {
		count := 0
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				count++
			}
		}
		if count > 0 {
			matches = append(matches, scored{hint, count})
		}
	}
	if len(matches) == 0 {
		return nil
	}
	// Stable strongest-first ordering; ties resolve alphabetically so the
	// result is deterministic for identical content.
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0; j-- {
			a, b := matches[j-1], matches[j]
			if b.count > a.count || (b.count == a.count && b.hint < a.hint) {
				matches[j-1], matches[j] = b, a
			}
		}
	}
	hints := make([]string, 0, len(matches))
	for _, m := range matches {
		hints = append(hints, m.hint)
	}
	return hints
}

// onvifDeviceInfo is the subset of GetDeviceInformation the engine records.
type onvifDeviceInfo struct {
	Manufacturer string
	Model        string
}

const onvifGetDeviceInformation = `<?xml version="1.0" encoding="UTF-8"?>
<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"
 xmlns:tds="http://www.onvif.org/ver10/device/wsdl">
 <s:Body>
  <tds:GetDeviceInformation/>
 </s:Body>
</s:Envelope>`

// probeONVIF performs a real GetDeviceInformation SOAP call against the
// standard device service path. Nil means not an ONVIF endpoint; results are
// never fabricated.
func probeONVIF(ctx context.Context, client *http.Client, base string) *onvifDeviceInfo {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		base+"/onvif/device_service", strings.NewReader(onvifGetDeviceInformation))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")

	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxWebBodyBytes))
	var envelope struct {
		XMLName xml.Name `xml:"Envelope"`
		Body    struct {
			GetDeviceInformationResponse struct {
				Manufacturer string `xml:"Manufacturer"`
				Model        string `xml:"Model"`
			} `xml:"GetDeviceInformationResponse"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	r := envelope.Body.GetDeviceInformationResponse
	manufacturer := strings.TrimSpace(r.Manufacturer)
	model := strings.TrimSpace(r.Model)
	if manufacturer == "" && model == "" {
		return nil
	}
	return &onvifDeviceInfo{Manufacturer: manufacturer, Model: model}
}

// fetchCertSubject records the presented certificate's subject and validity.
func fetchCertSubject(ctx context.Context, host string, port uint16, timeout time.Duration) string {
	dialer := &net.Dialer{Timeout: timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	conn, err := tls.DialWithDialer(dialer, "tcp", formatHostPort(host, port), &tls.Config{
		InsecureSkipVerify: true,
		ServerName:         host,
	})
	if err != nil {
		return ""
	}
	defer conn.Close()

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return ""
	}
	cert := state.PeerCertificates[0]
	parts := []string{}
	if cert.Subject.CommonName != "" {
		parts = append(parts, "CN="+cert.Subject.CommonName)
	}
	if len(cert.DNSNames) > 0 {
		parts = append(parts, "SANs="+strings.Join(cert.DNSNames[:min(3, len(cert.DNSNames))], ","))
	}
	if !cert.NotAfter.IsZero() {
		parts = append(parts, "Expires="+cert.NotAfter.Format("2006-01-02"))
	}
	return strings.Join(parts, "; ")
}
