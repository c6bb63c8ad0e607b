package scan

import (
	"context"
	"strconv"
	"time"

	"github.com/miekg/dns"
)

// dnsFingerprinter exchanges a real query with udp/53; UDP has no handshake,
// so a parsed response is the only openness signal.
type dnsFingerprinter struct {
	timeout time.Duration
}

func (f *dnsFingerprinter) Name() string { return "dns" }

func (f *dnsFingerprinter) Match(port uint16) bool { return port == 53 }

func (f *dnsFingerprinter) Probe(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	msg := new(dns.Msg)
	msg.SetQuestion(".", dns.TypeNS)
	msg.RecursionDesired = false

	client := &dns.Client{Net: "udp", Timeout: f.timeout}
	response, rtt, err := client.ExchangeContext(ctx, msg, formatHostPort(host, probe.Port))
	if err != nil || response == nil {
		return nil
	}

	desc := &ServiceDescriptor{
		Port: probe.Port,
		Name: "DNS",
		Details: map[string]string{
			"rcode":  dns.RcodeToString[response.Rcode],
			"rtt_ms": formatMillis(rtt),
		},
	}
	if response.RecursionAvailable {
		desc.Details["recursion"] = "available"
	}
	desc.Operations = append(desc.Operations, Capability{
		Name:        "Resolve names",
		Description: "Use the device as a DNS resolver",
		Available:   true,
		Protocol:    "dns",
		Port:        probe.Port,
		Operation:   "query",
	})
	return desc
}

func formatMillis(d time.Duration) string {
	ms := d.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10)
}
