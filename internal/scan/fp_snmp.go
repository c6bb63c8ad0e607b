package scan

import (
	"context"
	"net"
	"time"
)

// snmpFingerprinter issues SNMP v2c GET requests for sysDescr with the common
// community strings. Any well-formed SEQUENCE response confirms a managed
// device.
type snmpFingerprinter struct {
	timeout time.Duration
}

func (f *snmpFingerprinter) Name() string { return "snmp" }

func (f *snmpFingerprinter) Match(port uint16) bool { return port == 161 }

func (f *snmpFingerprinter) Probe(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	for _, community := range []string{"public", "private"} {
		if ctx.Err() != nil {
			return nil
		}
		if !trySNMPGet(ctx, host, probe.Port, community, f.timeout) {
			continue
		}
		desc := &ServiceDescriptor{
			Port:    probe.Port,
			Name:    "SNMP",
			Details: map[string]string{"community": community},
			hints:   []string{"router"},
		}
		desc.Operations = append(desc.Operations,
			Capability{
				Name:        "Query device status",
				Description: "Read SNMP system and interface counters",
				Available:   true,
				Protocol:    "snmp",
				Port:        probe.Port,
				Operation:   "query",
			},
			Capability{
				Name:        "Monitor via SNMP",
				Description: "Poll the device from a network monitoring system",
				Available:   true,
				Protocol:    "snmp",
				Port:        probe.Port,
				Operation:   "monitor",
			},
		)
		return desc
	}
	return nil
}

func trySNMPGet(ctx context.Context, host string, port uint16, community string, timeout time.Duration) bool {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "udp", formatHostPort(host, port))
	if err != nil {
		return false
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(buildSNMPGet(community)); err != nil {
		return false
	}

	response := make([]byte, 1500)
	n, err := conn.Read(response)
	if err != nil || n < 10 {
		return false
	}
	// 0x30 is the outer ASN.1 SEQUENCE every SNMP message starts with.
	return response[0] == 0x30
}

// buildSNMPGet assembles a v2c GET for sysDescr (1.3.6.1.2.1.1.1.0). The
// encoding is done by hand; a conformant SNMP client is explicitly out of
// scope for a reachability heuristic.
func buildSNMPGet(community string) []byte {
	varbind := []byte{
		0x30, 0x0d,
		0x06, 0x09,
		0x2b, 0x06, 0x01, 0x02, 0x01, 0x01, 0x01, 0x00, // sysDescr.0
		0x05, 0x00, // NULL
	}
	varbindList := append([]byte{0x30, byte(len(varbind))}, varbind...)

	pduBody := []byte{
		0x02, 0x01, 0x01, // request id
		0x02, 0x01, 0x00, // error status
		0x02, 0x01, 0x00, // error index
	}
	pduBody = append(pduBody, varbindList...)
	pdu := append([]byte{0xa0, byte(len(pduBody))}, pduBody...)

	message := []byte{0x02, 0x01, 0x01} // version 2c
	message = append(message, 0x04, byte(len(community)))
	message = append(message, community...)
	message = append(message, pdu...)

	return append([]byte{0x30, byte(len(message))}, message...)
}
