package scan

import (
	"context"
	"fmt"
	"net"
	"time"
)

// mqttFingerprinter sends a minimal MQTT 3.1.1 CONNECT frame and expects a
// CONNACK. Brokers that demand credentials still answer with a refusal code,
// which equally confirms the protocol.
type mqttFingerprinter struct {
	timeout time.Duration
}

func (f *mqttFingerprinter) Name() string { return "mqtt" }

func (f *mqttFingerprinter) Match(port uint16) bool {
	return port == 1883 || port == 8883
}

func (f *mqttFingerprinter) Probe(ctx context.Context, host string, probe ProbeResult) *ServiceDescriptor {
	if probe.Port == 8883 {
		// TLS brokers need a full handshake first; out of scope for a
		// best-effort reachability check, so only the plain port is probed.
		return nil
	}

	dialer := &net.Dialer{Timeout: f.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", formatHostPort(host, probe.Port))
	if err != nil {
		return nil
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(f.timeout))

	if _, err := conn.Write(buildMQTTConnect("capscan")); err != nil {
		return nil
	}

	// CONNACK: packet type 0x20, remaining length 2, then flags + return code.
	response := make([]byte, 4)
	n, err := conn.Read(response)
	if err != nil || n < 4 || response[0] != 0x20 || response[1] != 0x02 {
		return nil
	}
	returnCode := response[3]

	desc := &ServiceDescriptor{
		Port:    probe.Port,
		Name:    "MQTT",
		Details: map[string]string{"connack_code": fmt.Sprintf("%d", returnCode)},
	}
	if returnCode == 4 || returnCode == 5 {
		desc.Details["auth_required"] = "true"
	}
	desc.Operations = append(desc.Operations,
		Capability{
			Name:        "Publish messages",
			Description: "Publish to MQTT topics on the broker",
			Available:   true,
			Protocol:    "mqtt",
			Port:        probe.Port,
			Operation:   "publish",
		},
		Capability{
			Name:        "Subscribe to topics",
			Description: "Subscribe to MQTT topics on the broker",
			Available:   true,
			Protocol:    "mqtt",
			Port:        probe.Port,
			Operation:   "subscribe",
		},
	)
	return desc
}

// buildMQTTConnect assembles a clean-session MQTT 3.1.1 CONNECT packet.
func buildMQTTConnect(clientID string) []byte {
	variable := []byte{
		0x00, 0x04, 'M', 'Q', 'T', 'T', // protocol name
		0x04,       // protocol level 3.1.1
		0x02,       // clean session, no credentials
		0x00, 0x3C, // keepalive 60s
	}
	payload := append([]byte{byte(len(clientID) >> 8), byte(len(clientID))}, clientID...)

	packet := []byte{0x10} // CONNECT
	packet = append(packet, encodeMQTTLength(len(variable)+len(payload))...)
	packet = append(packet, variable...)
	packet = append(packet, payload...)
	return packet
}

// encodeMQTTLength produces the variable-length remaining-length field.
func encodeMQTTLength(length int) []byte {
	var encoded []byte
	for {
		digit := byte(length % 128)
		length /= 128
		if length > 0 {
			digit |= 0x80
		}
		encoded = append(encoded, digit)
		if length == 0 {
			return encoded
		}
	}
}
