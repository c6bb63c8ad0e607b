package scan

import "strings"

// Archetypes in fixed priority order; ties in the score table resolve to the
// earlier entry.
var archetypePriority = []string{
	"router", "printer", "camera", "storage", "workstation", "server", "embedded", "media",
}

// Point tables. A bare open port is weak evidence, a confirmed service name
// is stronger, and a content keyword hint from a fingerprinter is the
// strongest signal available.
const (
	portPoints    = 1
	servicePoints = 2
	hintPoints    = 4
)

// portArchetypes maps open ports to the archetypes they weakly suggest,
// independent of whether the port yielded a descriptor.
var portArchetypes = map[uint16][]string{
	21:   {"storage", "server"},
	22:   {"workstation", "server"},
	23:   {"router", "embedded"},
	25:   {"server"},
	53:   {"router", "server"},
	80:   {"router", "camera", "embedded"},
	139:  {"storage", "workstation"},
	161:  {"router", "embedded"},
	443:  {"router", "server"},
	445:  {"storage", "workstation"},
	515:  {"printer"},
	548:  {"storage"},
	554:  {"camera", "media"},
	631:  {"printer"},
	1723: {"router"},
	1883: {"embedded"},
	3389: {"workstation"},
	5900: {"workstation"},
	7000: {"media"},
	8554: {"camera", "media"},
	8883: {"embedded"},
	9100: {"printer"},
	10000: {"server"},
}

// serviceArchetypes maps confirmed service names to archetypes.
var serviceArchetypes = map[string][]string{
	"SSH":       {"workstation", "server"},
	"Telnet":    {"router", "embedded"},
	"FTP":       {"storage", "server"},
	"SMB":       {"storage", "workstation"},
	"HTTP":      {"router", "embedded"},
	"HTTPS":     {"router", "server"},
	"RTSP":      {"camera", "media"},
	"AirPlay":   {"media"},
	"MQTT":      {"embedded"},
	"SNMP":      {"router", "embedded"},
	"RDP":       {"workstation"},
	"VNC":       {"workstation"},
	"IPP":       {"printer"},
	"LPD":       {"printer"},
	"JetDirect": {"printer"},
	"DNS":       {"router", "server"},
}

// classifyArchetype scores the accumulated evidence against the device
// archetypes and picks the strictly highest score; ties break by the fixed
// priority order, and all-zero evidence yields "unknown". Advisory only:
// the result never gates capability emission. extraHints carries keyword
// evidence from sources outside the per-port descriptors, such as the
// discovery protocols.
func classifyArchetype(openPorts []uint16, services []ServiceDescriptor, extraHints []string) string {
	scores := make(map[string]int, len(archetypePriority))

	for _, port := range openPorts {
		for _, archetype := range portArchetypes[port] {
			scores[archetype] += portPoints
		}
	}
	for _, svc := range services {
		for _, archetype := range serviceArchetypes[svc.Name] {
			scores[archetype] += servicePoints
		}
		for _, hint := range svc.hints {
			if isKnownArchetype(hint) {
				scores[hint] += hintPoints
			}
		}
	}
	for _, hint := range extraHints {
		if isKnownArchetype(hint) {
			scores[hint] += hintPoints
		}
	}

	best := ""
	bestScore := 0
	for _, archetype := range archetypePriority {
		if score := scores[archetype]; score > bestScore {
			best = archetype
			bestScore = score
		}
	}
	if bestScore == 0 {
		return "unknown"
	}
	return best
}

func isKnownArchetype(name string) bool {
	for _, archetype := range archetypePriority {
		if strings.EqualFold(archetype, name) {
			return true
		}
	}
	return false
}
