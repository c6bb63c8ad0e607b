package scan

// archetypeCapabilities are additive operation templates appended after the
// fingerprinter-produced operations; they never substitute them.
var archetypeCapabilities = map[string][]Capability{
	"router": {
		{Name: "Open admin panel", Description: "Manage router settings from the web interface", Available: true, Operation: "admin"},
		{Name: "View connected clients", Description: "List devices attached to the router", Available: true, Operation: "clients"},
	},
	"printer": {
		{Name: "Print queue", Description: "Inspect and manage queued print jobs", Available: true, Operation: "queue"},
		{Name: "Printer status", Description: "Check supply levels and printer state", Available: true, Operation: "status"},
	},
	"camera": {
		{Name: "View stream", Description: "Watch the camera's live video feed", Available: true, Operation: "stream"},
		{Name: "Capture snapshot", Description: "Take a still image from the camera", Available: true, Operation: "snapshot"},
	},
	"storage": {
		{Name: "Browse files", Description: "Access files stored on the appliance", Available: true, Operation: "browse"},
		{Name: "Check storage health", Description: "Review volume and disk status", Available: true, Operation: "health"},
	},
	"media": {
		{Name: "Play media", Description: "Start playback on the media device", Available: true, Operation: "play"},
	},
	"embedded": {
		{Name: "Read sensor data", Description: "Poll the device's telemetry endpoints", Available: true, Operation: "telemetry"},
	},
}

// universal fallbacks so every scan yields something actionable.
var (
	capMonitor = Capability{
		Name:        "Monitor availability",
		Description: "Track whether the device responds over time",
		Available:   true,
		Operation:   "monitor",
	}
	capWake = Capability{
		Name:        "Wake device",
		Description: "Send a wake-on-LAN magic packet",
		Available:   true,
		Protocol:    "wol",
		Operation:   "wake",
	}
)

// synthesizeCapabilities merges fingerprinter operations, archetype
// templates, discovery capabilities and the universal fallbacks into the
// final ordered list, deduplicated on (name, description) preserving
// first-seen order.
func synthesizeCapabilities(profile *DeviceProfile, discovered []Capability) []Capability {
	var merged []Capability

	for _, svc := range profile.Services {
		merged = append(merged, svc.Operations...)
	}
	merged = append(merged, archetypeCapabilities[profile.Archetype]...)
	merged = append(merged, discovered...)

	switch profile.Status {
	case StatusOffline:
		merged = append(merged, capWake, capMonitor)
	default:
		merged = append(merged, capMonitor)
	}

	return dedupeCapabilities(merged)
}

// dedupeCapabilities is the stable order-preserving dedup on (name,
// description); two capabilities with the same pair are the same capability
// even when discovered via different probes.
func dedupeCapabilities(caps []Capability) []Capability {
	type key struct{ name, description string }
	seen := make(map[key]struct{}, len(caps))
	out := make([]Capability, 0, len(caps))
	for _, c := range caps {
		k := key{c.Name, c.Description}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}
