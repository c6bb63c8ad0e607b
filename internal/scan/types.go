package scan

import "errors"

// Kind classifies the shape of a raw device address.
type Kind string

const (
	// KindLinkLayer is a MAC-style identifier (colon separated hex groups).
	KindLinkLayer Kind = "link-layer"
	// KindIPLiteral is a dotted-quad IPv4 (or bracketed IPv6) literal.
	KindIPLiteral Kind = "ip"
	// KindLocalHandle is a local capture handle such as "cam:0" or "/dev/video0".
	KindLocalHandle Kind = "local-handle"
	// KindUnknown marks an address that matched no rule; the engine degrades
	// to the generic address path instead of failing.
	KindUnknown Kind = "unknown"
)

// DeviceStatus is the coarse liveness state of a target.
type DeviceStatus string

const (
	StatusUnknown DeviceStatus = "unknown"
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
)

// ProbeResult is one (address, port, protocol) attempt. Append-only evidence:
// never mutated once produced.
type ProbeResult struct {
	Port      uint16 `json:"port"`
	Protocol  string `json:"protocol"`
	Open      bool   `json:"open"`
	LatencyMs uint32 `json:"latencyMs,omitempty"`
	Banner    []byte `json:"banner,omitempty"`
}

// Capability is a user-meaningful operation the target plausibly supports.
// Equality for deduplication is defined on (Name, Description).
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
	Protocol    string `json:"protocol,omitempty"`
	Port        uint16 `json:"port,omitempty"`
	Operation   string `json:"operation,omitempty"`
	URL         string `json:"url,omitempty"`
}

// ServiceDescriptor describes one identified service. A single open port
// yields at most one descriptor; the first matching fingerprinter wins.
type ServiceDescriptor struct {
	Port       uint16            `json:"port"`
	Name       string            `json:"service"`
	Version    string            `json:"version,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Operations []Capability      `json:"operations,omitempty"`

	// hints are archetype keywords seeded by the fingerprinter (for example
	// "router" text found on a web page). Consumed by the classifier only.
	hints []string
}

// DeviceProfile aggregates everything learned about a target during one scan.
// Built incrementally by the orchestrator; all fields are derived from probe
// evidence, never probed directly.
type DeviceProfile struct {
	Address       string              `json:"address"`
	Kind          Kind                `json:"type"`
	Status        DeviceStatus        `json:"status"`
	OpenPorts     []uint16            `json:"open_ports"`
	Services      []ServiceDescriptor `json:"services"`
	Archetype     string              `json:"device_type,omitempty"`
	Vendor        string              `json:"vendor,omitempty"`
	LatencyMs     float64             `json:"latency_ms,omitempty"`
	ProtocolsSeen []string            `json:"protocols_seen,omitempty"`
}

// ScanResult is the external contract: always a well-formed envelope.
type ScanResult struct {
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	Capabilities []Capability  `json:"capabilities"`
	DeviceInfo   DeviceProfile `json:"device_info"`
}

// Request carries the parameters of a single scan operation.
type Request struct {
	Address      string `json:"address"`
	DeclaredType string `json:"declaredType,omitempty"`
	Method       string `json:"method,omitempty"`
	ID           string `json:"id,omitempty"`
}

// Scan methods. MethodAuto runs the address classifier first; the explicit
// methods jump straight to the matching protocol family.
const (
	MethodAuto         = "auto"
	MethodLinkLayer    = "link-layer"
	MethodAddressBased = "address-based"
	MethodLocalCapture = "local-capture"
)

// ErrInvalidMethod indicates an unsupported scan method was requested.
var ErrInvalidMethod = errors.New("unsupported scan method")

// ErrEmptyAddress indicates the request carried no address.
var ErrEmptyAddress = errors.New("address is required")

// Backends is the capability-injection configuration: which optional local
// subsystems are present. Engine behaviour is a pure function of this value,
// not of process-wide state.
type Backends struct {
	Scanner   bool `json:"scanner" yaml:"scanner"`
	Bluetooth bool `json:"bluetooth" yaml:"bluetooth"`
	Camera    bool `json:"camera" yaml:"camera"`
}
