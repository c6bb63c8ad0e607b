package scan

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	defaultDeadline = 15 * time.Second
)

// Options tunes a single Engine. Zero values fall back to sensible defaults;
// Backends declares which optional local subsystems exist so behaviour stays
// a pure function of configuration.
type Options struct {
	TCPPorts     []uint16
	UDPPorts     []uint16
	DialTimeout  time.Duration
	ProbeTimeout time.Duration
	Deadline     time.Duration
	Workers      int
	Backends     Backends
}

// portProber is the port-scanning seam; the production implementation is
// portScanner.
type portProber interface {
	Scan(ctx context.Context, host string, ports []uint16) []ProbeResult
}

// Engine orchestrates one capability scan: classify the address, establish
// reachability, enumerate ports, fingerprint services, run discovery, then
// classify and synthesize. All collaborator seams are injectable for tests.
type Engine struct {
	log  *logrus.Entry
	opts Options

	reach     func(ctx context.Context, host string) reachability
	prober    portProber
	registry  []Fingerprinter
	udp       []Fingerprinter
	discovery []discoveryCheck
	macFn     func(ctx context.Context, host string) string
	vendorFn  func(mac string) string
}

// NewEngine builds a production engine from Options.
func NewEngine(log *logrus.Logger, opts Options) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if len(opts.TCPPorts) == 0 {
		opts.TCPPorts = defaultTCPPorts
	}
	if len(opts.UDPPorts) == 0 {
		opts.UDPPorts = defaultUDPPorts
	}
	if opts.Deadline <= 0 {
		opts.Deadline = defaultDeadline
	}

	entry := log.WithField("component", "engine")
	return &Engine{
		log:       entry,
		opts:      opts,
		reach:     checkReachability,
		prober:    newPortScanner(entry, opts.Backends.Scanner, opts.DialTimeout, opts.Workers),
		registry:  defaultRegistry(opts.ProbeTimeout),
		udp:       []Fingerprinter{&dnsFingerprinter{timeout: 2 * time.Second}, &snmpFingerprinter{timeout: 2 * time.Second}},
		discovery: defaultDiscoveryChecks(),
		macFn:     resolveMAC,
		vendorFn:  lookupVendor,
	}
}

// Scan runs one discovery pass and always returns a well-formed envelope;
// probe failures degrade the result, they never surface as errors.
func (e *Engine) Scan(ctx context.Context, req Request) (result ScanResult) {
	started := time.Now()
	log := e.log.WithField("address", req.Address)
	if req.ID != "" {
		log = log.WithField("scan_id", req.ID)
	}

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("scan panicked")
			result = errorResult(req, fmt.Sprintf("internal error: %v", r))
		}
		log.WithFields(logrus.Fields{
			"status":       result.Status,
			"capabilities": len(result.Capabilities),
			"duration":     time.Since(started).Round(time.Millisecond),
		}).Info("scan finished")
	}()

	address := strings.TrimSpace(req.Address)
	if address == "" {
		return errorResult(req, ErrEmptyAddress.Error())
	}
	req.Address = address

	method := req.Method
	if method == "" {
		method = MethodAuto
	}
	switch method {
	case MethodAuto, MethodLinkLayer, MethodAddressBased, MethodLocalCapture:
	default:
		return errorResult(req, ErrInvalidMethod.Error()+": "+req.Method)
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Deadline)
	defer cancel()

	kind := Classify(address)
	if method == MethodAuto {
		switch kind {
		case KindLinkLayer:
			method = MethodLinkLayer
		case KindLocalHandle:
			method = MethodLocalCapture
		default:
			method = MethodAddressBased
		}
	}

	switch method {
	case MethodLinkLayer:
		return e.scanLinkLayer(req)
	case MethodLocalCapture:
		return e.scanLocalCapture(req)
	default:
		return e.scanAddress(ctx, req, kind)
	}
}

// scanLinkLayer handles MAC-style targets. Without a live transport to the
// device the capabilities are declared, not verified, so Available reflects
// only whether the local backend could act on them.
func (e *Engine) scanLinkLayer(req Request) ScanResult {
	profile := DeviceProfile{
		Address: req.Address,
		Kind:    KindLinkLayer,
		Status:  StatusUnknown,
		Vendor:  e.vendorFn(req.Address),
	}

	caps := []Capability{
		capWake,
		{
			Name:        "Pair device",
			Description: "Initiate a Bluetooth pairing handshake",
			Available:   e.opts.Backends.Bluetooth,
			Protocol:    "bluetooth",
			Operation:   "pair",
		},
		{
			Name:        "Query Bluetooth services",
			Description: "Enumerate the device's Bluetooth service records",
			Available:   e.opts.Backends.Bluetooth,
			Protocol:    "bluetooth",
			Operation:   "sdp",
		},
		capMonitor,
	}

	return ScanResult{
		Status:       statusSuccess,
		Capabilities: dedupeCapabilities(caps),
		DeviceInfo:   profile,
	}
}

// scanLocalCapture handles local capture handles such as "cam:0".
func (e *Engine) scanLocalCapture(req Request) ScanResult {
	profile := DeviceProfile{
		Address:   req.Address,
		Kind:      KindLocalHandle,
		Status:    StatusUnknown,
		Archetype: "camera",
	}

	caps := []Capability{
		{
			Name:        "Capture video",
			Description: "Record video from the local capture device",
			Available:   e.opts.Backends.Camera,
			Protocol:    "v4l2",
			Operation:   "record",
		},
		{
			Name:        "Capture snapshot",
			Description: "Take a still frame from the local capture device",
			Available:   e.opts.Backends.Camera,
			Protocol:    "v4l2",
			Operation:   "snapshot",
		},
	}

	return ScanResult{
		Status:       statusSuccess,
		Capabilities: dedupeCapabilities(caps),
		DeviceInfo:   profile,
	}
}

// scanAddress is the full network pipeline for IP targets.
func (e *Engine) scanAddress(ctx context.Context, req Request, kind Kind) ScanResult {
	profile := DeviceProfile{
		Address: req.Address,
		Kind:    kind,
	}

	reach := e.reach(ctx, req.Address)
	if !reach.Reachable {
		profile.Status = StatusOffline
		profile.Archetype = "unknown"
		if mac := e.macFn(ctx, req.Address); mac != "" {
			profile.Vendor = e.vendorFn(mac)
		}
		return ScanResult{
			Status:       statusSuccess,
			Capabilities: synthesizeCapabilities(&profile, nil),
			DeviceInfo:   profile,
		}
	}

	profile.Status = StatusOnline
	profile.LatencyMs = float64(reach.Latency.Microseconds()) / 1000

	// Discovery runs alongside the TCP sweep; neither gates the other.
	var discovered *discoveryResult
	var discWg sync.WaitGroup
	discWg.Add(1)
	go func() {
		defer discWg.Done()
		discovered = runDiscovery(ctx, req.Address, e.discovery)
	}()

	probes := e.prober.Scan(ctx, req.Address, e.opts.TCPPorts)
	for _, probe := range probes {
		profile.OpenPorts = append(profile.OpenPorts, probe.Port)
	}

	services := e.fingerprintAll(ctx, req.Address, probes)

	// A parsed UDP response is openness evidence too; those ports belong in
	// open_ports alongside the TCP sweep results.
	udpServices := e.probeUDP(ctx, req.Address)
	for _, svc := range udpServices {
		profile.OpenPorts = append(profile.OpenPorts, svc.Port)
	}
	services = append(services, udpServices...)

	sort.Slice(services, func(i, j int) bool { return services[i].Port < services[j].Port })
	sort.Slice(profile.OpenPorts, func(i, j int) bool { return profile.OpenPorts[i] < profile.OpenPorts[j] })
	profile.Services = services

	discWg.Wait()

	for _, svc := range services {
		profile.ProtocolsSeen = appendUnique(profile.ProtocolsSeen, strings.ToLower(svc.Name))
	}
	if mac := e.macFn(ctx, req.Address); mac != "" && profile.Vendor == "" {
		profile.Vendor = e.vendorFn(mac)
	}

	var extraHints []string
	if discovered != nil {
		extraHints = discovered.Hints
	}
	profile.Archetype = classifyArchetype(profile.OpenPorts, profile.Services, extraHints)
	if profile.Archetype == "unknown" && isKnownArchetype(req.DeclaredType) {
		// The caller's declared type is a hint, consulted only when probing
		// produced no evidence of its own.
		profile.Archetype = strings.ToLower(req.DeclaredType)
	}

	var discoveredCaps []Capability
	if discovered != nil {
		discoveredCaps = discovered.Capabilities
	}

	return ScanResult{
		Status:       statusSuccess,
		Capabilities: synthesizeCapabilities(&profile, discoveredCaps),
		DeviceInfo:   profile,
	}
}

// fingerprintAll fans the registry out over the open ports with a bounded
// number of in-flight probes and merges under a single lock.
func (e *Engine) fingerprintAll(ctx context.Context, host string, probes []ProbeResult) []ServiceDescriptor {
	workers := e.opts.Workers
	if workers <= 0 {
		workers = 8
	}

	var mu sync.Mutex
	var services []ServiceDescriptor
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for _, probe := range probes {
		if !probe.Open || probe.Protocol != "tcp" {
			continue
		}
		probe := probe
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if desc := fingerprintPort(ctx, host, probe, e.registry); desc != nil {
				mu.Lock()
				services = append(services, *desc)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return services
}

// probeUDP exercises the handshake-less UDP fingerprinters directly; a parsed
// response is the only openness signal those ports can give.
func (e *Engine) probeUDP(ctx context.Context, host string) []ServiceDescriptor {
	var services []ServiceDescriptor
	for _, port := range e.opts.UDPPorts {
		for _, fp := range e.udp {
			if !fp.Match(port) {
				continue
			}
			probe := ProbeResult{Port: port, Protocol: "udp", Open: true}
			if desc := fp.Probe(ctx, host, probe); desc != nil {
				services = append(services, *desc)
				break
			}
		}
	}
	return services
}

func errorResult(req Request, message string) ScanResult {
	return ScanResult{
		Status:       statusError,
		Error:        message,
		Capabilities: []Capability{},
		DeviceInfo: DeviceProfile{
			Address: req.Address,
			Kind:    Classify(req.Address),
			Status:  StatusUnknown,
		},
	}
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}
