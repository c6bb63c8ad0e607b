package scan

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeProber struct {
	results []ProbeResult
	called  bool
}

func (f *fakeProber) Scan(ctx context.Context, host string, ports []uint16) []ProbeResult {
	f.called = true
	return f.results
}

func testEngine(backends Backends) *Engine {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	engine := NewEngine(log, Options{Backends: backends, Deadline: 5 * time.Second})
	engine.reach = func(ctx context.Context, host string) reachability { return reachability{} }
	engine.prober = &fakeProber{}
	engine.udp = nil
	engine.discovery = nil
	engine.macFn = func(ctx context.Context, host string) string { return "" }
	engine.vendorFn = func(mac string) string { return "" }
	return engine
}

func TestScanEmptyAddress(t *testing.T) {
	engine := testEngine(Backends{})
	result := engine.Scan(context.Background(), Request{Address: "  "})

	if result.Status != statusError {
		t.Fatalf("expected error envelope, got %+v", result)
	}
	if result.Error == "" {
		t.Fatalf("error envelope must carry a message")
	}
	if result.Capabilities == nil {
		t.Fatalf("capabilities must be an empty list, not nil")
	}
}

func TestScanInvalidMethod(t *testing.T) {
	engine := testEngine(Backends{})
	result := engine.Scan(context.Background(), Request{Address: "192.168.1.10", Method: "teleport"})

	if result.Status != statusError {
		t.Fatalf("expected error envelope for unknown method, got %+v", result)
	}
}

func TestScanOfflineDevice(t *testing.T) {
	engine := testEngine(Backends{})
	prober := engine.prober.(*fakeProber)

	result := engine.Scan(context.Background(), Request{Address: "192.168.1.50"})

	if result.Status != statusSuccess {
		t.Fatalf("offline device is a successful scan, got %+v", result)
	}
	if result.DeviceInfo.Status != StatusOffline {
		t.Fatalf("expected offline status, got %q", result.DeviceInfo.Status)
	}
	if prober.called {
		t.Fatalf("port scan must be skipped for unreachable targets")
	}
	if len(result.Capabilities) != 2 {
		t.Fatalf("expected wake and monitor capabilities, got %+v", result.Capabilities)
	}
	if result.Capabilities[0].Name != capWake.Name {
		t.Fatalf("expected wake capability first, got %+v", result.Capabilities[0])
	}
}

func TestScanSSHWorkstation(t *testing.T) {
	engine := testEngine(Backends{})
	engine.reach = func(ctx context.Context, host string) reachability {
		return reachability{Reachable: true, Latency: 3 * time.Millisecond}
	}
	engine.prober = &fakeProber{results: []ProbeResult{
		{Port: 22, Protocol: "tcp", Open: true, Banner: []byte("SSH-2.0-OpenSSH_9.6\r\n")},
	}}
	sshCap := Capability{
		Name:        "SSH connection",
		Description: "Open an SSH session",
		Available:   true,
		Protocol:    "ssh",
		Port:        22,
		Operation:   "connect",
	}
	engine.registry = []Fingerprinter{&fakeFingerprinter{
		name:    "ssh",
		matched: 22,
		desc: &ServiceDescriptor{
			Port:       22,
			Name:       "SSH",
			Version:    "OpenSSH_9.6",
			Operations: []Capability{sshCap},
		},
	}}

	result := engine.Scan(context.Background(), Request{Address: "192.168.1.20"})

	if result.Status != statusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	info := result.DeviceInfo
	if info.Status != StatusOnline {
		t.Fatalf("expected online, got %q", info.Status)
	}
	if len(info.OpenPorts) != 1 || info.OpenPorts[0] != 22 {
		t.Fatalf("expected open port 22, got %v", info.OpenPorts)
	}
	if len(info.Services) != 1 || info.Services[0].Name != "SSH" {
		t.Fatalf("expected one SSH service, got %+v", info.Services)
	}
	if info.Archetype != "workstation" {
		t.Fatalf("expected workstation archetype, got %q", info.Archetype)
	}

	if len(result.Capabilities) == 0 || result.Capabilities[0].Name != sshCap.Name {
		t.Fatalf("service operations must lead the capability list, got %+v", result.Capabilities)
	}
	last := result.Capabilities[len(result.Capabilities)-1]
	if last.Name != capMonitor.Name {
		t.Fatalf("monitor fallback must close the list, got %+v", last)
	}
}

func TestScanUDPServicePortsReported(t *testing.T) {
	engine := testEngine(Backends{})
	engine.reach = func(ctx context.Context, host string) reachability {
		return reachability{Reachable: true, Latency: time.Millisecond}
	}
	engine.udp = []Fingerprinter{&fakeFingerprinter{
		name:    "dns",
		matched: 53,
		desc: &ServiceDescriptor{
			Port: 53,
			Name: "DNS",
			Operations: []Capability{{
				Name:        "Resolve names",
				Description: "Use the device as a DNS resolver",
				Available:   true,
				Protocol:    "dns",
				Port:        53,
			}},
		},
	}}

	result := engine.Scan(context.Background(), Request{Address: "192.168.1.53"})

	if len(result.DeviceInfo.Services) != 1 || result.DeviceInfo.Services[0].Name != "DNS" {
		t.Fatalf("expected the UDP-confirmed DNS service, got %+v", result.DeviceInfo.Services)
	}
	if len(result.DeviceInfo.OpenPorts) != 1 || result.DeviceInfo.OpenPorts[0] != 53 {
		t.Fatalf("a UDP-confirmed service must surface its port in open_ports, got %v", result.DeviceInfo.OpenPorts)
	}
}

func TestScanLinkLayerTarget(t *testing.T) {
	engine := testEngine(Backends{})
	engine.vendorFn = func(mac string) string { return "Acme Corp" }

	result := engine.Scan(context.Background(), Request{Address: "AA:BB:CC:DD:EE:FF"})

	if result.Status != statusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.DeviceInfo.Kind != KindLinkLayer {
		t.Fatalf("expected link-layer kind, got %q", result.DeviceInfo.Kind)
	}
	if result.DeviceInfo.Vendor != "Acme Corp" {
		t.Fatalf("expected vendor lookup, got %q", result.DeviceInfo.Vendor)
	}

	for _, c := range result.Capabilities {
		if c.Protocol == "bluetooth" && c.Available {
			t.Fatalf("bluetooth capability must be unavailable without the backend: %+v", c)
		}
	}
}

func TestScanLinkLayerWithBluetoothBackend(t *testing.T) {
	engine := testEngine(Backends{Bluetooth: true})

	result := engine.Scan(context.Background(), Request{Address: "AA:BB:CC:DD:EE:FF"})

	found := false
	for _, c := range result.Capabilities {
		if c.Protocol == "bluetooth" {
			found = true
			if !c.Available {
				t.Fatalf("bluetooth capability should be available with the backend: %+v", c)
			}
		}
	}
	if !found {
		t.Fatalf("expected bluetooth capabilities, got %+v", result.Capabilities)
	}
}

func TestScanLocalCapture(t *testing.T) {
	engine := testEngine(Backends{Camera: true})

	result := engine.Scan(context.Background(), Request{Address: "cam:0"})

	if result.DeviceInfo.Kind != KindLocalHandle {
		t.Fatalf("expected local-handle kind, got %q", result.DeviceInfo.Kind)
	}
	if result.DeviceInfo.Archetype != "camera" {
		t.Fatalf("expected camera archetype, got %q", result.DeviceInfo.Archetype)
	}
	if len(result.Capabilities) == 0 || !result.Capabilities[0].Available {
		t.Fatalf("capture capabilities should be available with the camera backend: %+v", result.Capabilities)
	}
}

func TestScanMethodOverride(t *testing.T) {
	// An explicit method wins over what the classifier would choose.
	engine := testEngine(Backends{})
	result := engine.Scan(context.Background(), Request{Address: "AA:BB:CC:DD:EE:FF", Method: MethodAddressBased})

	if result.DeviceInfo.Status != StatusOffline {
		t.Fatalf("address-based scan of a MAC should run the network path, got %+v", result.DeviceInfo)
	}
}

func TestScanRecoversFromPanic(t *testing.T) {
	engine := testEngine(Backends{})
	engine.reach = func(ctx context.Context, host string) reachability {
		panic("probe blew up")
	}

	result := engine.Scan(context.Background(), Request{Address: "192.168.1.99"})

	if result.Status != statusError {
		t.Fatalf("panic must degrade to an error envelope, got %+v", result)
	}
	if result.Capabilities == nil {
		t.Fatalf("even the panic envelope carries an empty capability list")
	}
}
