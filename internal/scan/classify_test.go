package scan

import "testing"

func TestClassifyArchetypeNoEvidence(t *testing.T) {
	if got := classifyArchetype(nil, nil, nil); got != "unknown" {
		t.Fatalf("expected unknown for empty evidence, got %q", got)
	}
}

func TestClassifyArchetypeSSHTieBreak(t *testing.T) {
	// Port 22 and an SSH descriptor score workstation and server equally;
	// the priority order resolves the tie to workstation.
	services := []ServiceDescriptor{{Port: 22, Name: "SSH"}}
	if got := classifyArchetype([]uint16{22}, services, nil); got != "workstation" {
		t.Fatalf("expected workstation from SSH tie-break, got %q", got)
	}
}

func TestClassifyArchetypePrinterPorts(t *testing.T) {
	services := []ServiceDescriptor{{Port: 631, Name: "IPP"}}
	if got := classifyArchetype([]uint16{631, 9100}, services, nil); got != "printer" {
		t.Fatalf("expected printer, got %q", got)
	}
}

func TestClassifyArchetypeHintOutweighsPorts(t *testing.T) {
	// Open web ports alone lean router; a camera keyword hint on the web
	// descriptor must override them.
	services := []ServiceDescriptor{{Port: 80, Name: "HTTP", hints: []string{"camera"}}}
	if got := classifyArchetype([]uint16{80, 443}, services, nil); got != "camera" {
		t.Fatalf("expected camera from content hint, got %q", got)
	}
}

func TestClassifyArchetypeExtraHints(t *testing.T) {
	// Discovery-protocol hints count like fingerprinter hints.
	if got := classifyArchetype([]uint16{80}, nil, []string{"printer"}); got != "printer" {
		t.Fatalf("expected printer from discovery hint, got %q", got)
	}
}

func TestClassifyArchetypeIgnoresUnknownHints(t *testing.T) {
	services := []ServiceDescriptor{{Port: 80, Name: "HTTP", hints: []string{"toaster"}}}
	if got := classifyArchetype(nil, services, nil); got != "router" {
		t.Fatalf("expected unknown hint to be ignored, got %q", got)
	}
}

func TestClassifyArchetypeRTSPCamera(t *testing.T) {
	services := []ServiceDescriptor{{Port: 554, Name: "RTSP", hints: []string{"camera"}}}
	if got := classifyArchetype([]uint16{554}, services, nil); got != "camera" {
		t.Fatalf("expected camera for RTSP evidence, got %q", got)
	}
}
