package scan

import (
	"context"
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestRunDiscoveryMergesInCheckOrder(t *testing.T) {
	first := func(ctx context.Context, host string) *discoveryResult {
		return &discoveryResult{
			Details:      map[string]string{"source": "first"},
			Hints:        []string{"printer"},
			Capabilities: []Capability{{Name: "First", Description: "a"}},
		}
	}
	second := func(ctx context.Context, host string) *discoveryResult {
		return &discoveryResult{
			Details:      map[string]string{"source": "second", "extra": "yes"},
			Capabilities: []Capability{{Name: "Second", Description: "b"}},
		}
	}

	merged := runDiscovery(context.Background(), "192.0.2.1", []discoveryCheck{first, second})

	if merged.Details["source"] != "first" {
		t.Fatalf("earlier checks must win detail conflicts, got %q", merged.Details["source"])
	}
	if merged.Details["extra"] != "yes" {
		t.Fatalf("non-conflicting details must merge")
	}
	if len(merged.Capabilities) != 2 || merged.Capabilities[0].Name != "First" {
		t.Fatalf("capabilities must keep check order, got %+v", merged.Capabilities)
	}
	if len(merged.Hints) != 1 || merged.Hints[0] != "printer" {
		t.Fatalf("hints must merge, got %v", merged.Hints)
	}
}

func TestRunDiscoveryIgnoresEmptyResults(t *testing.T) {
	failing := func(ctx context.Context, host string) *discoveryResult { return nil }
	merged := runDiscovery(context.Background(), "192.0.2.1", []discoveryCheck{failing, failing})

	if !merged.empty() {
		t.Fatalf("expected empty merge, got %+v", merged)
	}
}

func TestEntryMatchesHost(t *testing.T) {
	entry := &zeroconf.ServiceEntry{AddrIPv4: []net.IP{net.ParseIP("192.0.2.7")}}
	if !entryMatchesHost(entry, "192.0.2.7") {
		t.Fatalf("expected IPv4 match")
	}
	if entryMatchesHost(entry, "192.0.2.8") {
		t.Fatalf("unexpected match for different host")
	}
	if entryMatchesHost(&zeroconf.ServiceEntry{}, "192.0.2.7") {
		t.Fatalf("entry without addresses must not match")
	}
}

func TestDiscoveryResultEmpty(t *testing.T) {
	var nilResult *discoveryResult
	if !nilResult.empty() {
		t.Fatalf("nil result must report empty")
	}
	if !(&discoveryResult{Details: map[string]string{}}).empty() {
		t.Fatalf("zero-value result must report empty")
	}
	if (&discoveryResult{Hints: []string{"camera"}}).empty() {
		t.Fatalf("result with hints is not empty")
	}
}
