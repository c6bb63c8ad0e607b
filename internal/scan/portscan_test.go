package scan

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogEntry() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log.WithField("component", "test")
}

// startListener binds an ephemeral loopback port and answers connections,
// optionally greeting with banner.
func startListener(t *testing.T, banner string) (string, uint16) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to bind loopback listener: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			if banner != "" {
				_, _ = conn.Write([]byte(banner))
			}
			time.Sleep(50 * time.Millisecond)
			conn.Close()
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	return addr.IP.String(), uint16(addr.Port)
}

func TestManualScanFindsOnlyOpenPort(t *testing.T) {
	host, openPort := startListener(t, "")

	// A second listener is opened and immediately closed to get a port that
	// is known to be free.
	closedListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve closed port: %v", err)
	}
	closedPort := uint16(closedListener.Addr().(*net.TCPAddr).Port)
	closedListener.Close()

	scanner := newPortScanner(testLogEntry(), false, 500*time.Millisecond, 4)
	results := scanner.Scan(context.Background(), host, []uint16{closedPort, openPort})

	if len(results) != 1 {
		t.Fatalf("expected exactly one open port, got %+v", results)
	}
	if results[0].Port != openPort || !results[0].Open {
		t.Fatalf("expected open port %d, got %+v", openPort, results[0])
	}
}

func TestManualScanCapturesBanner(t *testing.T) {
	host, port := startListener(t, "SSH-2.0-TestServer\r\n")

	scanner := newPortScanner(testLogEntry(), false, 500*time.Millisecond, 2)
	results := scanner.Scan(context.Background(), host, []uint16{port})

	if len(results) != 1 {
		t.Fatalf("expected one result, got %+v", results)
	}
	if got := string(results[0].Banner); got == "" {
		t.Fatalf("expected unsolicited banner to be captured")
	}
}

func TestManualScanEmptyPortSet(t *testing.T) {
	scanner := newPortScanner(testLogEntry(), false, 100*time.Millisecond, 2)
	if results := scanner.Scan(context.Background(), "127.0.0.1", nil); results != nil {
		t.Fatalf("expected nil for empty port set, got %+v", results)
	}
}

func TestManualScanHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanner := newPortScanner(testLogEntry(), false, 100*time.Millisecond, 2)
	results := scanner.Scan(ctx, "127.0.0.1", []uint16{1, 2, 3})
	if len(results) != 0 {
		t.Fatalf("expected no results after cancellation, got %+v", results)
	}
}

func TestSortProbes(t *testing.T) {
	results := []ProbeResult{
		{Port: 443, Protocol: "tcp"},
		{Port: 22, Protocol: "tcp"},
		{Port: 80, Protocol: "tcp"},
	}
	sortProbes(results)
	if results[0].Port != 22 || results[1].Port != 80 || results[2].Port != 443 {
		t.Fatalf("expected ascending port order, got %+v", results)
	}
}
