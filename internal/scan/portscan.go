package scan

import (
	"context"
	"net"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

// Candidate port supersets. TCP covers the common administrative,
// file-transfer, remote-access, streaming, messaging and printing ports.
// UDP ports have no handshake and need a protocol-specific exchange, so only
// ports with a dedicated fingerprinter are listed; the discovery-protocol
// ports (1900, 3702, 5353) are exercised by the discovery checks instead.
var (
	defaultTCPPorts = []uint16{
		21, 22, 23, 25, 80, 110, 139, 143, 443, 445,
		515, 548, 554, 631, 1723, 1883, 3389, 5000, 5900, 7000,
		8000, 8080, 8443, 8554, 8883, 9090, 9100, 10000,
	}
	defaultUDPPorts = []uint16{53, 161}
)

// portScanner finds open ports on a single target. When an external nmap
// binary is available it is preferred for the TCP set; the manual per-port
// connect loop is the fallback. Both paths yield the same []ProbeResult
// contract.
type portScanner struct {
	log         *logrus.Entry
	nmapPath    string
	dialTimeout time.Duration
	workers     int
}

func newPortScanner(log *logrus.Entry, scannerBackend bool, dialTimeout time.Duration, workers int) *portScanner {
	s := &portScanner{log: log, dialTimeout: dialTimeout, workers: workers}
	if s.dialTimeout <= 0 {
		s.dialTimeout = time.Second
	}
	if s.workers <= 0 {
		s.workers = 16
	}
	if scannerBackend {
		if path, err := exec.LookPath("nmap"); err == nil {
			s.nmapPath = path
		}
	}
	return s
}

// Scan probes the TCP candidate set and returns one ProbeResult per open
// port, sorted by port number.
func (s *portScanner) Scan(ctx context.Context, host string, ports []uint16) []ProbeResult {
	if len(ports) == 0 {
		return nil
	}

	if s.nmapPath != "" {
		if results, err := s.scanWithNmap(ctx, host, ports); err == nil {
			return results
		} else if !ctxError(ctx, err) {
			s.log.WithError(err).Debug("nmap scan failed, falling back to connect scan")
		}
	}
	return s.scanManual(ctx, host, ports)
}

// scanWithNmap delegates to the external scanner for the whole port set.
func (s *portScanner) scanWithNmap(ctx context.Context, host string, ports []uint16) ([]ProbeResult, error) {
	specs := make([]string, 0, len(ports))
	for _, port := range ports {
		specs = append(specs, strconv.Itoa(int(port)))
	}

	scanner, err := nmap.NewScanner(ctx,
		nmap.WithBinaryPath(s.nmapPath),
		nmap.WithTargets(host),
		nmap.WithPorts(strings.Join(specs, ",")),
		nmap.WithConnectScan(),
		nmap.WithSkipHostDiscovery(),
		nmap.WithTimingTemplate(nmap.TimingAggressive),
	)
	if err != nil {
		return nil, err
	}

	run, _, err := scanner.Run()
	if err != nil {
		return nil, err
	}

	var results []ProbeResult
	for _, h := range run.Hosts {
		for _, port := range h.Ports {
			if port.State.State != string(nmap.Open) {
				continue
			}
			results = append(results, ProbeResult{
				Port:     port.ID,
				Protocol: "tcp",
				Open:     true,
			})
		}
	}
	sortProbes(results)
	return results, nil
}

// scanManual runs the per-port connect loop on a bounded worker pool. A
// successful connect and immediate close marks the port open; the first
// unsolicited bytes (if any) are kept as banner evidence.
func (s *portScanner) scanManual(ctx context.Context, host string, ports []uint16) []ProbeResult {
	pool, err := ants.NewPool(min(s.workers, len(ports)))
	if err != nil {
		pool = nil
	} else {
		defer pool.Release()
	}

	dialer := &net.Dialer{Timeout: s.dialTimeout}
	var mu sync.Mutex
	var results []ProbeResult
	var wg sync.WaitGroup

	for _, port := range ports {
		port := port
		task := func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			probe, ok := connectProbe(ctx, dialer, host, port)
			if !ok {
				return
			}
			mu.Lock()
			results = append(results, probe)
			mu.Unlock()
		}

		wg.Add(1)
		if pool != nil {
			if err := pool.Submit(task); err != nil {
				wg.Done()
			}
			continue
		}
		go task()
	}
	wg.Wait()

	sortProbes(results)
	return results
}

// connectProbe attempts a single TCP connect with a short banner read.
func connectProbe(ctx context.Context, dialer *net.Dialer, host string, port uint16) (ProbeResult, bool) {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	started := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ProbeResult{}, false
	}
	defer conn.Close()

	probe := ProbeResult{
		Port:      port,
		Protocol:  "tcp",
		Open:      true,
		LatencyMs: uint32(time.Since(started).Milliseconds()),
	}

	// Services like SSH, FTP and SMTP greet unprompted; keep whatever
	// arrives within the window as evidence for the fingerprinters.
	_ = conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
	buf := make([]byte, 256)
	if n, err := conn.Read(buf); err == nil && n > 0 {
		probe.Banner = buf[:n]
	}
	return probe, true
}

func sortProbes(results []ProbeResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Port == results[j].Port {
			return results[i].Protocol < results[j].Protocol
		}
		return results[i].Port < results[j].Port
	})
}

func formatHostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
