package scan

import (
	"context"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"

	"github.com/endobit/oui"
)

var (
	macPattern        = regexp.MustCompile(`(?i)([0-9a-f]{2}[:-]){5}[0-9a-f]{2}`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// resolveMAC finds the link-layer address behind an IP neighbour, first from
// the kernel ARP table, then via the arp command.
func resolveMAC(ctx context.Context, host string) string {
	if mac := macFromProcARP(host); mac != "" {
		return mac
	}
	return macFromARPCommand(ctx, host)
}

func macFromProcARP(host string) string {
	data, err := os.ReadFile("/proc/net/arp")
	if err != nil {
		return ""
	}
	lines := strings.Split(string(data), "\n")
	for _, line := range lines[1:] {
		fields := whitespacePattern.Split(strings.TrimSpace(line), -1)
		if len(fields) < 4 || fields[0] != host {
			continue
		}
		if mac := normaliseMAC(fields[3]); mac != "" {
			return mac
		}
	}
	return ""
}

func macFromARPCommand(ctx context.Context, host string) string {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "arp", "-a", host)
	} else {
		cmd = exec.CommandContext(ctx, "arp", "-n", host)
	}
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return normaliseMAC(macPattern.FindString(string(output)))
}

// normaliseMAC lowercases and colon-separates a MAC candidate, rejecting
// placeholders like the all-zero entry some ARP tables report.
func normaliseMAC(raw string) string {
	mac := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "-", ":"))
	if !macPattern.MatchString(mac) {
		return ""
	}
	if mac == "00:00:00:00:00:00" || strings.HasPrefix(mac, "ff:ff:ff") {
		return ""
	}
	return mac
}

// lookupVendor maps a MAC to its registered manufacturer.
func lookupVendor(mac string) string {
	if mac == "" {
		return ""
	}
	return oui.Vendor(strings.ToLower(mac))
}
