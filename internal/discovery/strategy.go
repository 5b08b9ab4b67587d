// Package discovery locates a running language server process, extracts its
// port and secret from the invocation parameters, and confirms liveness by
// probing candidate ports. All OS-specific text scraping lives behind the
// Strategy interface so each variant can be tested with captured tool output.
package discovery

import (
	"regexp"
	"runtime"
	"slices"
	"strconv"
)

// Strategy produces the OS commands used to enumerate processes and listening
// ports, and parses their output. A parse miss is an absence, never an error:
// the server simply is not running, or the tool output changed shape.
type Strategy interface {
	// ListCommand is the argv used to enumerate candidate server processes
	// with their full command lines.
	ListCommand() []string
	// PortCommands are the argvs used to enumerate listening ports for a
	// pid, tried in order until one yields results.
	PortCommands(pid int) [][]string
	// ParseProcess extracts the first matching server process from the list
	// command's output.
	ParseProcess(output string) (*ProcessMatch, bool)
	// ParsePorts extracts the listening ports owned by pid from a port
	// command's output, deduplicated and sorted ascending.
	ParsePorts(output string, pid int) []int
}

// ProcessMatch is the raw result of scanning the process table: the pid plus
// whatever port and secret were present on the command line. Port may be 0
// until probing resolves a live one.
type ProcessMatch struct {
	PID    int
	Port   int
	Secret string
}

// Command-line markers for the target server. The data-directory marker
// identifies our server among unrelated processes with similar binary names.
const (
	processNamePattern = "language_server"
	dataDirMarker      = ".codeium"
	secretFlagMarker   = "--csrf_token"
)

var (
	portFlagRe   = regexp.MustCompile(`--(?:extension_)?server_port[=\s](\d+)`)
	secretFlagRe = regexp.MustCompile(`--csrf_token[=\s]([A-Za-z0-9._~-]+)`)
)

// StrategyForOS returns the strategy for a GOOS value, defaulting to the
// linux variant for other unixes.
func StrategyForOS(goos string) Strategy {
	switch goos {
	case "windows":
		return &windowsStrategy{}
	case "darwin":
		return &darwinStrategy{}
	default:
		return &linuxStrategy{}
	}
}

// CurrentStrategy returns the strategy for the running OS.
func CurrentStrategy() Strategy {
	return StrategyForOS(runtime.GOOS)
}

// extractFlags pulls the port and secret flags out of a command line. Either
// may be absent.
func extractFlags(cmdline string) (port int, secret string) {
	if m := portFlagRe.FindStringSubmatch(cmdline); len(m) > 1 {
		port, _ = strconv.Atoi(m[1])
	}
	if m := secretFlagRe.FindStringSubmatch(cmdline); len(m) > 1 {
		secret = m[1]
	}
	return port, secret
}

// normalizePorts deduplicates and sorts a port list ascending.
func normalizePorts(ports []int) []int {
	slices.Sort(ports)
	return slices.Compact(ports)
}
