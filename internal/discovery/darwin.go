package discovery

import (
	"regexp"
	"strconv"
	"strings"
)

// darwinStrategy scrapes ps for the process and lsof for its listening
// sockets, with netstat as the fallback when lsof is unavailable.
type darwinStrategy struct{}

var (
	// "node    ... TCP 127.0.0.1:42100 (LISTEN)"
	lsofListenRe = regexp.MustCompile(`TCP\s+\S*:(\d+)\s+\(LISTEN\)`)
	// "tcp4  0  0  127.0.0.1.42100  *.*  LISTEN"
	netstatDarwinRe = regexp.MustCompile(`^tcp\d*\s+\d+\s+\d+\s+\S+\.(\d+)\s+\S+\s+LISTEN`)
)

func (s *darwinStrategy) ListCommand() []string {
	return []string{"ps", "axo", "pid,command"}
}

func (s *darwinStrategy) PortCommands(pid int) [][]string {
	pidStr := strconv.Itoa(pid)
	return [][]string{
		{"lsof", "-nP", "-iTCP", "-sTCP:LISTEN", "-a", "-p", pidStr},
		{"netstat", "-anv", "-p", "tcp"},
	}
}

func (s *darwinStrategy) ParseProcess(output string) (*ProcessMatch, bool) {
	return parsePSOutput(output)
}

func (s *darwinStrategy) ParsePorts(output string, pid int) []int {
	var ports []int
	for line := range strings.Lines(output) {
		line = strings.TrimSpace(line)
		if m := lsofListenRe.FindStringSubmatch(line); len(m) > 1 {
			if port, err := strconv.Atoi(m[1]); err == nil {
				ports = append(ports, port)
			}
			continue
		}
		// netstat -v appends the owning pid as a trailing column
		if m := netstatDarwinRe.FindStringSubmatch(line); len(m) > 1 {
			if !strings.Contains(line, strconv.Itoa(pid)) {
				continue
			}
			if port, err := strconv.Atoi(m[1]); err == nil {
				ports = append(ports, port)
			}
		}
	}
	return normalizePorts(ports)
}

// parsePSOutput scans ps output lines for the secret flag, splitting each hit
// into pid and command text. Shared by the POSIX variants.
func parsePSOutput(output string) (*ProcessMatch, bool) {
	for line := range strings.Lines(output) {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, secretFlagMarker) {
			continue
		}

		pidStr, cmdline, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(pidStr)
		if err != nil || pid <= 0 {
			continue
		}

		port, secret := extractFlags(cmdline)
		if secret == "" {
			continue
		}
		return &ProcessMatch{PID: pid, Port: port, Secret: secret}, true
	}
	return nil, false
}
