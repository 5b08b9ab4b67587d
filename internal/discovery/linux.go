package discovery

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// linuxStrategy scrapes ps for the process and ss for its listening sockets,
// with netstat as the fallback on hosts without iproute2.
type linuxStrategy struct{}

var (
	// "LISTEN 0 4096 127.0.0.1:42100 0.0.0.0:* users:(("ls",pid=1234,fd=21))"
	ssListenRe = regexp.MustCompile(`LISTEN\s+\d+\s+\d+\s+\S*:(\d+)\s`)
	// "tcp  0  0 127.0.0.1:42100  0.0.0.0:*  LISTEN  1234/language_server"
	netstatLinuxRe = regexp.MustCompile(`^tcp6?\s+\d+\s+\d+\s+\S*:(\d+)\s+\S+\s+LISTEN\s+(\d+)/`)
)

func (s *linuxStrategy) ListCommand() []string {
	return []string{"ps", "-eo", "pid,args"}
}

func (s *linuxStrategy) PortCommands(pid int) [][]string {
	return [][]string{
		{"ss", "-tlnp"},
		{"netstat", "-tlnp"},
	}
}

func (s *linuxStrategy) ParseProcess(output string) (*ProcessMatch, bool) {
	return parsePSOutput(output)
}

func (s *linuxStrategy) ParsePorts(output string, pid int) []int {
	pidMarker := fmt.Sprintf("pid=%d,", pid)
	var ports []int
	for line := range strings.Lines(output) {
		line = strings.TrimSpace(line)

		if m := ssListenRe.FindStringSubmatch(line); len(m) > 1 {
			if !strings.Contains(line, pidMarker) {
				continue
			}
			if port, err := strconv.Atoi(m[1]); err == nil {
				ports = append(ports, port)
			}
			continue
		}

		if m := netstatLinuxRe.FindStringSubmatch(line); len(m) > 2 {
			if owner, err := strconv.Atoi(m[2]); err != nil || owner != pid {
				continue
			}
			if port, err := strconv.Atoi(m[1]); err == nil {
				ports = append(ports, port)
			}
		}
	}
	return normalizePorts(ports)
}
