package discovery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// windowsStrategy queries the CIM process table as JSON and the TCP
// connection table filtered by owning process.
type windowsStrategy struct{}

func (s *windowsStrategy) ListCommand() []string {
	query := fmt.Sprintf(
		`Get-CimInstance Win32_Process -Filter "Name like '%%%s%%'" | Select-Object ProcessId,CommandLine | ConvertTo-Json -Compress`,
		processNamePattern)
	return []string{"powershell", "-NoProfile", "-NonInteractive", "-Command", query}
}

func (s *windowsStrategy) PortCommands(pid int) [][]string {
	query := fmt.Sprintf(
		`Get-NetTCPConnection -State Listen -OwningProcess %d -ErrorAction SilentlyContinue | Select-Object -ExpandProperty LocalPort`,
		pid)
	return [][]string{
		{"powershell", "-NoProfile", "-NonInteractive", "-Command", query},
	}
}

// ParseProcess handles both shapes ConvertTo-Json emits: a bare object for a
// single match and an array for several. Candidates must reference the data
// directory on their command line.
func (s *windowsStrategy) ParseProcess(output string) (*ProcessMatch, bool) {
	output = strings.TrimSpace(output)
	if output == "" || !gjson.Valid(output) {
		return nil, false
	}

	var match *ProcessMatch
	consider := func(entry gjson.Result) bool {
		cmdline := entry.Get("CommandLine").String()
		if !strings.Contains(cmdline, dataDirMarker) {
			return true
		}
		pid := int(entry.Get("ProcessId").Int())
		if pid <= 0 {
			return true
		}
		port, secret := extractFlags(cmdline)
		match = &ProcessMatch{PID: pid, Port: port, Secret: secret}
		return false
	}

	root := gjson.Parse(output)
	if root.IsArray() {
		root.ForEach(func(_, entry gjson.Result) bool {
			return consider(entry)
		})
	} else {
		consider(root)
	}

	return match, match != nil
}

// ParsePorts reads the LocalPort listing, one port per line.
func (s *windowsStrategy) ParsePorts(output string, _ int) []int {
	var ports []int
	for line := range strings.Lines(output) {
		if port, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && port > 0 {
			ports = append(ports, port)
		}
	}
	return normalizePorts(ports)
}
