package discovery

import (
	"bytes"
	"context"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/tidwall/gjson"

	"github.com/j-veylop/cascade-quota-engine/internal/logger"
	"github.com/j-veylop/cascade-quota-engine/internal/models"
	"github.com/j-veylop/cascade-quota-engine/internal/transport"
)

// probeTimeout bounds each liveness probe so a dead or stale port cannot
// stall discovery; total discovery time is candidate count times this.
const probeTimeout = time.Second

// Runner executes an argv and returns its combined standard output. Split out
// so tests can feed captured tool output instead of spawning processes.
type Runner func(ctx context.Context, argv []string) (string, error)

// ProbeFunc reports whether the server on a local port answers an
// authenticated heartbeat with well-formed JSON.
type ProbeFunc func(ctx context.Context, port int, secret string) bool

// Finder locates the running server and confirms a live port for it.
type Finder struct {
	strategy Strategy
	run      Runner
	probe    ProbeFunc
}

// NewFinder creates a finder for the running OS.
func NewFinder() *Finder {
	return &Finder{
		strategy: CurrentStrategy(),
		run:      runCommand,
		probe:    probePort,
	}
}

// NewFinderWith creates a finder with injected dependencies for testing.
func NewFinderWith(strategy Strategy, run Runner, probe ProbeFunc) *Finder {
	return &Finder{strategy: strategy, run: run, probe: probe}
}

// Discover locates the target process and returns it with a confirmed live
// port. The false return is the expected case when the server is not running;
// it is never an error.
func (f *Finder) Discover(ctx context.Context) (*models.ProcessInfo, bool) {
	out, err := f.run(ctx, f.strategy.ListCommand())
	if err != nil {
		logger.Debug("process listing failed", "error", err)
		return nil, false
	}

	match, ok := f.strategy.ParseProcess(out)
	if !ok || match.Secret == "" {
		return nil, false
	}

	for _, port := range f.candidatePorts(ctx, match) {
		if f.probe(ctx, port, match.Secret) {
			return &models.ProcessInfo{PID: match.PID, Port: port, Secret: match.Secret}, true
		}
		logger.Debug("port probe failed", "pid", match.PID, "port", port)
	}

	return nil, false
}

// candidatePorts enumerates the listening ports owned by the matched process:
// the strategy's tools first, the cross-platform connection table when they
// yield nothing, and whatever port was on the command line as a last entry.
func (f *Finder) candidatePorts(ctx context.Context, match *ProcessMatch) []int {
	var ports []int

	for _, argv := range f.strategy.PortCommands(match.PID) {
		out, err := f.run(ctx, argv)
		if err != nil {
			continue
		}
		if parsed := f.strategy.ParsePorts(out, match.PID); len(parsed) > 0 {
			ports = parsed
			break
		}
	}

	if len(ports) == 0 {
		ports = connectionTablePorts(match.PID)
	}

	if match.Port > 0 {
		ports = append(ports, match.Port)
	}
	return normalizePorts(ports)
}

// connectionTablePorts reads listening ports straight from the kernel
// connection table. Used when the OS tools are missing or their output
// format has drifted.
func connectionTablePorts(pid int) []int {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	conns, err := proc.Connections()
	if err != nil {
		return nil
	}

	var ports []int
	for _, conn := range conns {
		if conn.Status == "LISTEN" && conn.Laddr.Port > 0 {
			ports = append(ports, int(conn.Laddr.Port))
		}
	}
	return normalizePorts(ports)
}

// runCommand executes argv and returns its standard output.
func runCommand(ctx context.Context, argv []string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return out.String(), nil
}

// probePort POSTs an authenticated heartbeat to a candidate port. Only a 2xx
// response carrying well-formed JSON counts: stale sockets from a previous
// run may still accept connections without being the live server.
func probePort(ctx context.Context, port int, secret string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cfg := transport.NewLocal(port, secret)
	client := transport.NewClientWithHTTP(cfg, &http.Client{Timeout: probeTimeout})

	raw, err := client.Fetch(ctx, transport.HeartbeatPath, nil)
	if err != nil {
		return false
	}
	body := strings.TrimSpace(string(raw))
	return strings.HasPrefix(body, "{") && gjson.Valid(body)
}
