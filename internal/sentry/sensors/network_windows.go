//go:build windows

package sensors

import (
	"bufio"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

type windowsNetworkSensor struct{}

// NewNetworkSensor returns the netstat-backed connection sensor.
func NewNetworkSensor() NetworkSensor {
	return windowsNetworkSensor{}
}

func (windowsNetworkSensor) Sample() ([]model.NetworkConnection, error) {
	cmd := exec.Command("netstat", "-ano")
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: 0x08000000}
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("network sensor: %w", err)
	}

	seen := make(map[string]struct{})
	var connections []model.NetworkConnection

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		if !strings.HasPrefix(upper, "TCP") && !strings.HasPrefix(upper, "UDP") {
			continue
		}

		fields := strings.Fields(line)
		conn, ok := parseNetstatRow(fields)
		if !ok {
			continue
		}

		key := conn.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		connections = append(connections, conn)
	}
	return connections, scanner.Err()
}

func parseNetstatRow(fields []string) (model.NetworkConnection, bool) {
	if len(fields) < 4 {
		return model.NetworkConnection{}, false
	}

	protocol := strings.ToLower(fields[0])
	if protocol == "tcp" {
		if len(fields) < 5 {
			return model.NetworkConnection{}, false
		}
		pid, err := strconv.ParseUint(fields[4], 10, 32)
		if err != nil {
			return model.NetworkConnection{}, false
		}
		state := fields[3]
		return model.NetworkConnection{
			Protocol:      protocol,
			LocalAddress:  fields[1],
			RemoteAddress: fields[2],
			State:         &state,
			PID:           uint32(pid),
		}, true
	}

	// UDP rows have no state column: proto, local, remote, pid.
	pid, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return model.NetworkConnection{}, false
	}
	return model.NetworkConnection{
		Protocol:      protocol,
		LocalAddress:  fields[1],
		RemoteAddress: fields[2],
		PID:           uint32(pid),
	}, true
}
