//go:build windows

package sensors

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

// windowsProcessSensor shells out to PowerShell's Win32_Process CIM
// class, matching the actuator's existing pattern of driving
// powershell.exe for platform surface Go has no stdlib access to.
type windowsProcessSensor struct{}

// NewProcessSensor returns the Windows process sensor.
func NewProcessSensor() ProcessSensor {
	return windowsProcessSensor{}
}

type win32Process struct {
	ProcessId       uint32
	ParentProcessId uint32
	Name            string
	ExecutablePath  *string
	CreationDate    *string
	WorkingSetSize  uint64
}

type perfProcSample struct {
	IDProcess            uint32
	PercentProcessorTime uint64
}

const processQueryScript = `$ErrorActionPreference='SilentlyContinue'; Get-CimInstance Win32_Process | Select-Object ProcessId,ParentProcessId,Name,ExecutablePath,CreationDate,WorkingSetSize | ConvertTo-Json -Compress`

const cpuQueryScript = `$ErrorActionPreference='SilentlyContinue'; Get-CimInstance Win32_PerfFormattedData_PerfProc_Process | Select-Object IDProcess,PercentProcessorTime | ConvertTo-Json -Compress`

func (windowsProcessSensor) Sample() ([]model.ProcessMetric, error) {
	out, err := runHiddenPowerShell(processQueryScript)
	if err != nil {
		return nil, fmt.Errorf("process sensor: %w", err)
	}
	rows, err := decodeProcessRows(out)
	if err != nil {
		return nil, fmt.Errorf("process sensor: decoding process list: %w", err)
	}

	cpuByPID := make(map[uint32]float32)
	if cpuOut, err := runHiddenPowerShell(cpuQueryScript); err == nil {
		if samples, err := decodePerfSamples(cpuOut); err == nil {
			for _, s := range samples {
				cpuByPID[s.IDProcess] = float32(s.PercentProcessorTime)
			}
		}
	}

	metrics := make([]model.ProcessMetric, 0, len(rows))
	for _, row := range rows {
		ppid := row.ParentProcessId
		metric := model.ProcessMetric{
			PID:      row.ProcessId,
			PPID:     &ppid,
			Name:     row.Name,
			ExePath:  row.ExecutablePath,
			CPUPct:   cpuByPID[row.ProcessId],
			MemoryMB: float32(row.WorkingSetSize) / 1024.0 / 1024.0,
			Status:   "running",
			Verdict:  model.VerdictBenign,
		}
		if started := parseCIMDate(row.CreationDate); started != nil {
			metric.StartedAt = started
		}
		metrics = append(metrics, metric)
	}
	return metrics, nil
}

func runHiddenPowerShell(script string) ([]byte, error) {
	cmd := exec.Command("powershell.exe", "-NoProfile", "-Command", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: 0x08000000}
	return cmd.Output()
}

func decodePerfSamples(out []byte) ([]perfProcSample, error) {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var rows []perfProcSample
		err := json.Unmarshal([]byte(trimmed), &rows)
		return rows, err
	}
	var row perfProcSample
	if err := json.Unmarshal([]byte(trimmed), &row); err != nil {
		return nil, err
	}
	return []perfProcSample{row}, nil
}

// decodeProcessRows handles PowerShell's ConvertTo-Json quirk of
// emitting a bare object (not an array) when exactly one row matches.
func decodeProcessRows(out []byte) ([]win32Process, error) {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var rows []win32Process
		err := json.Unmarshal([]byte(trimmed), &rows)
		return rows, err
	}
	var row win32Process
	if err := json.Unmarshal([]byte(trimmed), &row); err != nil {
		return nil, err
	}
	return []win32Process{row}, nil
}

func parseCIMDate(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	// CIM_DATETIME format: yyyymmddHHMMSS.mmmmmmsUUU
	if len(*raw) < 14 {
		return nil
	}
	t, err := time.Parse("20060102150405", (*raw)[:14])
	if err != nil {
		return nil
	}
	return &t
}
