// Package gpu reports accelerator status for the /gpu endpoint.
package gpu

import (
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ocrdesk/ocrdesk/internal/models"
)

// QueryArgs are the nvidia-smi arguments Probe runs.
var QueryArgs = []string{
	"--query-gpu=name,memory.total,memory.reserved,memory.used",
	"--format=csv,noheader,nounits",
}

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command on the host.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Prober queries nvidia-smi.
type Prober struct {
	run     Runner
	timeout time.Duration
}

func NewProber(run Runner) *Prober {
	if run == nil {
		run = ExecRunner
	}
	return &Prober{run: run, timeout: 5 * time.Second}
}

// Probe never fails: a missing tool or unparseable output reports
// Available false.
func (p *Prober) Probe(ctx context.Context) models.GPUStatus {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.run(ctx, "nvidia-smi", QueryArgs...)
	if err != nil {
		return models.GPUStatus{Info: []models.GPUInfo{}}
	}
	info, err := Parse(out)
	if err != nil || len(info) == 0 {
		return models.GPUStatus{Info: []models.GPUInfo{}}
	}
	return models.GPUStatus{Available: true, DeviceCount: len(info), Info: info}
}

// Parse reads nvidia-smi CSV output, one device per line, memory in MiB.
func Parse(out []byte) ([]models.GPUInfo, error) {
	r := csv.NewReader(strings.NewReader(string(out)))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = 4

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse nvidia-smi output: %w", err)
	}

	info := make([]models.GPUInfo, 0, len(records))
	for _, rec := range records {
		total := mib(rec[1])
		reserved := mib(rec[2])
		used := mib(rec[3])
		util := 0.0
		if total > 0 {
			util = used / total * 100
		}
		info = append(info, models.GPUInfo{
			Name:            strings.TrimSpace(rec[0]),
			Utilization:     fmt.Sprintf("%.1f%%", util),
			TotalMemory:     fmt.Sprintf("%.0f MB", total),
			ReservedMemory:  fmt.Sprintf("%.0f MB", reserved),
			AllocatedMemory: fmt.Sprintf("%.0f MB", used),
		})
	}
	return info, nil
}

// mib treats "[N/A]" and other non-numbers as zero.
func mib(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
