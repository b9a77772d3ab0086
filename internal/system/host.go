package system

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/distatus/battery"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// Platform describes the operating system and processor.
type Platform struct {
	OS              string
	Platform        string
	PlatformVersion string
	Kernel          string
	Arch            string
	Hostname        string
	CPUModel        string
	Cores           int
}

type MemoryUsage struct {
	Total       uint64
	UsedPercent float64
}

// DiskUsage is one mounted partition.
type DiskUsage struct {
	Device     string
	Mountpoint string
	Total      uint64
	Used       uint64
	Free       uint64
}

func (d DiskUsage) UsedPercent() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Used) / float64(d.Total) * 100
}

// BatteryState is a battery charge reading. TimeLeft is zero when the
// remaining time is unknown or the battery is not discharging.
type BatteryState struct {
	Percent  float64
	Plugged  bool
	TimeLeft time.Duration
}

// ProcessInfo is a running process as seen by Launcher.Close.
type ProcessInfo struct {
	PID  int32
	Name string
	Exe  string
}

// Host reads live metrics from the machine.
type Host interface {
	Platform(ctx context.Context) (Platform, error)
	Memory(ctx context.Context) (MemoryUsage, error)
	// CPUPercent samples overall processor load over interval.
	CPUPercent(ctx context.Context, interval time.Duration) (float64, error)
	Disks(ctx context.Context) ([]DiskUsage, error)
	Batteries(ctx context.Context) ([]BatteryState, error)
}

// ProcessTable lists and terminates processes.
type ProcessTable interface {
	Processes(ctx context.Context) ([]ProcessInfo, error)
	Terminate(ctx context.Context, pid int32) error
}

// LocalHost implements Host and ProcessTable with gopsutil and the
// platform battery APIs.
type LocalHost struct{}

var (
	_ Host         = LocalHost{}
	_ ProcessTable = LocalHost{}
)

func (LocalHost) Platform(ctx context.Context) (Platform, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return Platform{}, err
	}
	p := Platform{
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		Kernel:          info.KernelVersion,
		Arch:            info.KernelArch,
		Hostname:        info.Hostname,
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		p.Cores = n
	}
	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		p.CPUModel = strings.TrimSpace(cpus[0].ModelName)
	}
	return p, nil
}

func (LocalHost) Memory(ctx context.Context) (MemoryUsage, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryUsage{}, err
	}
	return MemoryUsage{Total: vm.Total, UsedPercent: vm.UsedPercent}, nil
}

func (LocalHost) CPUPercent(ctx context.Context, interval time.Duration) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, errors.New("no cpu sample")
	}
	return pcts[0], nil
}

// Disks reports physical partitions, skipping ones that cannot be read.
func (LocalHost) Disks(ctx context.Context) ([]DiskUsage, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(parts))
	var out []DiskUsage
	for _, p := range parts {
		if seen[p.Mountpoint] {
			continue
		}
		seen[p.Mountpoint] = true

		u, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || u.Total == 0 {
			continue
		}
		out = append(out, DiskUsage{
			Device:     p.Device,
			Mountpoint: p.Mountpoint,
			Total:      u.Total,
			Used:       u.Used,
			Free:       u.Free,
		})
	}
	return out, nil
}

func (LocalHost) Batteries(_ context.Context) ([]BatteryState, error) {
	bats, err := battery.GetAll()
	if err != nil && len(bats) == 0 {
		return nil, err
	}
	var out []BatteryState
	for _, b := range bats {
		if b == nil || b.Full <= 0 {
			continue
		}
		st := BatteryState{
			Percent: min(100, b.Current/b.Full*100),
			Plugged: b.State.Raw != battery.Discharging,
		}
		if b.State.Raw == battery.Discharging && b.ChargeRate > 0 {
			st.TimeLeft = time.Duration(b.Current / b.ChargeRate * float64(time.Hour))
		}
		out = append(out, st)
	}
	return out, nil
}

// Processes lists processes other than this one. Entries whose name cannot
// be read are skipped.
func (LocalHost) Processes(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	self := int32(os.Getpid()) // #nosec G115
	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		exe, _ := p.ExeWithContext(ctx)
		out = append(out, ProcessInfo{PID: p.Pid, Name: name, Exe: exe})
	}
	return out, nil
}

func (LocalHost) Terminate(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	return p.TerminateWithContext(ctx)
}

// matchesProcess reports whether a process is the executable exe. Names are
// compared whole and case-insensitively against the process name and the
// base of its executable path, ignoring a ".exe" suffix. A macOS bundle
// name matches any process running from inside that bundle.
func matchesProcess(p ProcessInfo, exe string) bool {
	want := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(exe)), ".exe")
	if want == "" {
		return false
	}
	for _, cand := range []string{p.Name, filepath.Base(p.Exe)} {
		if strings.TrimSuffix(strings.ToLower(cand), ".exe") == want {
			return true
		}
	}
	return strings.Contains(strings.ToLower(p.Exe), "/"+want+".app/")
}
