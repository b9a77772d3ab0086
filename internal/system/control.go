package system

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	goruntime "runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

var amixerLevel = regexp.MustCompile(`\[(\d+)%\]`)

// Controller adjusts and reports on the local machine.
type Controller struct {
	runner Runner
	host   Host
	goos   string
	now    func() time.Time

	// CPUSample is how long Info and Status measure processor load.
	CPUSample time.Duration
}

// NewController reads metrics from h, or from the local machine when h is
// nil.
func NewController(r Runner, h Host) *Controller {
	if r == nil {
		r = ExecRunner{}
	}
	if h == nil {
		h = LocalHost{}
	}
	return &Controller{
		runner:    r,
		host:      h,
		goos:      goruntime.GOOS,
		now:       time.Now,
		CPUSample: time.Second,
	}
}

func clamp(v int) int {
	return max(0, min(100, v))
}

// SetVolume sets the output volume to a percentage.
func (c *Controller) SetVolume(ctx context.Context, level int) string {
	level = clamp(level)

	var err error
	switch c.goos {
	case "linux":
		_, err = c.runner.Run(ctx, "amixer", "set", "Master", fmt.Sprintf("%d%%", level))
	case "darwin":
		_, err = c.runner.Run(ctx, "osascript", "-e", fmt.Sprintf("set volume output volume %d", level))
	case "windows":
		_, err = c.runner.Run(ctx, "nircmd.exe", "setsysvolume", strconv.Itoa(level*65535/100))
	default:
		return "Volume control not supported on this system"
	}
	if err != nil {
		return helperFailure("volume", err)
	}
	return fmt.Sprintf("Volume set to %d%%", level)
}

// AdjustVolume moves the volume by delta percentage points.
func (c *Controller) AdjustVolume(ctx context.Context, delta int) string {
	current, err := c.currentVolume(ctx)
	if err != nil {
		return "Could not determine current volume"
	}
	return c.SetVolume(ctx, current+delta)
}

func (c *Controller) currentVolume(ctx context.Context) (int, error) {
	switch c.goos {
	case "linux":
		out, err := c.runner.Run(ctx, "amixer", "get", "Master")
		if err != nil {
			return 0, err
		}
		m := amixerLevel.FindSubmatch(out)
		if m == nil {
			return 0, errors.New("no level in amixer output")
		}
		return strconv.Atoi(string(m[1]))
	case "darwin":
		out, err := c.runner.Run(ctx, "osascript", "-e", "output volume of (get volume settings)")
		if err != nil {
			return 0, err
		}
		return strconv.Atoi(strings.TrimSpace(string(out)))
	default:
		return 0, errors.New("volume query not supported")
	}
}

// SetBrightness sets the screen brightness to a percentage.
func (c *Controller) SetBrightness(ctx context.Context, level int) string {
	level = clamp(level)

	var err error
	switch c.goos {
	case "linux":
		_, err = c.runner.Run(ctx, "brightnessctl", "set", fmt.Sprintf("%d%%", level))
	case "windows":
		ps := fmt.Sprintf("(Get-WmiObject -Namespace root/WMI -Class WmiMonitorBrightnessMethods).WmiSetBrightness(1,%d)", level)
		_, err = c.runner.Run(ctx, "powershell", "-Command", ps)
	default:
		return "Brightness control not implemented for this system"
	}
	if err != nil {
		return helperFailure("brightness", err)
	}
	return fmt.Sprintf("Brightness set to %d%%", level)
}

// BatteryInfo reports the first battery.
func (c *Controller) BatteryInfo(ctx context.Context) string {
	bats, err := c.host.Batteries(ctx)
	if err != nil || len(bats) == 0 {
		return "No battery found or battery information unavailable"
	}
	b := bats[0]
	status := "discharging"
	if b.Plugged {
		status = "charging"
	}
	reply := fmt.Sprintf("Battery: %.0f%% (%s)", b.Percent, status)
	if b.TimeLeft > 0 {
		h := int(b.TimeLeft.Hours())
		m := int(b.TimeLeft.Minutes()) % 60
		reply += fmt.Sprintf(" - %dh %dm remaining", h, m)
	}
	return reply
}

func (c *Controller) CurrentTime() string {
	return "The current time is " + c.now().Format("03:04 PM on Monday, January 02, 2006")
}

// Info summarizes the platform, memory and processor load.
func (c *Controller) Info(ctx context.Context) string {
	p, err := c.host.Platform(ctx)
	if err != nil {
		return fmt.Sprintf("Error retrieving system information: %v", err)
	}

	system := strings.TrimSpace(fmt.Sprintf("%s %s", p.OS, p.Kernel))
	if p.Platform != "" {
		system += fmt.Sprintf(" (%s %s)", p.Platform, p.PlatformVersion)
	}
	lines := []string{"System: " + strings.TrimSpace(system)}
	if p.CPUModel != "" {
		lines = append(lines, "Processor: "+p.CPUModel)
	}
	if vm, err := c.host.Memory(ctx); err == nil {
		lines = append(lines, fmt.Sprintf("Memory: %s total, %.1f%% used", humanize.IBytes(vm.Total), vm.UsedPercent))
	}
	cores := p.Cores
	if cores == 0 {
		cores = goruntime.NumCPU()
	}
	if pct, err := c.host.CPUPercent(ctx, c.CPUSample); err == nil {
		lines = append(lines, fmt.Sprintf("CPU: %d cores, %.1f%% usage", cores, pct))
	} else {
		lines = append(lines, fmt.Sprintf("CPU: %d cores", cores))
	}
	if p.Hostname != "" {
		lines = append(lines, "Host: "+p.Hostname)
	}
	return strings.Join(lines, "\n")
}

// StorageInfo reports usage of every mounted partition.
func (c *Controller) StorageInfo(ctx context.Context) string {
	disks, err := c.host.Disks(ctx)
	if err != nil || len(disks) == 0 {
		return "No storage information available"
	}
	lines := make([]string, 0, len(disks))
	for _, d := range disks {
		lines = append(lines, fmt.Sprintf("Drive %s: %s used / %s total (%.1f%% used, %s free)",
			d.Device, humanize.IBytes(d.Used), humanize.IBytes(d.Total), d.UsedPercent(), humanize.IBytes(d.Free)))
	}
	return strings.Join(lines, "\n")
}

// Health thresholds, in percent.
const (
	cpuAlert  = 85
	ramAlert  = 85
	diskAlert = 90
)

// Status checks processor, memory and root disk load. The short form lists
// only readings over their threshold; verbose lists all three.
func (c *Controller) Status(ctx context.Context, verbose bool) string {
	cpuPct, cpuErr := c.host.CPUPercent(ctx, c.CPUSample)
	vm, memErr := c.host.Memory(ctx)
	diskPct, diskErr := c.rootDiskPercent(ctx)
	if cpuErr != nil && memErr != nil && diskErr != nil {
		return "System status is unavailable right now."
	}

	if verbose {
		lines := []string{"System diagnostics:"}
		if cpuErr == nil {
			lines = append(lines, fmt.Sprintf("CPU usage: %.1f%%", cpuPct))
		}
		if memErr == nil {
			lines = append(lines, fmt.Sprintf("RAM usage: %.1f%%", vm.UsedPercent))
		}
		if diskErr == nil {
			lines = append(lines, fmt.Sprintf("Disk usage: %.1f%%", diskPct))
		}
		return strings.Join(lines, "\n")
	}

	var alerts []string
	if cpuErr == nil && cpuPct > cpuAlert {
		alerts = append(alerts, fmt.Sprintf("High CPU usage: %.1f%%.", cpuPct))
	}
	if memErr == nil && vm.UsedPercent > ramAlert {
		alerts = append(alerts, fmt.Sprintf("High RAM usage: %.1f%%.", vm.UsedPercent))
	}
	if diskErr == nil && diskPct > diskAlert {
		alerts = append(alerts, fmt.Sprintf("Low disk space: %.1f%% used.", diskPct))
	}
	if len(alerts) == 0 {
		return "All systems are running smoothly."
	}
	return strings.Join(alerts, " ")
}

// rootDiskPercent uses the partition mounted at "/" or, failing that, the
// first one listed.
func (c *Controller) rootDiskPercent(ctx context.Context) (float64, error) {
	disks, err := c.host.Disks(ctx)
	if err != nil {
		return 0, err
	}
	if len(disks) == 0 {
		return 0, errors.New("no partitions")
	}
	for _, d := range disks {
		if d.Mountpoint == "/" {
			return d.UsedPercent(), nil
		}
	}
	return disks[0].UsedPercent(), nil
}

func helperFailure(what string, err error) string {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Sprintf("%s control utility not found. Please install required tools.", capitalize(what))
	}
	return fmt.Sprintf("Failed to set %s. Error: %v", what, err)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
