// Package sysinfo reports host health for the dashboard.
package sysinfo

import (
	"context"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/harrylevesque/makerdash/internal/models"
)

// Collect gathers host stats. A failing probe is reported in Errors and the
// remaining fields are still filled in.
func Collect(ctx context.Context, dataRoot string) models.SystemInfo {
	var info models.SystemInfo

	if h, err := host.InfoWithContext(ctx); err != nil {
		info.Errors = append(info.Errors, "host: "+err.Error())
	} else {
		info.HostID = h.HostID
		info.Hostname = h.Hostname
		info.UptimeSeconds = h.Uptime
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		info.Errors = append(info.Errors, "memory: "+err.Error())
	} else {
		info.MemoryUsedPct = round1(vm.UsedPercent)
	}

	if u, err := disk.UsageWithContext(ctx, existingDir(dataRoot)); err != nil {
		info.Errors = append(info.Errors, "disk: "+err.Error())
	} else {
		info.DiskFreeBytes = u.Free
		info.DiskUsedPct = round1(u.UsedPercent)
	}
	return info
}

// existingDir walks up from dir to the first directory that exists, so disk
// usage can be read before the data root is created.
func existingDir(dir string) string {
	if dir == "" {
		return string(os.PathSeparator)
	}
	for {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
