package device

import (
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"

	"github.com/lyzr/connected/common/models"
)

// Info describes the machine a client runs on
type Info struct {
	Name             string
	Hostname         string
	OS               string
	Platform         string
	PlatformVersion  string
	Arch             string
	CPUCores         int
	TotalMemoryMB    uint64
	InContainer      bool
	ContainerRuntime string
}

// Capture gathers host information. Probes that fail leave their field empty.
func Capture() *Info {
	info := &Info{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		CPUCores: runtime.NumCPU(),
	}

	if h, err := host.Info(); err == nil {
		info.Hostname = h.Hostname
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		if h.KernelArch != "" {
			info.Arch = h.KernelArch
		}
	} else if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	} else {
		info.Hostname = "unknown"
	}

	if cores, err := cpu.Counts(false); err == nil && cores > 0 {
		info.CPUCores = cores
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemoryMB = vm.Total / 1024 / 1024
	}

	info.InContainer, info.ContainerRuntime = detectContainer()
	info.Name = info.Hostname
	return info
}

// Descriptor converts the info into the free-form map sent when pairing
func (i *Info) Descriptor() models.DeviceInfo {
	d := models.DeviceInfo{
		"name":      i.Name,
		"hostname":  i.Hostname,
		"os":        i.OS,
		"arch":      i.Arch,
		"cpu_cores": i.CPUCores,
		"client":    "connectctl",
	}
	if i.Platform != "" {
		d["platform"] = strings.TrimSpace(i.Platform + " " + i.PlatformVersion)
	}
	if i.TotalMemoryMB > 0 {
		d["memory_mb"] = i.TotalMemoryMB
	}
	if i.InContainer {
		d["container"] = i.ContainerRuntime
	}
	return d
}

// detectContainer checks if running in a container
func detectContainer() (bool, string) {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true, "docker"
	}

	if _, err := os.Stat("/var/run/secrets/kubernetes.io"); err == nil {
		return true, "kubernetes"
	}

	// cgroup names give away the runtime
	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		content := string(data)
		for _, rt := range []string{"docker", "kubepods", "containerd"} {
			if strings.Contains(content, rt) {
				if rt == "kubepods" {
					return true, "kubernetes"
				}
				return true, rt
			}
		}
	}

	return false, ""
}
