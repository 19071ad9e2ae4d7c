package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapture(t *testing.T) {
	info := Capture()

	assert.NotEmpty(t, info.Hostname)
	assert.NotEmpty(t, info.OS)
	assert.Positive(t, info.CPUCores)
	assert.Equal(t, info.Hostname, info.Name)
}

func TestDescriptor(t *testing.T) {
	info := &Info{
		Name:             "laptop",
		Hostname:         "laptop.local",
		OS:               "linux",
		Platform:         "ubuntu",
		PlatformVersion:  "24.04",
		Arch:             "x86_64",
		CPUCores:         8,
		TotalMemoryMB:    16384,
		InContainer:      true,
		ContainerRuntime: "docker",
	}

	d := info.Descriptor()
	assert.Equal(t, "laptop", d["name"])
	assert.Equal(t, "ubuntu 24.04", d["platform"])
	assert.Equal(t, uint64(16384), d["memory_mb"])
	assert.Equal(t, "docker", d["container"])
	assert.Equal(t, "connectctl", d["client"])

	bare := (&Info{Name: "box", OS: "linux"}).Descriptor()
	assert.NotContains(t, bare, "platform")
	assert.NotContains(t, bare, "memory_mb")
	assert.NotContains(t, bare, "container")
}
