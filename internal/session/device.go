package session

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const (
	VisibleDevicesVar = "CUDA_VISIBLE_DEVICES"
	EGLDevicesVar     = "EGL_VISIBLE_DEVICES"
)

// Device is the GPU chosen for offscreen rendering.
type Device struct {
	VisibleID   string
	MinorNumber string
	PluginPath  string
}

// Inventory resolves a visible device id to the hardware minor number the
// EGL plugin binds to.
type Inventory interface {
	MinorNumber(ctx context.Context, deviceID string) (string, error)
}

// DeviceSelector reads the device-visibility variable of this process and
// prepares the EGL environment for the rendering plugin.
type DeviceSelector struct {
	PluginPath string
	Inventory  Inventory
	LookupEnv  func(string) (string, bool)
	Setenv     func(key, value string) error
}

// NewDeviceSelector reads and writes the real process environment and
// queries nvidia-smi.
func NewDeviceSelector(pluginPath string) *DeviceSelector {
	return &DeviceSelector{
		PluginPath: pluginPath,
		Inventory:  NvidiaSMI{},
		LookupEnv:  os.LookupEnv,
		Setenv:     os.Setenv,
	}
}

func (d *DeviceSelector) Select(ctx context.Context) (Device, error) {
	lookup := d.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	setenv := d.Setenv
	if setenv == nil {
		setenv = os.Setenv
	}

	raw, ok := lookup(VisibleDevicesVar)
	if !ok {
		return Device{}, fmt.Errorf("%w: %s is not set", ErrDeviceVisibility, VisibleDevicesVar)
	}
	id, err := singleDevice(raw)
	if err != nil {
		return Device{}, err
	}
	if d.Inventory == nil {
		return Device{}, fmt.Errorf("%w: no device inventory", ErrDeviceVisibility)
	}
	minor, err := d.Inventory.MinorNumber(ctx, id)
	if err != nil {
		return Device{}, fmt.Errorf("query device %s: %w", id, err)
	}

	env := [][2]string{
		{"MESA_GL_VERSION_OVERRIDE", "3.3"},
		{"MESA_GLSL_VERSION_OVERRIDE", "330"},
		{EGLDevicesVar, minor},
	}
	for _, kv := range env {
		if err := setenv(kv[0], kv[1]); err != nil {
			return Device{}, fmt.Errorf("set %s: %w", kv[0], err)
		}
	}
	return Device{VisibleID: id, MinorNumber: minor, PluginPath: d.PluginPath}, nil
}

func singleDevice(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrDeviceVisibility, VisibleDevicesVar)
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 1 {
		return "", fmt.Errorf("%w: %s=%q names %d devices", ErrDeviceVisibility, VisibleDevicesVar, raw, len(parts))
	}
	return parts[0], nil
}

// NvidiaSMI queries the driver's XML report for a device.
type NvidiaSMI struct {
	// Path defaults to "nvidia-smi" on PATH.
	Path string
}

type smiLog struct {
	GPUs []struct {
		MinorNumber string `xml:"minor_number"`
	} `xml:"gpu"`
}

func (n NvidiaSMI) MinorNumber(ctx context.Context, deviceID string) (string, error) {
	bin := n.Path
	if bin == "" {
		bin = "nvidia-smi"
	}
	out, err := exec.CommandContext(ctx, bin, "--id="+deviceID, "-q", "--xml-format").Output()
	if err != nil {
		return "", fmt.Errorf("nvidia-smi: %w", err)
	}
	return parseMinorNumber(out)
}

func parseMinorNumber(report []byte) (string, error) {
	var log smiLog
	if err := xml.Unmarshal(report, &log); err != nil {
		return "", fmt.Errorf("parse nvidia-smi report: %w", err)
	}
	if len(log.GPUs) == 0 {
		return "", fmt.Errorf("nvidia-smi report lists no gpu")
	}
	minor := strings.TrimSpace(log.GPUs[0].MinorNumber)
	if minor == "" {
		return "", fmt.Errorf("nvidia-smi report has no minor_number")
	}
	return minor, nil
}
