// Package device holds the registry of managed devices. The registry is
// static configuration, loaded from a yaml file at startup: the set of
// devices, how each one is switched and which device runs in interval mode.
package device

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// A Device is one managed plug or appliance.
type Device struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	ControlCode string `yaml:"controlCode"`
	StatusCode  string `yaml:"statusCode"`
	Interval    bool   `yaml:"interval"`
}

// Registry is the full set of managed devices, in configuration order.
type Registry struct {
	Devices []Device `yaml:"devices"`
}

func Load(r io.Reader) (Registry, error) {
	var registry Registry
	if err := yaml.NewDecoder(r).Decode(&registry); err != nil {
		return Registry{}, err
	}
	return registry, registry.validate()
}

func LoadFromFile(path string) (Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Registry{}, err
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

func (r Registry) validate() error {
	seen := make(map[string]struct{}, len(r.Devices))
	intervals := 0
	for _, device := range r.Devices {
		if device.ID == "" {
			return fmt.Errorf("device %q: missing id", device.Name)
		}
		if _, ok := seen[device.ID]; ok {
			return fmt.Errorf("duplicate device id %q", device.ID)
		}
		seen[device.ID] = struct{}{}
		if device.ControlCode == "" {
			return fmt.Errorf("device %q: missing controlCode", device.ID)
		}
		if device.Interval {
			intervals++
		}
	}
	if intervals > 1 {
		return fmt.Errorf("more than one interval-mode device configured")
	}
	return nil
}

// Get returns the device with the given id.
func (r Registry) Get(id string) (Device, bool) {
	for _, device := range r.Devices {
		if device.ID == id {
			return device, true
		}
	}
	return Device{}, false
}

// IntervalDevice returns the device configured for duty-cycle operation, if
// any.
func (r Registry) IntervalDevice() (Device, bool) {
	for _, device := range r.Devices {
		if device.Interval {
			return device, true
		}
	}
	return Device{}, false
}
