package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the CLI flag table (spec.md §6) for the optional
// --config=FILE convenience. Every field is a pointer so an absent key
// means "not set in the file" rather than "set to the zero value",
// matching the teacher's LoadConfig pattern (pkg/config/config.go) of
// layering a YAML file under explicit flags.
type fileConfig struct {
	NetworkDeviceNumber        *int    `yaml:"network_device_number"`
	IODeviceNumber             *int    `yaml:"io_device_number"`
	MACAddress                 *string `yaml:"mac_address"`
	IPAddress                  *string `yaml:"ip_address"`
	MTU                        *int    `yaml:"mtu"`
	Metric                     *int    `yaml:"metric"`
	DisableNUD                 *bool   `yaml:"disable_nud"`
	EnableRouterAdvertisements *bool   `yaml:"enable_router_advertisements"`
	IfconfigCommand            *string `yaml:"ifconfig_command"`
	Listen                     *string `yaml:"listen"`
	ShowData                   *bool   `yaml:"show_data"`
	ShowSizeWarnings           *bool   `yaml:"show_size_warnings"`
	UseFramedProtocol          *bool   `yaml:"use_framed_protocol"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &fc, nil
}

// applyFileConfig overwrites flag variables with file values, but only for
// flags the user did not pass explicitly on the command line (spec.md §6:
// "file values seed defaults, explicit CLI flags override them").
func applyFileConfig(fc *fileConfig, changed func(name string) bool) {
	set := func(name string, apply func()) {
		if !changed(name) {
			apply()
		}
	}
	if fc.NetworkDeviceNumber != nil {
		set("network-device-number", func() { networkDeviceNumber = *fc.NetworkDeviceNumber })
	}
	if fc.IODeviceNumber != nil {
		set("io-device-number", func() { ioDeviceNumber = *fc.IODeviceNumber })
	}
	if fc.MACAddress != nil {
		set("mac-address", func() { macAddress = *fc.MACAddress })
	}
	if fc.IPAddress != nil {
		set("ip-address", func() { ipAddress = *fc.IPAddress })
	}
	if fc.MTU != nil {
		set("mtu", func() { mtu = *fc.MTU })
	}
	if fc.Metric != nil {
		set("metric", func() { metric = *fc.Metric })
	}
	if fc.DisableNUD != nil {
		set("disable-nud", func() { disableNUD = *fc.DisableNUD })
	}
	if fc.EnableRouterAdvertisements != nil {
		set("enable-router-advertisements", func() { enableRouterAdvertisements = *fc.EnableRouterAdvertisements })
	}
	if fc.IfconfigCommand != nil {
		set("ifconfig-command", func() { ifconfigCommand = *fc.IfconfigCommand })
	}
	if fc.Listen != nil {
		set("listen", func() { listenAddr = *fc.Listen })
	}
	if fc.ShowData != nil {
		set("show-data", func() { showData = *fc.ShowData })
	}
	if fc.ShowSizeWarnings != nil {
		set("show-size-warnings", func() { showSizeWarnings = *fc.ShowSizeWarnings })
	}
	if fc.UseFramedProtocol != nil {
		set("use-framed-protocol", func() { useFramedProtocol = *fc.UseFramedProtocol })
	}
}
