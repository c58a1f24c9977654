package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config describes how to reach the card for a CLI invocation. Only the
// serial-bridge transport is wired into the CLI; the periph/gobot/gpiocdev
// adapters are meant for embedding directly into a host program that already
// owns the relevant bus handles.
type Config struct {
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
	UseCRC   bool   `yaml:"use_crc"`
}

func defaultConfig() Config {
	return Config{
		Device:   "/dev/ttyUSB0",
		BaudRate: 115200,
		UseCRC:   true,
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
