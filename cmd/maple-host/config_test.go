package main

import (
	"testing"
	"time"
)

func baseConfig() *appConfig {
	return &appConfig{
		serialDevs:               []string{"/dev/null"},
		baud:                     115200,
		serialReadTO:             10 * time.Millisecond,
		logFormat:                "text",
		logLevel:                 "info",
		cpuFreqMHz:               133,
		minClockPeriodNs:         300,
		lineCheckUs:              50,
		writeTimeoutExtraPercent: 50,
		interWordReadTimeoutUs:   100,
		singleSenderAddr:         -1,
	}
}

func TestConfigValidateOK(t *testing.T) {
	if err := baseConfig().validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"noDevices", func(c *appConfig) { c.serialDevs = nil }},
		{"tooManyDevices", func(c *appConfig) { c.serialDevs = []string{"a", "b", "c", "d", "e"} }},
		{"badBaud", func(c *appConfig) { c.baud = 0 }},
		{"badSerialTO", func(c *appConfig) { c.serialReadTO = 0 }},
		{"badCPUFreq", func(c *appConfig) { c.cpuFreqMHz = 0 }},
		{"badClockPeriod", func(c *appConfig) { c.minClockPeriodNs = 0 }},
		{"badSenderAddr", func(c *appConfig) { c.singleSenderAddr = 0x100 }},
	}
	for _, tc := range tests {
		cfg := baseConfig()
		tc.mod(cfg)
		if err := cfg.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestSplitDevsTrimsAndDropsEmpty(t *testing.T) {
	got := splitDevs(" /dev/ttyUSB0 , /dev/ttyUSB1,, ")
	want := []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}
	if len(got) != len(want) {
		t.Fatalf("splitDevs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitDevs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
