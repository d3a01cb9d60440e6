package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	serialDevs   []string
	baud         int
	serialReadTO time.Duration

	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration

	cpuFreqMHz               int
	minClockPeriodNs         int
	lineCheckUs              uint64
	writeTimeoutExtraPercent int
	interWordReadTimeoutUs   uint64

	singleSenderAddr int // -1 disables the shortcut

	mdnsEnable bool
	mdnsName   string

	configFile string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	serialDevs := flag.String("serial", "/dev/ttyUSB0", "Serial device path(s) for each bus, comma-separated (one bus per device, up to maple.MaxBuses)")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	cpuFreqMHz := flag.Int("cpu-freq-mhz", 133, "Host clock frequency, informational only")
	minClockPeriodNs := flag.Int("min-clock-period-ns", 300, "Minimum half-bit period in nanoseconds")
	lineCheckUs := flag.Uint64("line-check-us", 50, "Open-line check window before a write may begin, in microseconds")
	writeTimeoutExtraPercent := flag.Int("write-timeout-slack-percent", 50, "Padding applied to the computed write deadline")
	interWordReadTimeoutUs := flag.Uint64("inter-word-read-timeout-us", 100, "Maximum silence between received words before a read times out, in microseconds")
	singleSenderAddr := flag.Int("single-sender-addr", -1, "If >= 0, rewrite every outgoing frame's sender/recipient port bits for a host with one fixed sender address")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default maple-host-<hostname>)")
	configFile := flag.String("config", "", "Optional YAML file of per-endpoint priority and auto-repeat settings")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.serialDevs = splitDevs(*serialDevs)
	cfg.baud = *baud
	cfg.serialReadTO = *serialReadTO
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.cpuFreqMHz = *cpuFreqMHz
	cfg.minClockPeriodNs = *minClockPeriodNs
	cfg.lineCheckUs = *lineCheckUs
	cfg.writeTimeoutExtraPercent = *writeTimeoutExtraPercent
	cfg.interWordReadTimeoutUs = *interWordReadTimeoutUs
	cfg.singleSenderAddr = *singleSenderAddr
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.configFile = *configFile

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

func splitDevs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or listeners – only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if len(c.serialDevs) == 0 {
		return errors.New("at least one --serial device is required")
	}
	if len(c.serialDevs) > 4 {
		return fmt.Errorf("at most 4 buses supported, got %d devices", len(c.serialDevs))
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return errors.New("serial-read-timeout must be > 0")
	}
	if c.cpuFreqMHz <= 0 {
		return fmt.Errorf("cpu-freq-mhz must be > 0 (got %d)", c.cpuFreqMHz)
	}
	if c.minClockPeriodNs <= 0 {
		return fmt.Errorf("min-clock-period-ns must be > 0 (got %d)", c.minClockPeriodNs)
	}
	if c.singleSenderAddr < -1 || c.singleSenderAddr > 0xFF {
		return fmt.Errorf("single-sender-addr must be -1 (disabled) or fit a byte (got %d)", c.singleSenderAddr)
	}
	return nil
}

// applyEnvOverrides maps MAPLE_HOST_* environment variables to config fields
// unless a corresponding flag was explicitly set. Boolean & numeric parsing is
// lax: empty values are ignored. Duration accepts Go time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["serial"]; !ok {
		if v, ok := get("MAPLE_HOST_SERIAL"); ok && v != "" {
			c.serialDevs = splitDevs(v)
		}
	}
	if _, ok := set["baud"]; !ok {
		if v, ok := get("MAPLE_HOST_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.baud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid MAPLE_HOST_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["serial-read-timeout"]; !ok {
		if v, ok := get("MAPLE_HOST_SERIAL_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.serialReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid MAPLE_HOST_SERIAL_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("MAPLE_HOST_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("MAPLE_HOST_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("MAPLE_HOST_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("MAPLE_HOST_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid MAPLE_HOST_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["cpu-freq-mhz"]; !ok {
		if v, ok := get("MAPLE_HOST_CPU_FREQ_MHZ"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.cpuFreqMHz = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid MAPLE_HOST_CPU_FREQ_MHZ: %w", err)
			}
		}
	}
	if _, ok := set["min-clock-period-ns"]; !ok {
		if v, ok := get("MAPLE_HOST_MIN_CLOCK_PERIOD_NS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.minClockPeriodNs = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid MAPLE_HOST_MIN_CLOCK_PERIOD_NS: %w", err)
			}
		}
	}
	if _, ok := set["line-check-us"]; !ok {
		if v, ok := get("MAPLE_HOST_LINE_CHECK_US"); ok && v != "" {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				c.lineCheckUs = n
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid MAPLE_HOST_LINE_CHECK_US: %w", err)
			}
		}
	}
	if _, ok := set["write-timeout-slack-percent"]; !ok {
		if v, ok := get("MAPLE_HOST_WRITE_TIMEOUT_SLACK_PERCENT"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.writeTimeoutExtraPercent = n
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid MAPLE_HOST_WRITE_TIMEOUT_SLACK_PERCENT: %w", err)
			}
		}
	}
	if _, ok := set["inter-word-read-timeout-us"]; !ok {
		if v, ok := get("MAPLE_HOST_INTER_WORD_READ_TIMEOUT_US"); ok && v != "" {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				c.interWordReadTimeoutUs = n
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid MAPLE_HOST_INTER_WORD_READ_TIMEOUT_US: %w", err)
			}
		}
	}
	if _, ok := set["single-sender-addr"]; !ok {
		if v, ok := get("MAPLE_HOST_SINGLE_SENDER_ADDR"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.singleSenderAddr = n
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid MAPLE_HOST_SINGLE_SENDER_ADDR: %w", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("MAPLE_HOST_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("MAPLE_HOST_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["config"]; !ok {
		if v, ok := get("MAPLE_HOST_CONFIG"); ok && v != "" {
			c.configFile = v
		}
	}
	return firstErr
}
