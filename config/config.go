// Package config loads the monitor's YAML configuration. A path may name a
// single file or a directory whose *.yaml files are merged in name order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides for the per-role log paths.
const (
	EnvPrimaryLog = "PRIMARY_LOG"
	EnvSyncRefLog = "SYNCREF_LOG"
	EnvNearbyLog  = "NEARBY_LOG"
)

// Default log file names, relative to the user's home directory.
const (
	DefaultPrimaryLogName = "syncref_sl.log"
	DefaultNearbyLogName  = "nearby_ue_sl.log"
)

// Config represents the complete monitor configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Sources  SourcesConfig  `yaml:"sources"`
	History  HistoryConfig  `yaml:"history"`
	Poller   PollerConfig   `yaml:"poller"`
	Logging  LoggingConfig  `yaml:"logging"`
	UI       UIConfig       `yaml:"ui"`
	Recorder RecorderConfig `yaml:"recorder"`
	MQTT     MQTTConfig     `yaml:"mqtt"`

	// LoadedFrom is the file or directory the configuration was read from;
	// empty when only defaults apply.
	LoadedFrom string `yaml:"-"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Name   string `yaml:"name"`
	Listen string `yaml:"listen"`
}

// SourcesConfig holds one entry per role.
type SourcesConfig struct {
	Primary SourceConfig `yaml:"primary"`
	Nearby  SourceConfig `yaml:"nearby"`
}

// SourceConfig describes one monitored radio process. Radio parameters are
// static labels echoed by the API.
type SourceConfig struct {
	Path      string `yaml:"path"`
	Label     string `yaml:"label"`
	Carrier   string `yaml:"carrier"`
	Bandwidth string `yaml:"bandwidth"`
	MCS       int    `yaml:"mcs"`
	TxPower   string `yaml:"tx_power"`
	RxGain    string `yaml:"rx_gain"`
}

// HistoryConfig sizes the per-role sample buffers.
type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

// PollerConfig enables background polling. Zero keeps polling request driven.
type PollerConfig struct {
	IntervalMS int `yaml:"interval_ms"`
}

// Interval returns the poll interval, zero when disabled.
func (p PollerConfig) Interval() time.Duration {
	if p.IntervalMS <= 0 {
		return 0
	}
	return time.Duration(p.IntervalMS) * time.Millisecond
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
	StatsInterval int    `yaml:"stats_interval_seconds"`
}

// UIConfig selects the local console surface.
type UIConfig struct {
	Mode      string `yaml:"mode"`
	RefreshMS int    `yaml:"refresh_ms"`
}

// RecorderConfig controls the SQLite observation export.
type RecorderConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DBPath       string `yaml:"db_path"`
	PerRoleLimit int    `yaml:"per_role_limit"`
	QueueSize    int    `yaml:"queue_size"`
	BatchSize    int    `yaml:"batch_size"`
}

// MQTTConfig controls observation publishing.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Port        int    `yaml:"port"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
	QoS         byte   `yaml:"qos"`
}

// Default returns a configuration with every default applied and log paths
// resolved from the environment.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg
}

// Purpose: Load configuration from a YAML file or a directory of YAML files.
// Key aspects: Directory entries merge in lexical order; defaults then env
// overrides are applied after parsing.
// Upstream: main loadMonitorConfig, cmd/slstat.
// Downstream: yaml.Unmarshal, applyDefaults, applyEnv.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	files := []string{path}
	if info.IsDir() {
		files, err = yamlFiles(path)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("config: no yaml files in %s", path)
		}
	}

	var cfg Config
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", file, err)
		}
	}
	cfg.LoadedFrom = path
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Server.Name) == "" {
		c.Server.Name = "Sidelink Monitor"
	}
	if strings.TrimSpace(c.Server.Listen) == "" {
		c.Server.Listen = "0.0.0.0:5000"
	}
	home, _ := os.UserHomeDir()
	applySourceDefaults(&c.Sources.Primary, filepath.Join(home, DefaultPrimaryLogName), "Primary Sync Source")
	applySourceDefaults(&c.Sources.Nearby, filepath.Join(home, DefaultNearbyLogName), "Synchronized Receiver")
	if c.Sources.Primary.TxPower == "" {
		c.Sources.Primary.TxPower = "23 dBm"
	}
	if c.Sources.Nearby.RxGain == "" {
		c.Sources.Nearby.RxGain = "Auto"
	}
	if c.History.Capacity <= 0 {
		c.History.Capacity = 120
	}
	if strings.TrimSpace(c.Logging.Dir) == "" {
		c.Logging.Dir = filepath.Join("data", "logs")
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = 7
	}
	if c.Logging.StatsInterval <= 0 {
		c.Logging.StatsInterval = 60
	}
	if strings.TrimSpace(c.UI.Mode) == "" {
		c.UI.Mode = "headless"
	}
	if c.UI.RefreshMS <= 0 {
		c.UI.RefreshMS = 2000
	}
	if strings.TrimSpace(c.Recorder.DBPath) == "" {
		c.Recorder.DBPath = filepath.Join("data", "records", "observations.db")
	}
	if c.Recorder.PerRoleLimit <= 0 {
		c.Recorder.PerRoleLimit = 100000
	}
	if c.Recorder.QueueSize <= 0 {
		c.Recorder.QueueSize = 1024
	}
	if c.Recorder.BatchSize <= 0 {
		c.Recorder.BatchSize = 64
	}
	if strings.TrimSpace(c.MQTT.Broker) == "" {
		c.MQTT.Broker = "localhost"
	}
	if c.MQTT.Port <= 0 {
		c.MQTT.Port = 1883
	}
	if strings.TrimSpace(c.MQTT.TopicPrefix) == "" {
		c.MQTT.TopicPrefix = "sidelink"
	}
	if strings.TrimSpace(c.MQTT.ClientID) == "" {
		c.MQTT.ClientID = "sidelinkmon"
	}
}

func applySourceDefaults(s *SourceConfig, path, label string) {
	if strings.TrimSpace(s.Path) == "" {
		s.Path = path
	}
	if strings.TrimSpace(s.Label) == "" {
		s.Label = label
	}
	if s.Carrier == "" {
		s.Carrier = "2.6 GHz"
	}
	if s.Bandwidth == "" {
		s.Bandwidth = "106 RBs"
	}
	if s.MCS == 0 {
		s.MCS = 9
	}
}

// applyEnv lets the per-role environment variables override file paths.
// PRIMARY_LOG wins over the legacy SYNCREF_LOG.
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvSyncRefLog)); v != "" {
		c.Sources.Primary.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPrimaryLog)); v != "" {
		c.Sources.Primary.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvNearbyLog)); v != "" {
		c.Sources.Nearby.Path = v
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.UI.Mode)) {
	case "headless", "tview":
	default:
		return fmt.Errorf("config: ui.mode %q must be headless or tview", c.UI.Mode)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("config: mqtt.qos %d out of range", c.MQTT.QoS)
	}
	return nil
}

// Print displays the configuration
func (c *Config) Print() {
	fmt.Printf("Server: %s on %s\n", c.Server.Name, c.Server.Listen)
	fmt.Printf("Primary log: %s\n", c.Sources.Primary.Path)
	fmt.Printf("Nearby log: %s\n", c.Sources.Nearby.Path)
	fmt.Printf("History: %d samples per series\n", c.History.Capacity)
	if iv := c.Poller.Interval(); iv > 0 {
		fmt.Printf("Background poller: every %s\n", iv)
	}
	if c.Recorder.Enabled {
		fmt.Printf("Recorder: %s (limit %d per role)\n", c.Recorder.DBPath, c.Recorder.PerRoleLimit)
	}
	if c.MQTT.Enabled {
		fmt.Printf("MQTT: %s:%d (topic prefix: %s)\n", c.MQTT.Broker, c.MQTT.Port, c.MQTT.TopicPrefix)
	}
}
