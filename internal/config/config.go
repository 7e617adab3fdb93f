package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "fieldline.yml"

// Config models fieldline.yml.
type Config struct {
	Checkin struct {
		DuplicateInterval Duration `yaml:"duplicate_interval" json:"duplicate_interval"`
		MaxAccuracyMeters float64  `yaml:"max_accuracy_meters" json:"max_accuracy_meters"`
	} `yaml:"checkin" json:"checkin"`
	Mission struct {
		MaxDuration Duration `yaml:"max_duration" json:"max_duration"`
	} `yaml:"mission" json:"mission"`
	Calendar Calendar `yaml:"calendar" json:"calendar"`
	Report   struct {
		Concurrency int `yaml:"concurrency" json:"concurrency"`
	} `yaml:"report" json:"report"`
	Log struct {
		Level string `yaml:"level" json:"level"`
	} `yaml:"log" json:"log"`
}

// Calendar describes the working-calendar policy. Leaving it empty makes
// every day a working day; weekend days are only excluded when listed.
type Calendar struct {
	Weekend   []string        `yaml:"weekend" json:"weekend,omitempty"`
	USFederal bool            `yaml:"us_federal" json:"us_federal,omitempty"`
	Annual    []AnnualHoliday `yaml:"annual" json:"annual,omitempty"`
	Dates     []string        `yaml:"dates" json:"dates,omitempty"`
}

type AnnualHoliday struct {
	Name string `yaml:"name" json:"name"`
	Date string `yaml:"date" json:"date"` // MM-DD
}

func (c Calendar) IsZero() bool {
	return len(c.Weekend) == 0 && !c.USFederal && len(c.Annual) == 0 && len(c.Dates) == 0
}

// Duration reads Go duration strings ("5m", "12h") from YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Checkin.DuplicateInterval.Duration < 0 {
		return fmt.Errorf("config.checkin.duplicate_interval must not be negative")
	}
	if c.Checkin.MaxAccuracyMeters < 0 {
		return fmt.Errorf("config.checkin.max_accuracy_meters must not be negative")
	}
	if c.Mission.MaxDuration.Duration < 0 {
		return fmt.Errorf("config.mission.max_duration must not be negative")
	}
	if c.Report.Concurrency < 0 {
		return fmt.Errorf("config.report.concurrency must not be negative")
	}
	for _, h := range c.Calendar.Annual {
		if h.Date == "" {
			return fmt.Errorf("annual holiday %q has empty date", h.Name)
		}
	}
	for _, d := range c.Calendar.Dates {
		if d == "" {
			return fmt.Errorf("config.calendar.dates contains an empty date")
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with fieldline config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to Default when the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes. Keys the
// document omits keep their default values.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		return nil, fmt.Errorf("default config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `checkin:
  # accepted check-ins of the same mission closer than this are duplicates; 0 disables
  duplicate_interval: 5m
  # reject fixes reported less accurate than this; 0 disables
  max_accuracy_meters: 0

mission:
  # active missions older than this are closed by "mission sweep"; 0 disables
  max_duration: 0s

# empty calendar: every day is a working day
calendar:
  weekend: []
  us_federal: false
  annual: []
  dates: []

report:
  concurrency: 4

log:
  level: info
`
