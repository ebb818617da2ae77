// Package config loads the greeter configuration snapshot and persists the
// last successfully authenticated username between boots.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the system-wide config lives unless overridden.
const DefaultPath = "/etc/greetui/config.yaml"

// Session is one selectable entry in the session picker.
type Session struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`
}

// Colors holds hex color overrides for the theme. Empty fields keep the
// built-in palette.
type Colors struct {
	Title  string `yaml:"title"`
	Border string `yaml:"border"`
	Focus  string `yaml:"focus"`
	Text   string `yaml:"text"`
	Error  string `yaml:"error"`
	Muted  string `yaml:"muted"`
}

type UI struct {
	ShowClock    bool   `yaml:"show_clock"`
	ClockFormat  string `yaml:"clock_format"`
	ShowDate     bool   `yaml:"show_date"`
	DateFormat   string `yaml:"date_format"`
	Colors       Colors `yaml:"colors"`
	FieldWidth   int    `yaml:"field_width"`
	FieldHeight  int    `yaml:"field_height"`
	FieldSpacing int    `yaml:"field_spacing"`
	Title        string `yaml:"title"`
}

type Security struct {
	ClearPasswordOnError bool `yaml:"clear_password_on_error"`
	MaskPassword         bool `yaml:"mask_password"`
	// InputTimeout is the idle timeout in seconds, measured from the last
	// keystroke. Zero disables it.
	InputTimeout uint `yaml:"input_timeout"`
}

type Config struct {
	DefaultUser     string    `yaml:"default_user"`
	DisableAutofill bool      `yaml:"disable_autofill"`
	Sessions        []Session `yaml:"sessions"`
	UI              UI        `yaml:"ui"`
	Security        Security  `yaml:"security"`
	// EnvFile points at a dotenv file whose entries are handed to the daemon
	// as the session environment.
	EnvFile   string `yaml:"env_file"`
	DebugExit bool   `yaml:"debug_exit"`
	LogFile   string `yaml:"log_file"`

	// LastUser is loaded from the state file, not the config document.
	LastUser string `yaml:"-"`
}

// ErrNoSessions is returned when the config declares no sessions; the greeter
// has nothing to offer and must exit with the config error code.
var ErrNoSessions = errors.New("config: sessions list is missing or empty")

// Default returns the documented defaults, without any sessions.
func Default() Config {
	return Config{
		UI: UI{
			ShowClock:    true,
			ClockFormat:  "15:04:05",
			ShowDate:     true,
			DateFormat:   "Monday, January 2",
			FieldWidth:   36,
			FieldHeight:  3,
			FieldSpacing: 1,
			Title:        "Welcome",
		},
		Security: Security{
			ClearPasswordOnError: true,
			MaskPassword:         true,
		},
	}
}

// Load reads and validates the config document at path. Unknown fields are
// ignored; missing optional fields take the Default() values. A missing or
// empty sessions list is an error.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a config document and applies defaults.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.UI.ClockFormat == "" {
		c.UI.ClockFormat = def.UI.ClockFormat
	}
	if c.UI.DateFormat == "" {
		c.UI.DateFormat = def.UI.DateFormat
	}
	if c.UI.FieldWidth <= 0 {
		c.UI.FieldWidth = def.UI.FieldWidth
	}
	if c.UI.FieldHeight <= 0 {
		c.UI.FieldHeight = def.UI.FieldHeight
	}
	if c.UI.FieldSpacing < 0 {
		c.UI.FieldSpacing = def.UI.FieldSpacing
	}
	if c.UI.Title == "" {
		c.UI.Title = def.UI.Title
	}
}

func (c *Config) validate() error {
	if len(c.Sessions) == 0 {
		return ErrNoSessions
	}
	for i, s := range c.Sessions {
		if s.Name == "" || s.Command == "" {
			return fmt.Errorf("config: sessions[%d]: name and command are required", i)
		}
	}
	return nil
}
