// Package config is the configuration of the interlocking daemon.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"nyiyui.ca/hato/interlocking/layout"
	"nyiyui.ca/hato/interlocking/point"
)

type Config struct {
	Listen string `json:"listen"`
	DBPath string `json:"db-path"`
	// Preset is the layout used when the database is empty: "station" or "empty".
	Preset string `json:"preset"`
	Driver Driver `json:"driver"`

	// CORSOrigins are the origins of browser UIs allowed to call the API.
	CORSOrigins []string `json:"cors-origins"`
}

type Driver struct {
	// Kind is "sim" or "serial".
	Kind      string   `json:"kind"`
	ThrowTime Duration `json:"throw-time"`
	Serial    Serial   `json:"serial"`
}

type Serial struct {
	// Path is the serial port, or "auto" to probe for a controller of type Device.
	Path   string   `json:"path"`
	Device string   `json:"device"`
	Baud   int      `json:"baud"`
	Power  uint8    `json:"power"`
	Pulse  Duration `json:"pulse"`
	Lines  []Line   `json:"lines"`
}

// Line assigns a switch to a line of the point controller.
type Line struct {
	Track layout.TrackID `json:"track"`
	Line  string         `json:"line"`
}

// Duration is a time.Duration written as a string like "300ms".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func Default() Config {
	return Config{
		Listen: "127.0.0.1:8080",
		DBPath: "interlocking.db",
		Preset: "station",
		Driver: Driver{
			Kind:      "sim",
			ThrowTime: Duration(300 * time.Millisecond),
			Serial: Serial{
				Device: "soyuu-line-mega-0",
				Baud:   115200,
				Power:  255,
				Pulse:  Duration(100 * time.Millisecond),
			},
		},
	}
}

// Load reads the config file at path over Default.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	err = json.Unmarshal(data, &c)
	if err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c Config) Validate() error {
	switch c.Preset {
	case "station", "empty":
	default:
		return fmt.Errorf("unknown preset %q", c.Preset)
	}
	switch c.Driver.Kind {
	case "sim":
	case "serial":
		if c.Driver.Serial.Path == "" {
			return errors.New("serial driver needs a path")
		}
		if _, err := c.Driver.Serial.Conf(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown driver %q", c.Driver.Kind)
	}
	return nil
}

// Conf returns the point.SerialConf for the lines.
func (s Serial) Conf() (point.SerialConf, error) {
	conf := point.SerialConf{
		Lines: map[layout.TrackID]byte{},
		Power: s.Power,
		Pulse: time.Duration(s.Pulse),
	}
	for i, l := range s.Lines {
		if len(l.Line) != 1 || l.Line[0] < 'A' || l.Line[0] > 'Z' {
			return point.SerialConf{}, fmt.Errorf("line %d: invalid line %q", i, l.Line)
		}
		if _, ok := conf.Lines[l.Track]; ok {
			return point.SerialConf{}, fmt.Errorf("line %d: track %d assigned twice", i, l.Track)
		}
		conf.Lines[l.Track] = l.Line[0]
	}
	return conf, nil
}
