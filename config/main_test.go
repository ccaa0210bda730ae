package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/interlocking/layout"
	"nyiyui.ca/hato/interlocking/point"
)

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %s", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := write(t, `{
		"listen": ":9000",
		"cors-origins": ["http://localhost:5173"],
		"driver": {
			"kind": "serial",
			"serial": {
				"path": "/dev/ttyACM0",
				"pulse": "50ms",
				"lines": [{"track": 2, "line": "A"}, {"track": 5, "line": "C"}]
			}
		}
	}`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %s", err)
	}
	expected := Default()
	expected.Listen = ":9000"
	expected.CORSOrigins = []string{"http://localhost:5173"}
	expected.Driver.Kind = "serial"
	expected.Driver.Serial.Path = "/dev/ttyACM0"
	expected.Driver.Serial.Pulse = Duration(50 * time.Millisecond)
	expected.Driver.Serial.Lines = []Line{{2, "A"}, {5, "C"}}
	if diff := cmp.Diff(c, expected); diff != "" {
		t.Fatalf("diff: %s", diff)
	}
	sc, err := c.Driver.Serial.Conf()
	if err != nil {
		t.Fatalf("serial conf: %s", err)
	}
	expectedSC := point.SerialConf{
		Lines: map[layout.TrackID]byte{2: 'A', 5: 'C'},
		Power: 255,
		Pulse: 50 * time.Millisecond,
	}
	if diff := cmp.Diff(sc, expectedSC); diff != "" {
		t.Fatalf("serial conf diff: %s", diff)
	}
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"driver":   `{"driver": {"kind": "telegraph"}}`,
		"preset":   `{"preset": "yard"}`,
		"no path":  `{"driver": {"kind": "serial"}}`,
		"line":     `{"driver": {"kind": "serial", "serial": {"path": "x", "lines": [{"track": 1, "line": "AB"}]}}}`,
		"twice":    `{"driver": {"kind": "serial", "serial": {"path": "x", "lines": [{"track": 1, "line": "A"}, {"track": 1, "line": "B"}]}}}`,
		"duration": `{"driver": {"throw-time": "soon"}}`,
		"json":     `{`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(write(t, content)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error")
	}
}
