package layout

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExportImport(t *testing.T) {
	for name, init := range map[string]func() (*Layout, error){
		"station":  InitStation,
		"junction": InitJunction,
	} {
		t.Run(name, func(t *testing.T) {
			x := MustInit(init()).Export()
			data, err := json.Marshal(x)
			if err != nil {
				t.Fatalf("marshal: %s", err)
			}
			var x2 []TrackRecord
			if err := json.Unmarshal(data, &x2); err != nil {
				t.Fatalf("unmarshal: %s", err)
			}
			y, err := Import(x2)
			if err != nil {
				t.Fatalf("import: %s", err)
			}
			if got := y.Export(); !cmp.Equal(got, x) {
				t.Fatalf("diff: %s", cmp.Diff(got, x))
			}
		})
	}
}

func TestImportJSON(t *testing.T) {
	const data = `[
		{"id": 1, "kind": "straight", "position": "none", "ports": [{"x": 0, "y": 0}, {"x": 10, "y": 0, "conn": {"track": 2, "port": 0}}]},
		{"id": 2, "kind": "point_right", "position": "reverse", "ports": [{"x": 10, "y": 0, "conn": {"track": 1, "port": 1}}, {"x": 20, "y": 0}, {"x": 20, "y": 5}]}
	]`
	var rs []TrackRecord
	if err := json.Unmarshal([]byte(data), &rs); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	y, err := Import(rs)
	if err != nil {
		t.Fatalf("import: %s", err)
	}
	tr, _ := y.Track(2)
	if tr.Kind != KindPointRight || tr.Position != PositionReverse {
		t.Fatalf("track 2: %#v", tr)
	}
	if got, ok := y.Neighbor(PortRef{1, 1}); !ok || got != (PortRef{2, 0}) {
		t.Fatalf("Neighbor = %s %t", got, ok)
	}
}

func TestImportAsymmetric(t *testing.T) {
	rs := []TrackRecord{
		{ID: 1, Kind: KindStraight, Ports: []PortRecord{{}, {Conn: &PortRef{2, 0}}}},
		{ID: 2, Kind: KindStraight, Ports: []PortRecord{{}, {}}},
	}
	_, err := Import(rs)
	if err == nil || !strings.Contains(err.Error(), "not the other way around") {
		t.Fatalf("expected asymmetry error, got %v", err)
	}
	rs[0].Ports[1].Conn = &PortRef{3, 0}
	if _, err := Import(rs); err == nil {
		t.Fatalf("expected error for missing peer")
	}
}
