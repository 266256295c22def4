package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const registryYAML = `
routes:
  - id: line-9
    name: Line 9
    active: true
    avgSpeedKMH: 20
    stops:
      - id: A
        name: Alpha
        lat: 0.0
        lon: 0.0
      - id: B
        name: Bravo
        lat: 0.008993
        lon: 0.0
vehicles:
  - id: bus-1
    routeID: line-9
`

func TestParse(t *testing.T) {
	idx, err := Parse([]byte(registryYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	route, ok := idx.Route("line-9")
	if !ok {
		t.Fatal("route not found after parse")
	}
	if route.Name != "Line 9" || !route.Active || route.AvgSpeedKMH != 20 {
		t.Errorf("route fields not parsed: %+v", route)
	}
	if len(route.Stops) != 2 {
		t.Fatalf("expected 2 stops, got %d", len(route.Stops))
	}
	if !idx.KnownVehicle("bus-1") {
		t.Error("vehicle assignment not parsed")
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "not yaml",
			yaml: "{{{",
		},
		{
			name: "no routes",
			yaml: "routes: []\n",
		},
		{
			name: "single stop route",
			yaml: strings.Replace(registryYAML, "      - id: B\n        name: Bravo\n        lat: 0.008993\n        lon: 0.0\n", "", 1),
		},
		{
			name: "stop without id",
			yaml: strings.Replace(registryYAML, "id: A", "name-only: A", 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected a parse or validation error")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yml")
	if err := os.WriteFile(path, []byte(registryYAML), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	idx, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(idx.RouteIDs()) != 1 {
		t.Errorf("expected 1 route, got %d", len(idx.RouteIDs()))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
