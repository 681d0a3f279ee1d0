package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleRegistry = `hub = "10.0.0.1"

[[zones]]
id = "z1"
validator = "10.0.1.1"
relayer_hub = "10.0.0.10"
relayer_zone = "10.0.1.10"
source = "10.0.1.200"

[[zones]]
id = "z2"
validator = "127.0.0.1:9101"
relayer_hub = "127.0.0.1:9201"
relayer_zone = "127.0.0.1:9202"
`

func writeRegistry(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	return path
}

func TestLoadRegistryResolvesPorts(t *testing.T) {
	reg, err := LoadRegistry(writeRegistry(t, sampleRegistry))
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	if reg.HubAddr() != "10.0.0.1:8000" {
		t.Fatalf("unexpected hub addr: %q", reg.HubAddr())
	}
	z1, ok := reg.Zone("z1")
	if !ok {
		t.Fatalf("z1 missing")
	}
	if z1.CommandAddr != "10.0.1.1:8001" || z1.RelayAddr != "10.0.1.1:8000" {
		t.Fatalf("unexpected validator addrs: %+v", z1)
	}
	if z1.RelayerHubAddr != "10.0.0.10:8000" || z1.RelayerZoneAddr != "10.0.1.10:8000" {
		t.Fatalf("unexpected relayer addrs: %+v", z1)
	}
	if z1.SourceAddr != "10.0.1.200" {
		t.Fatalf("unexpected source: %q", z1.SourceAddr)
	}

	z2, ok := reg.Zone("z2")
	if !ok {
		t.Fatalf("z2 missing")
	}
	if z2.CommandAddr != "127.0.0.1:9101" || z2.RelayAddr != "127.0.0.1:9101" {
		t.Fatalf("explicit ports should be kept: %+v", z2)
	}
	if z2.SourceAddr != "" {
		t.Fatalf("expected empty source, got %q", z2.SourceAddr)
	}

	ids := reg.ZoneIDs()
	if len(ids) != 2 || ids[0] != "z1" || ids[1] != "z2" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestLoadRegistryCustomPorts(t *testing.T) {
	body := "relay_port = 7000\ncommand_port = 7001\n" + sampleRegistry
	reg, err := LoadRegistry(writeRegistry(t, body))
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	z1, _ := reg.Zone("z1")
	if z1.CommandAddr != "10.0.1.1:7001" || z1.RelayAddr != "10.0.1.1:7000" {
		t.Fatalf("unexpected addrs: %+v", z1)
	}
}

func TestLoadRegistryMissingFile(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "nope.toml"))
	if !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
	if _, err := LoadRegistry(""); !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing for empty path, got %v", err)
	}
}

func TestLoadRegistryRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no hub":    "[[zones]]\nid = \"z1\"\nvalidator = \"a\"\nrelayer_hub = \"b\"\nrelayer_zone = \"c\"\n",
		"no zones":  "hub = \"10.0.0.1\"\n",
		"duplicate": sampleRegistry + "\n[[zones]]\nid = \"z1\"\nvalidator = \"a\"\nrelayer_hub = \"b\"\nrelayer_zone = \"c\"\n",
		"comma id":  "hub = \"h\"\n[[zones]]\nid = \"z,1\"\nvalidator = \"a\"\nrelayer_hub = \"b\"\nrelayer_zone = \"c\"\n",
		"parse":     "hub = \n",
	}
	for name, body := range cases {
		if _, err := LoadRegistry(writeRegistry(t, body)); !errors.Is(err, ErrInvalidRegistry) {
			t.Fatalf("%s: expected ErrInvalidRegistry, got %v", name, err)
		}
	}
}

func TestZoneIDFromNodeName(t *testing.T) {
	if got := ZoneIDFromNodeName("z3_v1"); got != "z3" {
		t.Fatalf("unexpected zone id: %q", got)
	}
	if got := ZoneIDFromNodeName("z4"); got != "z4" {
		t.Fatalf("unexpected zone id: %q", got)
	}
}

func TestWriteTemplateRoundTrip(t *testing.T) {
	for _, layout := range []string{LayoutMininet, LayoutLoopback} {
		path := filepath.Join(t.TempDir(), layout+".toml")
		if err := WriteTemplate(path, layout, 3, false); err != nil {
			t.Fatalf("%s: write template: %v", layout, err)
		}
		if err := WriteTemplate(path, layout, 3, false); err == nil {
			t.Fatalf("%s: expected refusal to overwrite", layout)
		}
		reg, err := LoadRegistry(path)
		if err != nil {
			t.Fatalf("%s: load template: %v", layout, err)
		}
		if len(reg.ZoneIDs()) != 3 {
			t.Fatalf("%s: unexpected zone count: %d", layout, len(reg.ZoneIDs()))
		}
	}

	raw, err := Template(LayoutMininet, 2)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if raw.Zones[1].RelayerHub != "10.0.0.11" || raw.Zones[1].Validator != "10.0.2.1" {
		t.Fatalf("unexpected mininet addressing: %+v", raw.Zones[1])
	}
	if _, err := Template("mesh", 2); err == nil {
		t.Fatalf("expected unknown layout error")
	}
}

func TestNewResolvedRegistry(t *testing.T) {
	ep := ZoneEndpoints{
		ZoneID:          "z1",
		CommandAddr:     "127.0.0.1:1001",
		RelayAddr:       "127.0.0.1:1000",
		RelayerHubAddr:  "127.0.0.1:1010",
		RelayerZoneAddr: "127.0.0.1:1011",
	}
	reg, err := NewResolvedRegistry("127.0.0.1:999", []ZoneEndpoints{ep})
	if err != nil {
		t.Fatalf("resolved registry: %v", err)
	}
	got, ok := reg.Zone("z1")
	if !ok || got != ep {
		t.Fatalf("unexpected endpoints: %+v", got)
	}
	if _, err := NewResolvedRegistry("127.0.0.1:999", []ZoneEndpoints{ep, ep}); !errors.Is(err, ErrInvalidRegistry) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	ep.RelayAddr = ""
	if _, err := NewResolvedRegistry("127.0.0.1:999", []ZoneEndpoints{ep}); !errors.Is(err, ErrInvalidRegistry) {
		t.Fatalf("expected incomplete rejection, got %v", err)
	}
}

func TestDefaultPathPrefersEnv(t *testing.T) {
	if got := DefaultPath(func(string) string { return "" }); got != DefaultRegistryPath {
		t.Fatalf("unexpected default path: %q", got)
	}
	env := map[string]string{"IBCSIM_CONFIG": " /etc/ibcsim/registry.toml "}
	if got := DefaultPath(func(k string) string { return env[k] }); got != "/etc/ibcsim/registry.toml" {
		t.Fatalf("unexpected env path: %q", got)
	}
}
