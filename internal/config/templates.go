package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	LayoutMininet  = "mininet"
	LayoutLoopback = "loopback"
)

// loopback layouts give every listener its own port starting here.
const loopbackBasePort = 18000

// Template builds a registry for n zones named z1..zn.
//
// The mininet layout follows the topology addressing: hub 10.0.0.1, validator 10.0.<i>.1,
// relayer 10.0.0.<9+i> on the hub network and 10.0.<i>.10 on the zone network, generator
// source 10.0.<i>.200. The loopback layout keeps the hub and relayers on 127.0.0.1 with distinct
// ports and gives validator i the address 127.0.0.<i+1>.
func Template(layout string, n int) (File, error) {
	if n <= 0 {
		return File{}, fmt.Errorf("zone count must be positive: %d", n)
	}
	switch strings.ToLower(strings.TrimSpace(layout)) {
	case LayoutMininet:
		out := File{
			Hub:         "10.0.0.1",
			RelayPort:   DefaultRelayPort,
			CommandPort: DefaultCommandPort,
			Zones:       make([]ZoneEntry, 0, n),
		}
		for i := 1; i <= n; i++ {
			out.Zones = append(out.Zones, ZoneEntry{
				ID:          fmt.Sprintf("z%d", i),
				Validator:   fmt.Sprintf("10.0.%d.1", i),
				RelayerHub:  fmt.Sprintf("10.0.0.%d", 9+i),
				RelayerZone: fmt.Sprintf("10.0.%d.10", i),
				Source:      fmt.Sprintf("10.0.%d.200", i),
			})
		}
		return out, nil
	case LayoutLoopback:
		out := File{
			Hub:         fmt.Sprintf("127.0.0.1:%d", loopbackBasePort),
			RelayPort:   DefaultRelayPort,
			CommandPort: DefaultCommandPort,
			Zones:       make([]ZoneEntry, 0, n),
		}
		for i := 1; i <= n; i++ {
			base := loopbackBasePort + i*10
			// validators get one loopback address each so both default ports stay free
			out.Zones = append(out.Zones, ZoneEntry{
				ID:          fmt.Sprintf("z%d", i),
				Validator:   fmt.Sprintf("127.0.0.%d", i+1),
				RelayerHub:  fmt.Sprintf("127.0.0.1:%d", base+1),
				RelayerZone: fmt.Sprintf("127.0.0.1:%d", base+2),
				Source:      "127.0.0.1",
			})
		}
		return out, nil
	default:
		return File{}, fmt.Errorf("unknown registry layout: %s", layout)
	}
}

func Encode(raw File) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func WriteTemplate(path, layout string, n int, overwrite bool) error {
	raw, err := Template(layout, n)
	if err != nil {
		return err
	}
	if err := ValidateFile(raw); err != nil {
		return err
	}
	data, err := Encode(raw)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, data, 0o600)
}
