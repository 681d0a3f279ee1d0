package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultRelayPort   = 8000
	DefaultCommandPort = 8001

	DefaultRegistryPath = "ibcsim.toml"
	envRegistryPath     = "IBCSIM_CONFIG"
)

var (
	ErrConfigurationMissing = errors.New("config: registry unavailable")
	ErrInvalidRegistry      = errors.New("config: invalid registry")
)

// Lookup is the narrow view of the endpoint registry the relay core depends on.
type Lookup interface {
	Zone(id string) (ZoneEndpoints, bool)
	ZoneIDs() []string
	HubAddr() string
}

// ZoneEndpoints holds the resolved host:port addresses for one zone.
type ZoneEndpoints struct {
	ZoneID string
	// CommandAddr is the validator's command listener.
	CommandAddr string
	// RelayAddr is the validator's relay listener.
	RelayAddr string
	// RelayerHubAddr is the relayer's listener on the hub network.
	RelayerHubAddr string
	// RelayerZoneAddr is the relayer's listener on the zone network.
	RelayerZoneAddr string
	// SourceAddr is the local host the generator binds when dialing this zone. Empty lets the OS pick.
	SourceAddr string
}

// ZoneEntry is one [[zones]] table as written in the registry file.
type ZoneEntry struct {
	ID          string `toml:"id"`
	Validator   string `toml:"validator"`
	RelayerHub  string `toml:"relayer_hub"`
	RelayerZone string `toml:"relayer_zone"`
	Source      string `toml:"source"`
}

// File is the on-disk registry layout.
type File struct {
	Hub         string      `toml:"hub"`
	RelayPort   int         `toml:"relay_port"`
	CommandPort int         `toml:"command_port"`
	Zones       []ZoneEntry `toml:"zones"`
}

// Registry is a static, read-only Lookup built from a File.
type Registry struct {
	hub   string
	order []string
	zones map[string]ZoneEndpoints
}

var _ Lookup = (*Registry)(nil)

func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: no registry path", ErrConfigurationMissing)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %v", ErrConfigurationMissing, path, err)
	}
	var raw File
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidRegistry, path, err)
	}
	if !meta.IsDefined("relay_port") {
		raw.RelayPort = DefaultRelayPort
	}
	if !meta.IsDefined("command_port") {
		raw.CommandPort = DefaultCommandPort
	}
	return NewRegistry(raw)
}

func NewRegistry(raw File) (*Registry, error) {
	if raw.RelayPort == 0 {
		raw.RelayPort = DefaultRelayPort
	}
	if raw.CommandPort == 0 {
		raw.CommandPort = DefaultCommandPort
	}
	if err := ValidateFile(raw); err != nil {
		return nil, err
	}
	reg := &Registry{
		hub:   withPort(raw.Hub, raw.RelayPort),
		order: make([]string, 0, len(raw.Zones)),
		zones: make(map[string]ZoneEndpoints, len(raw.Zones)),
	}
	for _, entry := range raw.Zones {
		id := strings.TrimSpace(entry.ID)
		reg.order = append(reg.order, id)
		reg.zones[id] = ZoneEndpoints{
			ZoneID:          id,
			CommandAddr:     withPort(entry.Validator, raw.CommandPort),
			RelayAddr:       withPort(entry.Validator, raw.RelayPort),
			RelayerHubAddr:  withPort(entry.RelayerHub, raw.RelayPort),
			RelayerZoneAddr: withPort(entry.RelayerZone, raw.RelayPort),
			SourceAddr:      strings.TrimSpace(entry.Source),
		}
	}
	return reg, nil
}

// NewResolvedRegistry builds a Registry from already-resolved endpoints, for layouts where a
// validator's command and relay listeners do not share a host.
func NewResolvedRegistry(hub string, zones []ZoneEndpoints) (*Registry, error) {
	if strings.TrimSpace(hub) == "" {
		return nil, fmt.Errorf("%w: missing hub", ErrInvalidRegistry)
	}
	if len(zones) == 0 {
		return nil, fmt.Errorf("%w: no zones", ErrInvalidRegistry)
	}
	reg := &Registry{
		hub:   strings.TrimSpace(hub),
		order: make([]string, 0, len(zones)),
		zones: make(map[string]ZoneEndpoints, len(zones)),
	}
	for _, ep := range zones {
		if strings.TrimSpace(ep.ZoneID) == "" || ep.CommandAddr == "" || ep.RelayAddr == "" ||
			ep.RelayerHubAddr == "" || ep.RelayerZoneAddr == "" {
			return nil, fmt.Errorf("%w: incomplete endpoints for zone %q", ErrInvalidRegistry, ep.ZoneID)
		}
		if _, dup := reg.zones[ep.ZoneID]; dup {
			return nil, fmt.Errorf("%w: duplicate zone id %q", ErrInvalidRegistry, ep.ZoneID)
		}
		reg.order = append(reg.order, ep.ZoneID)
		reg.zones[ep.ZoneID] = ep
	}
	return reg, nil
}

func ValidateFile(raw File) error {
	if strings.TrimSpace(raw.Hub) == "" {
		return fmt.Errorf("%w: missing hub", ErrInvalidRegistry)
	}
	if raw.RelayPort < 0 || raw.RelayPort > 65535 {
		return fmt.Errorf("%w: relay_port out of range: %d", ErrInvalidRegistry, raw.RelayPort)
	}
	if raw.CommandPort < 0 || raw.CommandPort > 65535 {
		return fmt.Errorf("%w: command_port out of range: %d", ErrInvalidRegistry, raw.CommandPort)
	}
	if len(raw.Zones) == 0 {
		return fmt.Errorf("%w: no zones", ErrInvalidRegistry)
	}
	seen := make(map[string]struct{}, len(raw.Zones))
	for i, entry := range raw.Zones {
		if err := ValidateZoneEntry(entry); err != nil {
			return fmt.Errorf("%w: zones[%d]: %v", ErrInvalidRegistry, i, err)
		}
		id := strings.TrimSpace(entry.ID)
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate zone id %q", ErrInvalidRegistry, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func ValidateZoneEntry(entry ZoneEntry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.ContainsAny(entry.ID, ", \t\n") {
		return fmt.Errorf("id %q must not contain commas or whitespace", entry.ID)
	}
	if strings.TrimSpace(entry.Validator) == "" {
		return fmt.Errorf("validator is required")
	}
	if strings.TrimSpace(entry.RelayerHub) == "" {
		return fmt.Errorf("relayer_hub is required")
	}
	if strings.TrimSpace(entry.RelayerZone) == "" {
		return fmt.Errorf("relayer_zone is required")
	}
	return nil
}

func (r *Registry) Zone(id string) (ZoneEndpoints, bool) {
	ep, ok := r.zones[id]
	return ep, ok
}

// ZoneIDs returns zone ids in registry order.
func (r *Registry) ZoneIDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) HubAddr() string {
	return r.hub
}

// SortedZoneIDs is ZoneIDs in lexical order.
func SortedZoneIDs(l Lookup) []string {
	ids := l.ZoneIDs()
	sort.Strings(ids)
	return ids
}

// DefaultPath is the registry path used when no -config flag is given: IBCSIM_CONFIG if set,
// otherwise DefaultRegistryPath.
func DefaultPath(getenv func(string) string) string {
	if getenv != nil {
		if v := strings.TrimSpace(getenv(envRegistryPath)); v != "" {
			return v
		}
	}
	return DefaultRegistryPath
}

// ZoneIDFromNodeName maps a node name like "z1_v1" to its zone id "z1".
func ZoneIDFromNodeName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.IndexByte(name, '_'); i > 0 {
		return name[:i]
	}
	return name
}

// withPort keeps an explicit host:port and appends port to a bare host.
func withPort(addr string, port int) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}
