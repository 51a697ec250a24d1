package inventory

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultKind is the containerlab node kind polled when no kinds are configured.
const DefaultKind = "nokia_srlinux"

// ErrNoDevices is returned when neither list nor topology yields a device.
var ErrNoDevices = errors.New("inventory: no devices")

// topology is the subset of a containerlab topology file used here.
type topology struct {
	Name     string `yaml:"name"`
	Topology struct {
		Defaults node            `yaml:"defaults"`
		Nodes    map[string]node `yaml:"nodes"`
	} `yaml:"topology"`
}

type node struct {
	Kind     string `yaml:"kind"`
	MgmtIPv4 string `yaml:"mgmt-ipv4"`
}

// Devices merges explicit devices with topology nodes.
// Params: devices explicit ids; topologyPath optional containerlab file; kinds node kinds to keep.
// Returns: ordered unique device ids or error.
func Devices(devices []string, topologyPath string, kinds []string) ([]string, error) {
	out := make([]string, 0, len(devices))
	seen := make(map[string]struct{}, len(devices))
	add := func(device string) {
		device = strings.TrimSpace(device)
		if device == "" {
			return
		}
		if _, ok := seen[device]; ok {
			return
		}
		seen[device] = struct{}{}
		out = append(out, device)
	}

	for _, device := range devices {
		add(device)
	}

	if strings.TrimSpace(topologyPath) != "" {
		fromLab, err := LoadTopology(topologyPath, kinds)
		if err != nil {
			return nil, err
		}
		for _, device := range fromLab {
			add(device)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoDevices
	}
	return out, nil
}

// LoadTopology reads containerlab topology and returns addresses of matching nodes.
// Params: path topology YAML file; kinds node kinds to keep (DefaultKind when empty).
// Returns: device addresses sorted by node name.
func LoadTopology(path string, kinds []string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology %s: %w", path, err)
	}
	return ParseTopology(raw, kinds)
}

// ParseTopology decodes containerlab topology bytes.
// Params: raw YAML document; kinds node kinds to keep (DefaultKind when empty).
// Returns: mgmt-ipv4 when set, otherwise clab-<lab>-<node>, sorted by node name.
func ParseTopology(raw []byte, kinds []string) ([]string, error) {
	var lab topology
	if err := yaml.Unmarshal(raw, &lab); err != nil {
		return nil, fmt.Errorf("parse topology: %w", err)
	}
	if strings.TrimSpace(lab.Name) == "" {
		return nil, errors.New("parse topology: missing lab name")
	}

	keep := make(map[string]struct{}, len(kinds))
	for _, kind := range kinds {
		keep[strings.TrimSpace(kind)] = struct{}{}
	}
	if len(keep) == 0 {
		keep[DefaultKind] = struct{}{}
	}

	names := make([]string, 0, len(lab.Topology.Nodes))
	for name := range lab.Topology.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		n := lab.Topology.Nodes[name]
		if n.Kind == "" {
			n.Kind = lab.Topology.Defaults.Kind
		}
		if _, ok := keep[n.Kind]; !ok {
			continue
		}
		if n.MgmtIPv4 != "" {
			out = append(out, n.MgmtIPv4)
			continue
		}
		out = append(out, fmt.Sprintf("clab-%s-%s", lab.Name, name))
	}
	return out, nil
}
