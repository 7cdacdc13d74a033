// Package inventory supplies the hosts a play targets, their group
// membership, and per-host/per-group variables. Inventory source parsing is a
// collaborator; this package defines the provider contract and a static
// in-memory implementation used to seed each host's variable store once per
// play.
package inventory

import (
	"fmt"
	"sort"
	"strings"
)

// Host is a remote machine the engine can execute against.
type Host struct {
	// Name is the inventory-unique host name.
	Name string `yaml:"name" json:"name"`

	// Address is the reachable address; defaults to Name when empty.
	Address string `yaml:"address,omitempty" json:"address,omitempty"`

	// Port is the remote access port (default 22 for the SSH backend).
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// User is the authentication identity. Part of the connection-pool key.
	User string `yaml:"user,omitempty" json:"user,omitempty"`

	// Vars are host-level variables, seeded at host-vars precedence.
	Vars map[string]interface{} `yaml:"vars,omitempty" json:"vars,omitempty"`
}

// DialAddress returns the address to connect to, falling back to the name.
func (h *Host) DialAddress() string {
	if h.Address != "" {
		return h.Address
	}
	return h.Name
}

// Group names a set of hosts sharing variables at group-vars precedence.
type Group struct {
	Name  string                 `yaml:"name" json:"name"`
	Hosts []string               `yaml:"hosts" json:"hosts"`
	Vars  map[string]interface{} `yaml:"vars,omitempty" json:"vars,omitempty"`
}

// Provider is the inventory contract the engine consumes. It is queried once
// per play to enumerate targets and seed variable stores.
type Provider interface {
	// Select returns the hosts matching pattern: a host name, a group name,
	// "all", or a comma-separated combination. Order is deterministic.
	Select(pattern string) ([]*Host, error)

	// Lookup returns a single host by name.
	Lookup(name string) (*Host, bool)

	// GroupVars returns the merged group variables for a host, in group
	// declaration order (later groups override earlier ones).
	GroupVars(host string) map[string]interface{}
}

// Static is an in-memory Provider.
type Static struct {
	hosts  map[string]*Host
	groups []*Group
}

// NewStatic builds a static inventory from hosts and groups. Group members
// that name unknown hosts are rejected.
func NewStatic(hosts []*Host, groups []*Group) (*Static, error) {
	s := &Static{
		hosts:  make(map[string]*Host, len(hosts)),
		groups: groups,
	}
	for _, h := range hosts {
		if h.Name == "" {
			return nil, fmt.Errorf("inventory host with empty name")
		}
		if _, dup := s.hosts[h.Name]; dup {
			return nil, fmt.Errorf("duplicate inventory host %q", h.Name)
		}
		s.hosts[h.Name] = h
	}
	for _, g := range groups {
		for _, member := range g.Hosts {
			if _, ok := s.hosts[member]; !ok {
				return nil, fmt.Errorf("group %q references unknown host %q", g.Name, member)
			}
		}
	}
	return s, nil
}

// Select implements Provider.
func (s *Static) Select(pattern string) ([]*Host, error) {
	seen := make(map[string]bool)
	var out []*Host

	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, s.hosts[name])
		}
	}

	for _, part := range strings.Split(pattern, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
			continue
		case part == "all":
			names := make([]string, 0, len(s.hosts))
			for name := range s.hosts {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				add(name)
			}
		default:
			if _, ok := s.hosts[part]; ok {
				add(part)
				continue
			}
			group := s.group(part)
			if group == nil {
				return nil, fmt.Errorf("no host or group matches pattern %q", part)
			}
			for _, member := range group.Hosts {
				add(member)
			}
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no hosts matched pattern %q", pattern)
	}
	return out, nil
}

// Lookup implements Provider.
func (s *Static) Lookup(name string) (*Host, bool) {
	h, ok := s.hosts[name]
	return h, ok
}

// GroupVars implements Provider.
func (s *Static) GroupVars(host string) map[string]interface{} {
	merged := make(map[string]interface{})
	for _, g := range s.groups {
		if !g.contains(host) {
			continue
		}
		for k, v := range g.Vars {
			merged[k] = v
		}
	}
	return merged
}

func (s *Static) group(name string) *Group {
	for _, g := range s.groups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

func (g *Group) contains(host string) bool {
	for _, member := range g.Hosts {
		if member == host {
			return true
		}
	}
	return false
}
