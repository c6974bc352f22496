package mailer

import (
	"fmt"
	"strings"

	"mail-digest-go/internal/config"
)

// Directory resolves recipient group and contact ids to addresses.
type Directory interface {
	GroupAddresses(groupIDs []string) []string
	ContactAddresses(contactIDs []string) []string
	Sender(groupID string) (string, error)
}

// StaticDirectory is a Directory read from the config file. Ids are matched
// case-insensitively since viper lowercases map keys.
type StaticDirectory struct {
	groups   map[string][]string
	contacts map[string]string
	senders  map[string]string
}

// NewStaticDirectory creates a directory from the directory config section
func NewStaticDirectory(cfg config.DirectoryConfig) *StaticDirectory {
	d := &StaticDirectory{
		groups:   make(map[string][]string, len(cfg.Groups)),
		contacts: make(map[string]string, len(cfg.Contacts)),
		senders:  make(map[string]string, len(cfg.Senders)),
	}
	for id, addrs := range cfg.Groups {
		d.groups[strings.ToLower(id)] = addrs
	}
	for id, addr := range cfg.Contacts {
		d.contacts[strings.ToLower(id)] = addr
	}
	for id, addr := range cfg.Senders {
		d.senders[strings.ToLower(id)] = addr
	}
	return d
}

// GroupAddresses returns the distinct member addresses of the given groups.
func (d *StaticDirectory) GroupAddresses(groupIDs []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, id := range groupIDs {
		for _, addr := range d.groups[strings.ToLower(id)] {
			out = appendUnique(out, seen, addr)
		}
	}
	return out
}

// ContactAddresses returns the distinct addresses of the given contacts.
func (d *StaticDirectory) ContactAddresses(contactIDs []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, id := range contactIDs {
		if addr, ok := d.contacts[strings.ToLower(id)]; ok {
			out = appendUnique(out, seen, addr)
		}
	}
	return out
}

// Sender returns the from address configured for a sender group.
func (d *StaticDirectory) Sender(groupID string) (string, error) {
	addr, ok := d.senders[strings.ToLower(groupID)]
	if !ok || strings.TrimSpace(addr) == "" {
		return "", fmt.Errorf("no sender address for group %q", groupID)
	}
	return addr, nil
}

func appendUnique(out []string, seen map[string]bool, addr string) []string {
	addr = strings.TrimSpace(addr)
	key := strings.ToLower(addr)
	if addr == "" || seen[key] {
		return out
	}
	seen[key] = true
	return append(out, addr)
}
