package serial

import (
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"

	"github.com/bft-labs/voltship/internal/domain"
)

// DefaultMatch is the description substring that identifies the board.
const DefaultMatch = "STM"

// PortInfo describes one serial port found on the host.
type PortInfo struct {
	Name        string
	Description string
	IsUSB       bool
	VID         string
	PID         string
	Serial      string
}

// Discoverer finds the acquisition board among the host's serial ports.
type Discoverer struct {
	// Match is the substring searched for in each port description.
	Match string

	list func() ([]*enumerator.PortDetails, error)
}

// NewDiscoverer creates a discoverer matching descriptions against match.
func NewDiscoverer(match string) *Discoverer {
	if match == "" {
		match = DefaultMatch
	}
	return &Discoverer{Match: match}
}

// List returns every serial port sorted by name.
func (d *Discoverer) List() ([]PortInfo, error) {
	list := d.list
	if list == nil {
		list = enumerator.GetDetailedPortsList
	}
	details, err := list()
	if err != nil {
		return nil, err
	}

	out := make([]PortInfo, 0, len(details))
	for _, p := range details {
		desc := p.Product
		if desc == "" {
			desc = p.Name
		}
		out = append(out, PortInfo{
			Name:        p.Name,
			Description: desc,
			IsUSB:       p.IsUSB,
			VID:         p.VID,
			PID:         p.PID,
			Serial:      p.SerialNumber,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Discover returns the first port, by name, whose description contains
// Match. It returns domain.ErrDeviceNotFound if none does.
func (d *Discoverer) Discover() (string, error) {
	infos, err := d.List()
	if err != nil {
		return "", err
	}
	for _, p := range infos {
		if d.Matches(p) {
			return p.Name, nil
		}
	}
	return "", domain.ErrDeviceNotFound
}

// Matches reports whether p is a candidate for the board.
func (d *Discoverer) Matches(p PortInfo) bool {
	return strings.Contains(p.Description, d.Match)
}
