package actuator

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// DefaultPatterns identify the usual servo controller boards
var DefaultPatterns = []string{"Arduino", "CH340", "USB Serial"}

// PortInfo describes one serial port found on the system
type PortInfo struct {
	Name    string
	Product string
	IsUSB   bool
	VID     string
	PID     string
}

// Description is the human-readable label matched against discovery patterns
func (p PortInfo) Description() string {
	if p.Product == "" {
		return p.Name
	}
	return p.Product
}

// PortLister enumerates serial ports
type PortLister func() ([]PortInfo, error)

// SystemPorts lists the serial ports of this machine
func SystemPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:    d.Name,
			Product: d.Product,
			IsUSB:   d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
		})
	}

	return ports, nil
}

// Match returns the first port whose description or name contains any pattern
func Match(ports []PortInfo, patterns []string) (PortInfo, bool) {
	for _, p := range ports {
		for _, pattern := range patterns {
			if pattern == "" {
				continue
			}
			if strings.Contains(p.Description(), pattern) || strings.Contains(p.Name, pattern) {
				return p, true
			}
		}
	}
	return PortInfo{}, false
}

// Discover picks the actuator port. A failed enumeration counts as no match.
func Discover(list PortLister, patterns []string) (string, bool) {
	ports, err := list()
	if err != nil {
		return "", false
	}

	p, ok := Match(ports, patterns)
	if !ok {
		return "", false
	}
	return p.Name, true
}
