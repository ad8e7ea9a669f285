// Package sensors implements the one-wire temperature probe driver and the
// stub variant used for unconfigured or tested deployments.
package sensors

import (
	"context"
	"os"
	"strconv"
	"strings"
)

// Sensor is the capability every temperature probe implements. Read never
// returns an error for a hardware fault — any failure to obtain a reading
// resolves to a nil value, per the hardware-read error taxonomy.
type Sensor interface {
	ID() string
	Read(ctx context.Context) (*float64, error)
}

const w1DevicesPath = "/sys/bus/w1/devices"

// OneWire reads a DS18B20-style probe through the Linux w1 sysfs interface.
type OneWire struct {
	id   string
	path string
}

// NewOneWire constructs a probe for the w1 device with the given id (the
// directory name under /sys/bus/w1/devices, e.g. "28-000001a2b3c4").
func NewOneWire(id string) *OneWire {
	return &OneWire{id: id, path: w1DevicesPath + "/" + id + "/w1_slave"}
}

func (s *OneWire) ID() string { return s.id }

// Read performs the blocking sysfs read on the calling goroutine; callers
// that care about not stalling a shared loop must run Read on a worker
// goroutine, which is what the sensor-poll job does.
func (s *OneWire) Read(ctx context.Context) (*float64, error) {
	return parseW1Slave(s.path), nil
}

// parseW1Slave implements the w1_slave parse rule: CRC-ok line 1, a "t="
// integer on line 2 divided by 1000. Any deviation yields nil, never an
// error — a malformed or absent file is a hardware fault, not a bug.
func parseW1Slave(path string) *float64 {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	lines := strings.Split(string(content), "\n")
	if len(lines) < 2 {
		return nil
	}

	if !strings.HasSuffix(strings.TrimRight(lines[0], " \t\r\n"), "YES") {
		return nil
	}

	parts := strings.Split(lines[1], "t=")
	if len(parts) != 2 {
		return nil
	}

	raw, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil
	}

	value := float64(raw) / 1000.0
	return &value
}

// Stub returns a fixed, configured value on every Read — used for logical
// sensors whose configured id names a placeholder ("xxx") rather than a real
// w1 device, and for tests.
type Stub struct {
	id    string
	value *float64
}

// NewStub constructs a stub sensor. value may be nil to simulate a
// permanently absent reading.
func NewStub(id string, value *float64) *Stub {
	return &Stub{id: id, value: value}
}

func (s *Stub) ID() string { return s.id }

func (s *Stub) Read(ctx context.Context) (*float64, error) {
	return s.value, nil
}

var (
	_ Sensor = (*OneWire)(nil)
	_ Sensor = (*Stub)(nil)
)
