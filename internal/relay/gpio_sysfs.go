package relay

import (
	"fmt"
	"os"
	"strconv"
)

const gpioBasePath = "/sys/class/gpio"

// sysfsLine drives a single GPIO pin through the Linux sysfs GPIO interface
// (export, direction, value), mirroring the one-wire driver's choice to talk
// to sysfs directly rather than pull in a board-specific GPIO library.
type sysfsLine struct {
	pin       int
	activeHigh bool
	valuePath string
}

// NewSysfsLine exports pin, configures it as an output, and drives it to its
// initial logic-low value.
func NewSysfsLine(pin int, activeHigh bool) (*sysfsLine, error) {
	pinStr := strconv.Itoa(pin)

	if err := os.WriteFile(gpioBasePath+"/export", []byte(pinStr), 0200); err != nil && !os.IsExist(err) {
		// Some kernels return EBUSY via a plain write error when already
		// exported; treat any write failure here as non-fatal and continue,
		// since the direction/value writes below are the real correctness
		// check.
	}

	gpioDir := gpioBasePath + "/gpio" + pinStr
	if err := os.WriteFile(gpioDir+"/direction", []byte("out"), 0644); err != nil {
		return nil, fmt.Errorf("failed to set gpio%d direction: %w", pin, err)
	}

	l := &sysfsLine{pin: pin, activeHigh: activeHigh, valuePath: gpioDir + "/value"}
	if err := l.Set(false); err != nil {
		return nil, fmt.Errorf("failed to set gpio%d initial value: %w", pin, err)
	}

	return l, nil
}

// Set drives the line to the given logical level, translating through the
// line's active-high/active-low polarity.
func (l *sysfsLine) Set(on bool) error {
	level := on
	if !l.activeHigh {
		level = !level
	}

	val := "0"
	if level {
		val = "1"
	}

	if err := os.WriteFile(l.valuePath, []byte(val), 0644); err != nil {
		return fmt.Errorf("failed to write gpio%d value: %w", l.pin, err)
	}
	return nil
}

// Close unexports the pin, releasing it for other consumers.
func (l *sysfsLine) Close() error {
	pinStr := strconv.Itoa(l.pin)
	if err := os.WriteFile(gpioBasePath+"/unexport", []byte(pinStr), 0200); err != nil {
		return fmt.Errorf("failed to unexport gpio%d: %w", l.pin, err)
	}
	return nil
}

var _ gpioLine = (*sysfsLine)(nil)
