package sensors

import (
	"context"
	"strings"
	"sync"

	"github.com/tommyskogstad/geoloop/internal/model"
	"golang.org/x/sync/errgroup"
)

// placeholderMarker matches the convention the original installation used
// for not-yet-wired sensor ids: any configured id containing this substring
// is treated as absent hardware and backed by a stub instead.
const placeholderMarker = "xxx"

// stubDefaults gives each logical sensor a plausible value when it falls
// back to a stub, so a freshly unboxed controller shows sane numbers on its
// dashboard instead of a wall of nulls.
var stubDefaults = map[string]float64{
	model.SensorLoopInlet:  8.0,
	model.SensorLoopOutlet: 6.0,
	model.SensorHPInlet:    6.0,
	model.SensorHPOutlet:   4.0,
	model.SensorTank:       45.0,
}

// Set is the registry of logical-name to Sensor bindings built once at
// bootstrap from configuration.
type Set struct {
	byName map[string]Sensor
	// maxConcurrentReads bounds how many sensor reads run at once; this is
	// the worker-pool rendering of the cooperative-scheduler offload
	// requirement, sized well above the five known sensors so it never
	// throttles in practice.
	maxConcurrentReads int
}

// NewSet builds a registry from a map of logical sensor name to configured
// w1 device id. An id containing the placeholder marker, or an empty id,
// yields a stub with that sensor's documented default instead of a OneWire
// driver.
func NewSet(configuredIDs map[string]string) *Set {
	s := &Set{byName: make(map[string]Sensor, len(model.SensorNames)), maxConcurrentReads: 8}

	for _, name := range model.SensorNames {
		id, configured := configuredIDs[name]
		if !configured || id == "" || strings.Contains(id, placeholderMarker) {
			def := stubDefaults[name]
			s.byName[name] = NewStub(name, &def)
			continue
		}
		s.byName[name] = NewOneWire(id)
	}

	return s
}

// ReadAll reads every registered sensor concurrently and returns a
// SensorReadings snapshot. A single failing sensor never aborts the others;
// read errors are discarded and every read goroutine returns nil, so the
// returned error is always nil, even when ctx is already done.
func (s *Set) ReadAll(ctx context.Context) (model.SensorReadings, error) {
	values := make(map[string]*float64, len(s.byName))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrentReads)

	for name, sensor := range s.byName {
		name, sensor := name, sensor
		g.Go(func() error {
			v, _ := sensor.Read(gctx)

			mu.Lock()
			values[name] = v
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return model.SensorReadings{}, err
	}

	return model.SensorReadings{
		LoopInlet:  values[model.SensorLoopInlet],
		LoopOutlet: values[model.SensorLoopOutlet],
		HPInlet:    values[model.SensorHPInlet],
		HPOutlet:   values[model.SensorHPOutlet],
		Tank:       values[model.SensorTank],
	}, nil
}
