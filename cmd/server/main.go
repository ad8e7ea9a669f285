// Package main is the entry point for the GeoLoop ice-prevention controller.
// It loads configuration, wires the sensor/relay/weather/store collaborators,
// registers the periodic jobs, starts the HTTP dashboard, and waits for a
// shutdown signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/tommyskogstad/geoloop/internal/backup"
	"github.com/tommyskogstad/geoloop/internal/config"
	"github.com/tommyskogstad/geoloop/internal/database"
	"github.com/tommyskogstad/geoloop/internal/relay"
	"github.com/tommyskogstad/geoloop/internal/scheduler"
	"github.com/tommyskogstad/geoloop/internal/sensors"
	"github.com/tommyskogstad/geoloop/internal/server"
	"github.com/tommyskogstad/geoloop/internal/store"
	"github.com/tommyskogstad/geoloop/internal/weather"
	"github.com/tommyskogstad/geoloop/pkg/embedded"
	"github.com/tommyskogstad/geoloop/pkg/logger"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config.yaml (overrides the default lookup)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: "info", Pretty: true})
	log.Info().Msg("starting geoloop")

	db, err := database.New(database.Config{Path: cfg.Database.Path, Name: "geoloop"})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()
	log.Info().Str("name", db.Name()).Str("profile", string(db.Profile())).Str("path", db.Path()).Msg("database ready")

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	st := store.New(db)
	defer st.Close()

	sensorSet := sensors.NewSet(cfg.SensorIDs())
	weatherClient := weather.NewClient(cfg.Weather.UserAgent, log)

	heatRelay, err := buildRelay(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize relay")
	}
	defer heatRelay.Close()

	sched := scheduler.New(st, log)

	pollInterval := cfg.Weather.PollIntervalMinutes
	if pollInterval <= 0 {
		pollInterval = 30
	}

	sensorPollJob := scheduler.NewSensorPollJob(sensorSet, st, log)
	controlCycleJob := scheduler.NewControlCycleJob(sensorSet, weatherClient, heatRelay, st, cfg.Location.Lat, cfg.Location.Lon, log)
	compactionJob := scheduler.NewCompactionJob(st)
	resourceSamplerJob := scheduler.NewResourceSamplerJob(filepath.Dir(cfg.Database.Path), st, log)

	if err := sched.Register("@every 1m", sensorPollJob); err != nil {
		log.Fatal().Err(err).Msg("failed to register sensor poll job")
	}
	if err := sched.Register(fmt.Sprintf("@every %dm", pollInterval), controlCycleJob); err != nil {
		log.Fatal().Err(err).Msg("failed to register control cycle job")
	}
	if err := sched.Register("@every 1h", compactionJob); err != nil {
		log.Fatal().Err(err).Msg("failed to register compaction job")
	}
	if err := sched.Register("@every 1h", resourceSamplerJob); err != nil {
		log.Fatal().Err(err).Msg("failed to register resource sampler job")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uploader, err := backup.New(ctx, cfg.Backup, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize backup uploader")
	}
	if uploader != nil {
		backupJob := scheduler.NewBackupJob(uploader, st.DatabasePath())
		if err := sched.Register("@every 24h", backupJob); err != nil {
			log.Fatal().Err(err).Msg("failed to register backup job")
		}
		log.Info().Msg("off-site backup enabled")
	}

	dashboard, err := embedded.Dashboard()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load embedded dashboard assets")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := server.New(server.Config{
		Addr:    addr,
		Log:     log,
		Store:   st,
		Sensors: sensorSet,
		Weather: weatherClient,
		Relay:   heatRelay,
		Lat:     cfg.Location.Lat,
		Lon:     cfg.Location.Lon,
		Static:  dashboard,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("http server started")

	// Run the sensor-poll and control-cycle jobs once immediately so the
	// dashboard has data before the first cron tick.
	sched.RunNow(ctx, sensorPollJob)
	sched.RunNow(ctx, controlCycleJob)

	sched.Start()
	log.Info().Msg("scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("shutdown complete")
}

// buildRelay constructs the GPIO-backed relay pair when relays are
// configured, or the in-memory stub otherwise.
func buildRelay(cfg *config.Config, log zerolog.Logger) (relay.Relay, error) {
	if cfg.Relays == nil {
		log.Warn().Msg("no relays configured, falling back to in-memory stub")
		return relay.NewStub(), nil
	}

	heatPumpLine, err := relay.NewSysfsLine(cfg.Relays.HeatPump.GPIOPin, cfg.Relays.HeatPump.ActiveHigh)
	if err != nil {
		return nil, fmt.Errorf("open heat pump gpio line: %w", err)
	}

	circPumpLine, err := relay.NewSysfsLine(cfg.Relays.CirculationPump.GPIOPin, cfg.Relays.CirculationPump.ActiveHigh)
	if err != nil {
		_ = heatPumpLine.Close()
		return nil, fmt.Errorf("open circulation pump gpio line: %w", err)
	}

	return relay.NewGPIO(heatPumpLine, circPumpLine), nil
}
