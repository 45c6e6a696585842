// Package daemon assembles the access controller from configuration and runs it
package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/MrCodeEU/FaceGate/internal/access"
	"github.com/MrCodeEU/FaceGate/internal/audit"
	"github.com/MrCodeEU/FaceGate/internal/config"
	"github.com/MrCodeEU/FaceGate/internal/embedding"
	"github.com/MrCodeEU/FaceGate/internal/pipeline"
	"github.com/MrCodeEU/FaceGate/pkg/models"
)

// Options are run-time choices that are not part of the config file
type Options struct {
	SnapshotDir string // write annotated frames for every face event
	DryRun      bool   // never actuate and record nothing
}

// Daemon is a fully wired control loop and the resources it holds
type Daemon struct {
	cfg    *config.Config
	logger *logrus.Logger

	Store      *embedding.Store
	Controller *access.Controller
	Driver     *pipeline.Driver

	inference *models.InferenceClient
	closers   []closer
}

type closer struct {
	name  string
	close func() error
}

// Build opens every component the configuration selects. Missing models,
// cascades or an unreachable inference service fail here, before the loop starts.
// An unavailable actuator only downgrades to simulation.
func Build(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts Options) (_ *Daemon, err error) {
	d := &Daemon{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	store, err := embedding.NewStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding store: %w", err)
	}
	d.Store = store
	d.onClose("store", store.Close)

	if needsInference(cfg) {
		if err := d.connectInference(); err != nil {
			if cfg.Liveness.Mode != "fallback" || usesInferenceBackend(cfg) {
				return nil, err
			}
			logger.Warnf("%v; liveness falls back to the local heuristic", err)
		}
	}

	locator, err := d.newLocator()
	if err != nil {
		return nil, err
	}
	d.onClose("locator", locator.Close)

	gate := d.newGate()

	matcher, err := d.newMatcher()
	if err != nil {
		return nil, err
	}

	var link access.Actuator
	if opts.DryRun {
		logger.Info("Dry run: the actuator is not opened and events are not recorded")
	} else {
		link = d.openActuator()
	}

	d.Controller = access.NewController(gate, matcher, link, access.Options{
		Cooldown:            cfg.Door.Cooldown,
		SimulateTransitions: cfg.Door.SimulateTransitions,
		Logger:              logger,
	})

	source, err := d.newSource()
	if err != nil {
		return nil, err
	}
	d.onClose("frame source", source.Close)

	var sinks []audit.Sink
	if !opts.DryRun {
		sinks = d.newSinks(ctx)
	}
	sink := audit.NewMulti(logger, sinks...)
	d.onClose("event sinks", sink.Close)

	presenter := pipeline.Presenters{pipeline.LogPresenter{Logger: logger}}
	if opts.SnapshotDir != "" {
		presenter = append(presenter, pipeline.SnapshotPresenter{Dir: opts.SnapshotDir, MaxWidth: 1280, Logger: logger})
	}

	d.Driver = pipeline.NewDriver(source, locator, d.Controller, sink, presenter, pipeline.Options{
		RelockOnTimer: cfg.Door.RelockMode == config.RelockOnTimer,
		AspectWidth:   cfg.Door.AspectWidth,
		AspectHeight:  cfg.Door.AspectHeight,
		Margin:        cfg.Detection.Margin,
		Logger:        logger,
	})

	return d, nil
}

func (d *Daemon) onClose(name string, fn func() error) {
	d.closers = append(d.closers, closer{name: name, close: fn})
}

func (d *Daemon) connectInference() error {
	client, err := models.NewInferenceClient(d.cfg.Inference.Address, d.cfg.Inference.Timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to inference service at %s: %w", d.cfg.Inference.Address, err)
	}
	d.logger.Infof("Connected to inference service v%s on %s", client.Version, client.Device)

	d.inference = client
	d.onClose("inference client", client.Close)
	return nil
}

// Run drives the loop until ctx is cancelled or the frame source ends
func (d *Daemon) Run(ctx context.Context) error {
	mode := "hardware"
	if d.Controller.Simulated() {
		mode = "simulation"
	}
	d.logger.Infof("FaceGate running in %s mode, door %s, cooldown %v, relock on %s",
		mode, d.Controller.State(), d.cfg.Door.Cooldown, d.cfg.Door.RelockMode)

	err := d.Driver.Run(ctx)
	d.Driver.Stats().Log(d.logger)
	d.logger.Infof("Door left %s", d.Controller.State())

	return err
}

// Close releases everything Build opened, newest first
func (d *Daemon) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		c := d.closers[i]
		if err := c.close(); err != nil {
			d.logger.Errorf("Failed to close %s: %v", c.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func usesInferenceBackend(cfg *config.Config) bool {
	return cfg.Detection.Backend == "grpc" || cfg.Recognition.Backend == "grpc" || cfg.Liveness.Mode == "remote"
}

func needsInference(cfg *config.Config) bool {
	return usesInferenceBackend(cfg) || cfg.Liveness.Mode == "fallback"
}
