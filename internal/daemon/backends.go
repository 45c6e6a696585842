package daemon

import (
	"context"
	"fmt"

	"github.com/MrCodeEU/FaceGate/internal/access"
	"github.com/MrCodeEU/FaceGate/internal/actuator"
	"github.com/MrCodeEU/FaceGate/internal/audit"
	"github.com/MrCodeEU/FaceGate/internal/camera"
	"github.com/MrCodeEU/FaceGate/internal/detect"
	"github.com/MrCodeEU/FaceGate/internal/detect/haar"
	"github.com/MrCodeEU/FaceGate/internal/embedding"
	"github.com/MrCodeEU/FaceGate/internal/identity"
	"github.com/MrCodeEU/FaceGate/internal/identity/dlib"
	"github.com/MrCodeEU/FaceGate/internal/liveness"
)

func (d *Daemon) newLocator() (detect.Locator, error) {
	cfg := d.cfg.Detection

	switch cfg.Backend {
	case "haar":
		loc, err := haar.New(cfg.CascadePath, haar.Params{
			ScaleFactor:  cfg.ScaleFactor,
			MinNeighbors: cfg.MinNeighbors,
			MinSize:      cfg.MinFaceSize,
		})
		if err != nil {
			return nil, err
		}
		d.logger.Infof("Face detection: Haar cascade %s", cfg.CascadePath)
		return loc, nil
	case "grpc":
		d.logger.Info("Face detection: inference service")
		return detect.NewRemote(d.inference, cfg.Confidence, cfg.NMSThreshold, cfg.MaxDetections), nil
	default:
		return nil, fmt.Errorf("unknown detection backend: %s", cfg.Backend)
	}
}

func (d *Daemon) newGate() access.LivenessGate {
	cfg := d.cfg.Liveness
	heuristic := liveness.NewHeuristic(cfg.MinScore, cfg.VarianceThreshold, cfg.MinBrightness, cfg.MaxBrightness)

	switch cfg.Mode {
	case "off":
		d.logger.Warn("Liveness detection is disabled; photos will be accepted")
		return liveness.Disabled{}
	case "remote":
		return liveness.NewRemote(d.inference, cfg.MinScore)
	case "fallback":
		if d.inference == nil {
			return heuristic
		}
		return liveness.NewFallback(liveness.NewRemote(d.inference, cfg.MinScore), heuristic, d.logger)
	default:
		return heuristic
	}
}

func (d *Daemon) newMatcher() (access.IdentityMatcher, error) {
	cfg := d.cfg.Recognition

	switch cfg.Backend {
	case "dlib":
		rec, err := dlib.New(cfg.ModelDir, float64(cfg.Tolerance), cfg.Threshold)
		if err != nil {
			return nil, err
		}
		d.onClose("dlib recognizer", rec.Close)

		people, err := d.Store.ListPeople()
		if err != nil {
			return nil, fmt.Errorf("failed to load enrolled people: %w", err)
		}
		if n := rec.Load(people); n == 0 {
			d.logger.Warn("No dlib face descriptors enrolled; every face will be unknown")
		} else {
			d.logger.Infof("Loaded %d face descriptors for %d people", n, len(people))
		}
		return rec, nil
	case "grpc":
		gallery, err := embedding.NewGallery(d.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to load enrolled people: %w", err)
		}
		if gallery.Len() == 0 {
			d.logger.Warn("Nobody is enrolled; every face will be unknown")
		} else {
			d.logger.Infof("Loaded %d enrolled people", gallery.Len())
		}
		return identity.NewMatcher(identity.NewRemoteEmbedder(d.inference), gallery, cfg.Threshold), nil
	default:
		return nil, fmt.Errorf("unknown recognition backend: %s", cfg.Backend)
	}
}

// openActuator returns nil (simulation) when the lock cannot be reached
func (d *Daemon) openActuator() access.Actuator {
	cfg := d.cfg.Actuator
	if !cfg.Enabled {
		d.logger.Info("Actuator disabled, running in simulation mode")
		return nil
	}

	name := cfg.Port
	if name == "" {
		var ok bool
		name, ok = actuator.Discover(actuator.SystemPorts, cfg.MatchPatterns)
		if !ok {
			d.logger.Warn("No actuator port found, running in simulation mode")
			return nil
		}
		d.logger.Infof("Discovered actuator on %s", name)
	}

	link, err := actuator.Open(name, actuator.Options{
		BaudRate:       cfg.BaudRate,
		UnlockAngle:    cfg.UnlockAngle,
		LockAngle:      cfg.LockAngle,
		SettleDuration: cfg.SettleDuration,
		ResetDelay:     cfg.ResetDelay,
		Logger:         d.logger,
	})
	if err != nil {
		d.logger.Warnf("%v; running in simulation mode", err)
		return nil
	}
	d.onClose("actuator", link.Close)

	return link
}

func (d *Daemon) newSource() (camera.Source, error) {
	cfg := d.cfg.Camera

	if cfg.FramesDir != "" {
		src, err := camera.NewReplay(cfg.FramesDir, cfg.FPS)
		if err != nil {
			return nil, err
		}
		d.logger.Infof("Replaying %d frames from %s", src.Len(), cfg.FramesDir)
		return src, nil
	}

	cam, err := camera.NewCamera(cfg, d.logger)
	if err != nil {
		return nil, err
	}
	if err := cam.Start(); err != nil {
		_ = cam.Close()
		return nil, err
	}
	return cam, nil
}

// newSinks opens the optional event sinks. Remote sinks that cannot be reached are skipped.
func (d *Daemon) newSinks(ctx context.Context) []audit.Sink {
	sinks := []audit.Sink{audit.NewStoreSink(d.Store)}

	if path := d.cfg.Storage.RecognitionLog; path != "" {
		log, err := audit.OpenRecognitionLog(path)
		if err != nil {
			d.logger.Warnf("Recognition log disabled: %v", err)
		} else {
			sinks = append(sinks, log)
		}
	}

	if url := d.cfg.Storage.PostgresURL; url != "" {
		pg, err := audit.NewPostgresSink(ctx, url, d.cfg.Events.DoorID)
		if err != nil {
			d.logger.Warnf("Central audit database disabled: %v", err)
		} else {
			sinks = append(sinks, pg)
		}
	}

	var notify func(audit.Alert)
	if d.cfg.Events.Enabled {
		pub, err := audit.ConnectPublisher(d.cfg.Events, d.logger)
		if err != nil {
			d.logger.Warnf("Event publishing disabled: %v", err)
		} else {
			sinks = append(sinks, pub)
			notify = pub.PublishAlert
		}
	}

	if n := d.cfg.Events.SpoofAlertThreshold; n > 0 {
		sinks = append(sinks, audit.NewSpoofAlert(n, d.cfg.Events.SpoofAlertWindow, notify, d.logger))
	}

	return sinks
}
