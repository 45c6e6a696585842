package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/FaceGate/internal/daemon"
)

type runFlags struct {
	camera    string
	frames    string
	port      string
	simulate  bool
	relock    string
	snapshots string
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the camera and control the door",
		Long: `Runs the access control loop: every detected face is checked for liveness,
identified against the enrolled people and, when recognized, unlocks the door
(or re-locks it once the cooldown has passed).

Type q and Enter, or press Ctrl+C, to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(cmd, f, daemon.Options{SnapshotDir: f.snapshots})
		},
	}

	addSourceFlags(cmd, &f)
	cmd.Flags().StringVar(&f.port, "port", "", "Serial port of the lock (default: discover)")
	cmd.Flags().BoolVar(&f.simulate, "simulate", false, "Do not open the lock, only log what would happen")
	cmd.Flags().StringVar(&f.relock, "relock", "", "Re-lock trigger: face or timer")
	cmd.Flags().StringVar(&f.snapshots, "snapshots", "", "Save annotated frames of every face event to this directory")

	return cmd
}

func newCheckCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run detection, liveness and identification without touching the lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(cmd, f, daemon.Options{SnapshotDir: f.snapshots, DryRun: true})
		},
	}

	addSourceFlags(cmd, &f)
	cmd.Flags().StringVar(&f.snapshots, "snapshots", "", "Save annotated frames of every face event to this directory")

	return cmd
}

func addSourceFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().StringVar(&f.camera, "camera", "", "V4L2 camera device (default from config)")
	cmd.Flags().StringVar(&f.frames, "frames", "", "Replay JPEG frames from a directory instead of a camera")
}

// applyRunFlags overrides the loaded configuration with command-line choices
func applyRunFlags(f runFlags) {
	if f.camera != "" {
		cfg.Camera.Device = f.camera
		cfg.Camera.FramesDir = ""
	}
	if f.frames != "" {
		cfg.Camera.FramesDir = f.frames
	}
	if f.port != "" {
		cfg.Actuator.Port = f.port
		cfg.Actuator.Enabled = true
	}
	if f.simulate {
		cfg.Actuator.Enabled = false
	}
	if f.relock != "" {
		cfg.Door.RelockMode = f.relock
	}
}

func runLoop(cmd *cobra.Command, f runFlags, opts daemon.Options) error {
	applyRunFlags(f)
	if err := cfg.Validate(); err != nil {
		return err
	}

	d, err := daemon.Build(cmd.Context(), cfg, logger, opts)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	ctx, stop := daemon.StopContext(cmd.Context(), os.Stdin, logger)
	defer stop()

	fmt.Println("Press q and Enter to quit")

	return d.Run(ctx)
}

func init() {
	rootCmd.AddCommand(newRunCmd(), newCheckCmd())
}
