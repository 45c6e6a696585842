package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/MrCodeEU/FaceGate/internal/daemon"
	"github.com/MrCodeEU/FaceGate/internal/embedding"
)

func newEnrollCmd() *cobra.Command {
	var (
		name    string
		samples int
		camera  string
		frames  string
	)

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Capture face samples for a person",
		Example: `  facegate enroll --name alice
  facegate enroll --name alice --samples 30
  facegate enroll --name bob --frames ./captures/bob`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isValidName(name) {
				return fmt.Errorf("invalid name %q: use letters, digits, '_', '-' or '.'", name)
			}
			if samples <= 0 {
				samples = cfg.Recognition.EnrollmentSamples
			}
			applyRunFlags(runFlags{camera: camera, frames: frames})

			return enrollPerson(cmd, name, samples)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Name to enroll (required)")
	cmd.Flags().IntVar(&samples, "samples", 0, "Number of face samples to capture (default from config)")
	cmd.Flags().StringVar(&camera, "camera", "", "V4L2 camera device (default from config)")
	cmd.Flags().StringVar(&frames, "frames", "", "Read samples from a directory of JPEG frames")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func enrollPerson(cmd *cobra.Command, name string, samples int) error {
	fmt.Printf("FaceGate Enrollment\n")
	fmt.Printf("===================\n\n")
	fmt.Printf("Name: %s\n", name)
	fmt.Printf("Samples: %d\n\n", samples)

	e, err := daemon.BuildEnroller(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	existing, err := e.Store().GetPerson(name)
	switch {
	case err == nil:
		fmt.Printf("%s is already enrolled with %d samples; new samples will be added.\n\n",
			name, len(existing.Embeddings))
	case !errors.Is(err, embedding.ErrNotFound):
		return err
	}

	if cfg.Camera.FramesDir == "" {
		fmt.Println("Look at the camera and move your head slightly between samples.")
		fmt.Print("Press Enter when ready...")
		_, _ = fmt.Scanln()
		fmt.Println()
	}

	bar := progressbar.NewOptions(samples,
		progressbar.OptionSetDescription("Capturing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	vectors, err := e.Capture(cmd.Context(), samples, func(int) { _ = bar.Add(1) })
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}

	person, err := e.Save(name, vectors)
	if err != nil {
		return fmt.Errorf("failed to save enrollment: %w", err)
	}

	fmt.Println("Enrollment Successful!")
	fmt.Println("======================")
	fmt.Printf("ID: %s\n", person.ID)
	fmt.Printf("Name: %s\n", person.Name)
	fmt.Printf("Samples stored: %d\n", len(person.Embeddings))
	fmt.Printf("Enrolled: %s\n", person.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if cfg.Recognition.Backend == "dlib" {
		fmt.Println("\nRestart a running facegate for the new samples to take effect.")
	}

	return nil
}

func isValidName(name string) bool {
	if name == "" || strings.EqualFold(name, "unknown") {
		return false
	}

	for _, c := range name {
		isLower := c >= 'a' && c <= 'z'
		isUpper := c >= 'A' && c <= 'Z'
		isDigit := c >= '0' && c <= '9'
		isSpecial := c == '_' || c == '-' || c == '.'

		if !isLower && !isUpper && !isDigit && !isSpecial {
			return false
		}
	}

	return true
}

func init() {
	rootCmd.AddCommand(newEnrollCmd())
}
