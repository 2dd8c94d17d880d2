package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"prism/internal/api"
)

// ErrModelNotLoaded is returned when toggling hardware before the model is up.
var ErrModelNotLoaded = errors.New("model is not loaded yet")

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Show or switch the backend's CPU/GPU mode",
	RunE:  runModelStatus,
}

var modelStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show hardware mode and model state",
	RunE:  runModelStatus,
}

var modelToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Switch between CPU and GPU inference",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := toggleHardware(cmd.Context(), a.client)
		if err != nil {
			return err
		}
		printSuccess("%s", res.Message)
		return nil
	},
}

// ModelClient is the part of the backend client model control needs.
type ModelClient interface {
	ModelStatus(ctx context.Context) (*api.ModelStatus, error)
	ToggleHardware(ctx context.Context) (*api.ToggleResult, error)
}

// toggleHardware refuses to switch modes before the model has loaded.
func toggleHardware(ctx context.Context, c ModelClient) (*api.ToggleResult, error) {
	status, err := c.ModelStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("model status: %w", err)
	}
	if !status.ModelLoaded {
		return nil, ErrModelNotLoaded
	}
	return c.ToggleHardware(ctx)
}

func runModelStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.client.ModelStatus(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Println(formatModelStatus(status))
	return nil
}

func formatModelStatus(s *api.ModelStatus) string {
	loaded := styles.Warning.Render("loading")
	if s.ModelLoaded {
		loaded = styles.Success.Render("loaded")
	}
	gpu := "no GPU"
	if s.GPUAvailable {
		gpu = fmt.Sprintf("GPU available, %d layers", s.GPULayers)
	}
	return fmt.Sprintf("%s  mode %s  (%s)", loaded, styles.Bold.Render(s.HardwareMode), gpu)
}
