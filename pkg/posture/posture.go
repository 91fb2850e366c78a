// Package posture classifies leaning from a window of resistance samples and
// derives calibration baselines from the same window.
package posture

import (
	"github.com/TheSlimvReal/posture-client/pkg/models"
	"github.com/TheSlimvReal/posture-client/pkg/util"
	"github.com/pkg/errors"
)

// Config holds the tunables shared by Classify and Calibrate
type Config struct {
	// Window is the number of most recent samples that are averaged
	Window int `yaml:"window"`
	// LeftRightThreshold is how far a side axis must rise above baseline to flag leaning
	LeftRightThreshold int `yaml:"left_right_threshold"`
	// ForwardThreshold is how far the middle axis must rise above baseline to flag forward;
	// half of it below baseline flags backward
	ForwardThreshold int `yaml:"forward_threshold"`
}

// DefaultConfig returns window 5 with thresholds 150 (left/right) and 50 (forward)
func DefaultConfig() Config {
	return Config{
		Window:             util.DefaultWindow,
		LeftRightThreshold: util.DefaultLeftRightThreshold,
		ForwardThreshold:   util.DefaultForwardThreshold,
	}
}

func (c Config) Validate() error {
	if c.Window <= 0 {
		return errors.Errorf("window must be > 0, got %d", c.Window)
	}
	if c.LeftRightThreshold < 0 {
		return errors.Errorf("left/right threshold must be >= 0, got %d", c.LeftRightThreshold)
	}
	if c.ForwardThreshold < 0 {
		return errors.Errorf("forward threshold must be >= 0, got %d", c.ForwardThreshold)
	}
	return nil
}

// Average returns the per axis integer mean of samples, truncated toward zero.
// It returns the zero sample for an empty slice.
func Average(samples []models.SensorSample) models.SensorSample {
	n := len(samples)
	if n == 0 {
		return models.SensorSample{}
	}
	var left, middle, right int
	for _, s := range samples {
		left += s.Left
		middle += s.Middle
		right += s.Right
	}
	return models.SensorSample{Left: left / n, Middle: middle / n, Right: right / n}
}

func lastWindow(history []models.SensorSample, window int) ([]models.SensorSample, bool) {
	if window <= 0 || len(history) < window {
		return nil, false
	}
	return history[len(history)-window:], true
}

// Classify computes the verdict for the last cfg.Window samples of history (oldest first).
// With fewer samples than the window it returns the zero verdict.
//
// The side labels are swapped relative to the measured axis: a high right strip means
// the wearer leans left. This follows how the strips sit on the body.
func Classify(history []models.SensorSample, baseline models.Baseline, cfg Config) models.PostureVerdict {
	window, ok := lastWindow(history, cfg.Window)
	if !ok {
		return models.PostureVerdict{}
	}
	avg := Average(window)
	return models.PostureVerdict{
		Forward:  avg.Middle > baseline.Middle+cfg.ForwardThreshold,
		Backward: avg.Middle < baseline.Middle-cfg.ForwardThreshold/2,
		Right:    avg.Left > baseline.Left+cfg.LeftRightThreshold,
		Left:     avg.Right > baseline.Right+cfg.LeftRightThreshold,
	}
}

// Calibrate derives a new baseline from the last cfg.Window samples of history.
// It fails with *models.InsufficientHistoryError when the window is not full yet.
func Calibrate(history []models.SensorSample, cfg Config) (models.Baseline, error) {
	window, ok := lastWindow(history, cfg.Window)
	if !ok {
		return models.Baseline{}, &models.InsufficientHistoryError{Have: len(history), Need: cfg.Window}
	}
	avg := Average(window)
	return models.Baseline{Left: avg.Left, Middle: avg.Middle, Right: avg.Right}, nil
}
