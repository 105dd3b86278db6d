package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Configuration errors
	ErrEmptyDataset     = errors.New("dataset contains no observations")
	ErrInvalidConfig    = errors.New("invalid engine configuration")
	ErrUnknownModel     = errors.New("unknown model variant")
	ErrNotFound         = errors.New("resource not found")
	ErrRunNotFound      = fmt.Errorf("%w: training run", ErrNotFound)

	// Lifecycle errors
	ErrNotTrained         = errors.New("models not trained yet")
	ErrTrainingInProgress = errors.New("training already in progress")

	// Metric errors
	ErrDegenerateMetric = errors.New("metric undefined for constant actual values")
	ErrLengthMismatch   = errors.New("actual and predicted vectors differ in length")

	// Ingestion errors
	ErrInvalidObservation = errors.New("observation violates dataset invariants")
)

// Error constructors with context
func NewUnknownModelError(variant string) error {
	return fmt.Errorf("%w: %s", ErrUnknownModel, variant)
}

func NewInvalidObservationError(row int, reason string) error {
	return fmt.Errorf("%w: row %d: %s", ErrInvalidObservation, row, reason)
}

func NewConfigError(field string, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidConfig, field, reason)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnknownModel)
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrEmptyDataset) ||
		errors.Is(err, ErrInvalidConfig)
}

func IsNotTrainedError(err error) bool {
	return errors.Is(err, ErrNotTrained)
}
