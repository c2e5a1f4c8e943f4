// Package ml implements the seeded models behind slowdown prediction: a
// standard scaler, CART random forests for regression and classification,
// and a manager that owns training runs, JSON model artifacts, and the
// atomically swapped active model set.
package ml

import (
	"fmt"
	"math"
)

// StandardScaler centers each feature on its mean and divides by its
// standard deviation. Fields are exported for the JSON model artifact.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// NewStandardScaler returns an unfitted scaler.
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

// Fitted reports whether the scaler has learned feature statistics.
func (s *StandardScaler) Fitted() bool {
	return len(s.Mean) > 0
}

// Fit learns per-feature mean and deviation from the sample matrix,
// replacing any previous fit.
func (s *StandardScaler) Fit(samples [][]float64) error {
	if len(samples) == 0 || len(samples[0]) == 0 {
		return fmt.Errorf("scaler: empty training matrix")
	}
	cols := len(samples[0])
	s.Mean = make([]float64, cols)
	s.Scale = make([]float64, cols)

	for _, row := range samples {
		if len(row) != cols {
			return fmt.Errorf("scaler: ragged matrix, row has %d values, want %d", len(row), cols)
		}
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	n := float64(len(samples))
	for j := range s.Mean {
		s.Mean[j] /= n
	}

	for _, row := range samples {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Scale[j] += d * d
		}
	}
	for j := range s.Scale {
		s.Scale[j] = math.Sqrt(s.Scale[j] / n)
		// Constant features scale by 1 so they transform to zero instead
		// of dividing by zero.
		if s.Scale[j] == 0 {
			s.Scale[j] = 1
		}
	}
	return nil
}

// Transform standardizes the matrix with the fitted statistics. The input
// is not modified.
func (s *StandardScaler) Transform(samples [][]float64) ([][]float64, error) {
	if !s.Fitted() {
		return nil, fmt.Errorf("scaler: not fitted")
	}
	out := make([][]float64, len(samples))
	for i, row := range samples {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("scaler: row has %d values, fitted for %d", len(row), len(s.Mean))
		}
		tr := make([]float64, len(row))
		for j, v := range row {
			tr[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = tr
	}
	return out, nil
}

// FitTransform fits the scaler and standardizes the same matrix.
func (s *StandardScaler) FitTransform(samples [][]float64) ([][]float64, error) {
	if err := s.Fit(samples); err != nil {
		return nil, err
	}
	return s.Transform(samples)
}
