package measurement

import (
	"errors"
	"fmt"
)

var (
	// ErrPathMissing is returned when an input file or working directory is absent.
	ErrPathMissing = errors.New("path does not exist")
	// ErrMalformedFile is returned when a required field is missing or has the wrong shape.
	ErrMalformedFile = errors.New("malformed raw file")
	// ErrStructuralMismatch is returned when a file cannot be appended because
	// its geometry differs from the measurement.
	ErrStructuralMismatch = errors.New("files are structurally different")
	// ErrNoCalibration is returned when no two calibration angle clusters exist.
	ErrNoCalibration = errors.New("no calibration interval found")
	// ErrInvariant is returned when per-time arrays disagree in length.
	ErrInvariant = errors.New("measurement invariant violated")
	// ErrNotIngested is returned by operations that need data before any file was read.
	ErrNotIngested = errors.New("measurement has no data")
)

// MismatchError names the header field that differs between the measurement
// and a file offered to Append.
type MismatchError struct {
	Field string
	Have  interface{}
	Got   interface{}
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s differs: measurement has %v, file has %v", e.Field, e.Have, e.Got)
}

// Unwrap lets errors.Is match ErrStructuralMismatch.
func (e *MismatchError) Unwrap() error { return ErrStructuralMismatch }

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrMalformedFile)
}
