// Package scanerr defines the error taxonomy shared by the document scanning
// pipeline.
//
// Every failure that crosses a package boundary is normalised into one of the
// sentinel kinds below so callers can branch with errors.Is without knowing
// which decoder, inference runtime or vision backend produced it:
//
//   - ErrInitialization: model assets missing or unloadable. Fatal for the
//     detection feature, reported once at startup.
//   - ErrDecode: the image could not be read or decoded.
//   - ErrInvalidPolygon: wrong point count or malformed geometry handed to
//     the rectifier. Rejected before any warp is attempted.
//   - ErrTransformFailure: singular homography or a backend failure during
//     warp or resize.
//
// A detection miss and a missing barcode are outcomes, not errors, and have
// no sentinel here.
package scanerr

import (
	"errors"
	"fmt"
)

var (
	ErrInitialization   = errors.New("initialization failed")
	ErrDecode           = errors.New("image decode failed")
	ErrInvalidPolygon   = errors.New("invalid polygon")
	ErrTransformFailure = errors.New("transform failed")
)

// Error carries the failing operation alongside its taxonomy kind.
type Error struct {
	// Kind is one of the package sentinels.
	Kind error

	// Op names the operation that failed, e.g. "rectify" or "load model_heat".
	Op string

	// Err is the underlying cause. May be nil.
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New wraps err as a failure of the given kind during op.
func New(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is New with a formatted cause.
func Newf(kind error, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the taxonomy kind of err, or nil if err is not classified.
func KindOf(err error) error {
	for _, kind := range []error{ErrInitialization, ErrDecode, ErrInvalidPolygon, ErrTransformFailure} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Guard runs fn and converts a panic raised inside it into an error of the
// given kind. Native bindings (OpenCV, ONNX Runtime, barcode decoders) may
// panic on malformed input; nothing from them may take the process down.
// Errors returned by fn that are not yet classified are wrapped as kind.
func Guard(kind error, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Kind: kind, Op: op, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := fn(); err != nil {
		if KindOf(err) != nil {
			return err
		}
		return &Error{Kind: kind, Op: op, Err: err}
	}
	return nil
}
