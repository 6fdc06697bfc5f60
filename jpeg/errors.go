package jpeg

import (
	"errors"
	"fmt"
)

// Standard error types for JPEG decoding and encoding.
var (
	ErrNoJPEG      = errors.New("not a JPEG file")
	ErrUnsupported = errors.New("unsupported format")
	ErrSyntax      = errors.New("syntax error")
	ErrInternal    = errors.New("internal error")
)

// HeaderError reports a malformed or unsupported frame header. It is fatal:
// nothing before the first scan can be salvaged without a valid frame.
type HeaderError struct {
	Reason string
	Err    error
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("jpeg: invalid header: %s", e.Reason)
}

func (e *HeaderError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrSyntax
}

func headerErr(format string, args ...interface{}) *HeaderError {
	return &HeaderError{Reason: fmt.Sprintf(format, args...)}
}

// TruncationError reports that the entropy-coded data ended before the scan
// did. It carries the bit reader diagnostics at the point of failure.
type TruncationError struct {
	// Offset is the number of entropy-segment bytes consumed when the
	// reader ran dry.
	Offset int64
	// Bits is the number of bits still buffered at that point.
	Bits int
	// PendingMarker is the marker byte that stopped the reader, or 0xD9
	// when the reader exhausted its padding after end of data.
	PendingMarker byte
}

func (e *TruncationError) Error() string {
	return fmt.Sprintf("jpeg: truncated entropy data at byte %d (%d bits buffered, pending marker 0x%02x)",
		e.Offset, e.Bits, e.PendingMarker)
}

func (e *TruncationError) Unwrap() error { return ErrSyntax }

// ScanError wraps an entropy decoding failure with the parameters of the
// scan it occurred in.
type ScanError struct {
	Components []int
	Ss, Se     int
	Ah, Al     int
	Err        error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("jpeg: scan failed (components %v, spectral %d..%d, approximation %d/%d): %v",
		e.Components, e.Ss, e.Se, e.Ah, e.Al, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// errDecode is used for internal panics during the hot decoding path.
type errDecode struct{ error }
