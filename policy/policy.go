// Package policy names how the conversion pipeline reacts to recoverable
// input defects: a tile without a sprite reference, a sprite that is not in
// the archive, a page without a declared size.
//
// Tolerant (the default) logs the defect and keeps going, so a page loses at
// most the pixels of the tile concerned. Strict turns the same defect into an
// error that aborts the run.
package policy

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Mode selects the reaction to recoverable defects.
type Mode string

const (
	// Tolerant logs recoverable defects at warn level and continues.
	Tolerant Mode = "tolerant"
	// Strict returns recoverable defects as errors.
	Strict Mode = "strict"
)

// ErrUnknownMode is returned by Parse for anything but tolerant or strict.
var ErrUnknownMode = errors.New("policy: unknown mode")

// Parse returns the Mode named by s (case-insensitive). The empty string
// yields Tolerant.
func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(Tolerant):
		return Tolerant, nil
	case string(Strict):
		return Strict, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == Tolerant || m == Strict
}

// IsStrict reports whether recoverable defects abort the run.
func (m Mode) IsStrict() bool {
	return m == Strict
}

// Recover applies the mode to a recoverable defect. In strict mode err is
// returned unchanged. Otherwise it is logged on logger with args as extra
// attributes and nil is returned. A nil err is always nil.
func (m Mode) Recover(logger *slog.Logger, err error, args ...any) error {
	if err == nil {
		return nil
	}
	if m.IsStrict() {
		return err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("skipping defective input", append(args, "error", err)...)
	return nil
}

// UnmarshalText lets Mode be decoded from YAML and JSON configuration.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
