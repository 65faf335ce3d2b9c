package signaling

import (
	"errors"
	"fmt"
	"strings"
)

const minHeaderLen = len("X: ")

var (
	ErrMissingNewline  = errors.New("signaling: frame has no header terminator")
	ErrHeaderTooShort  = errors.New("signaling: header too short")
	ErrMalformedHeader = errors.New("signaling: malformed header")
)

// Command is a parsed client frame.
type Command struct {
	Code byte
	Arg  string
	// Payload is everything after the header line, byte for byte.
	Payload string
}

// ParseFrame splits frame at the first newline and validates the header.
func ParseFrame(frame string) (Command, error) {
	header, payload, ok := strings.Cut(frame, "\n")
	if !ok {
		return Command{}, ErrMissingNewline
	}
	if len(header) < minHeaderLen {
		return Command{}, fmt.Errorf("%w: %d bytes", ErrHeaderTooShort, len(header))
	}
	code := header[0]
	if code < 'A' || code > 'Z' || header[1:3] != ": " {
		return Command{}, fmt.Errorf("%w: %q", ErrMalformedHeader, header[:3])
	}
	return Command{
		Code:    code,
		Arg:     header[3:],
		Payload: payload,
	}, nil
}
