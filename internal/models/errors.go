package models

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks malformed declarations and command arguments.
	ErrConfiguration = errors.New("configuration error")

	ErrSizeTooSmall = errors.New("image too small")
	ErrSizeTooLarge = errors.New("image too large")

	// ErrDecode is returned when source bytes are not a decodable image.
	ErrDecode = errors.New("decode image")
	// ErrEncode is returned when a variation cannot be encoded in the
	// original's format.
	ErrEncode = errors.New("encode image")
)

// ConfigError carries a user-facing message. Error returns the message
// unchanged so command surfaces can print it verbatim.
type ConfigError struct {
	Msg string
}

func NewConfigError(msg string) *ConfigError {
	return &ConfigError{Msg: msg}
}

func (e *ConfigError) Error() string { return e.Msg }

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

const (
	MsgTooSmall = "The image you uploaded is too small. The required minimal resolution is: %dx%d px."
	MsgTooLarge = "The image you uploaded is too large. The required maximal resolution is: %dx%d px."
)

// ValidationError reports an image whose dimensions fall outside the
// configured bounds. Code is ErrSizeTooSmall or ErrSizeTooLarge.
type ValidationError struct {
	Code    error
	Message string
	Bound   Size
}

func NewTooSmall(min Size) *ValidationError {
	return &ValidationError{
		Code:    ErrSizeTooSmall,
		Message: fmt.Sprintf(MsgTooSmall, min.Width, min.Height),
		Bound:   min,
	}
}

func NewTooLarge(max Size) *ValidationError {
	return &ValidationError{
		Code:    ErrSizeTooLarge,
		Message: fmt.Sprintf(MsgTooLarge, max.Width, max.Height),
		Bound:   max,
	}
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Code }
