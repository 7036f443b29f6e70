package audio

import "errors"

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidWAV        = errors.New("not a valid WAV file")
	ErrEmptyBuffer       = errors.New("decoded audio is empty")
)
