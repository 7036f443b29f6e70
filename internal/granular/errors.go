package granular

import "errors"

var (
	ErrInvalidRange = errors.New("invalid range")
	ErrUnknownScale = errors.New("unknown scale")
	ErrVoiceCount   = errors.New("voice count out of range")
	ErrNoBuffer     = errors.New("no source buffer available")
)
