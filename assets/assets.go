// Package assets embeds the fallback source sample.
package assets

import _ "embed"

// DefaultName is the display name of the embedded sample.
const DefaultName = "default.wav"

// DefaultWAV is a short 48 kHz mono horn-like tone used when no sample
// has been loaded.
//
//go:embed default.wav
var DefaultWAV []byte
