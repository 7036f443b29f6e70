package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// Format identifies a supported container.
type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatOgg     Format = "ogg"
)

// DetectFormat sniffs the container from magic bytes, falling back to the
// file extension of name when the header is inconclusive.
func DetectFormat(data []byte, name string) Format {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 4 && string(data[0:4]) == "OggS":
		return FormatOgg
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".mp3":
		return FormatMP3
	case ".ogg", ".oga":
		return FormatOgg
	}
	return FormatUnknown
}

// DecodeFile reads and decodes an audio file into a Buffer at its native
// sample rate.
func DecodeFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	buf, err := Decode(data, path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return buf, nil
}

// Decode decodes an in-memory WAV, MP3 or Ogg Vorbis file. name is only used
// as a format hint.
func Decode(data []byte, name string) (*Buffer, error) {
	var (
		buf *Buffer
		err error
	)
	switch DetectFormat(data, name) {
	case FormatWAV:
		buf, err = decodeWAV(data)
	case FormatMP3:
		buf, err = decodeMP3(data)
	case FormatOgg:
		buf, err = decodeOgg(data)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	if buf.Frames() == 0 {
		return nil, ErrEmptyBuffer
	}
	return buf, nil
}

func decodeWAV(data []byte) (*Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	ib, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav pcm: %w", err)
	}
	bitDepth := int(dec.SampleBitDepth())
	if bitDepth == 0 {
		return nil, fmt.Errorf("%w: unknown bit depth", ErrInvalidWAV)
	}
	channels := ib.Format.NumChannels
	if channels < 1 {
		return nil, fmt.Errorf("%w: no channels", ErrInvalidWAV)
	}

	// 8-bit WAV is unsigned; everything wider is signed.
	factor := float32(math.Pow(2, float64(bitDepth-1)))
	samples := make([]float32, len(ib.Data))
	for i, v := range ib.Data {
		if bitDepth == 8 {
			v -= 128
		}
		samples[i] = float32(v) / factor
	}
	return FromInterleaved(samples, ib.Format.SampleRate, channels), nil
}

func decodeMP3(data []byte) (*Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	// go-mp3 always emits 16-bit little-endian stereo.
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 read: %w", err)
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	return FromInterleaved(samples, dec.SampleRate(), 2), nil
}

func decodeOgg(data []byte) (*Buffer, error) {
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ogg vorbis: %w", err)
	}
	return FromInterleaved(samples, format.SampleRate, format.Channels), nil
}
