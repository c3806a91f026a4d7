// Package audio renders instrument sequences and mixes the active sources of a
// soundscape into one mono 16-bit clip.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	SampleRate   = 44100
	ClipSamples  = 2 * SampleRate
	MaxAmplitude = 32767
	MinAmplitude = -32768

	bitsPerSample = 16
	numChannels   = 1

	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
	wavHeaderSize       = 44
)

var (
	// ErrMissingSource marks a referenced sample that does not exist or cannot be opened.
	ErrMissingSource = errors.New("missing source")
	// ErrUnsupportedFormat marks a file that is not mono 16-bit PCM at SampleRate.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Clip is mono 16-bit linear PCM at SampleRate.
type Clip []int16

// Peak returns the largest absolute sample value.
func (c Clip) Peak() int {
	peak := 0
	for _, s := range c {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// DecodeWAV reads a RIFF/WAVE stream holding mono 16-bit PCM at SampleRate.
func DecodeWAV(r io.Reader) (Clip, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("%w: riff header: %v", ErrUnsupportedFormat, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE stream", ErrUnsupportedFormat)
	}

	var haveFmt bool
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("%w: no data chunk", ErrUnsupportedFormat)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedFormat)
			}
			var body [16]byte
			if _, err := io.ReadFull(r, body[:]); err != nil {
				return nil, fmt.Errorf("%w: fmt chunk: %v", ErrUnsupportedFormat, err)
			}
			// Extension bytes are not needed; skip them without buffering.
			if _, err := io.CopyN(io.Discard, r, size-16+size%2); err != nil {
				return nil, fmt.Errorf("%w: fmt chunk: %v", ErrUnsupportedFormat, err)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			channels := binary.LittleEndian.Uint16(body[2:4])
			rate := binary.LittleEndian.Uint32(body[4:8])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != wavFormatPCM && format != wavFormatExtensible {
				return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedFormat, format)
			}
			if channels != numChannels || bits != bitsPerSample || rate != SampleRate {
				return nil, fmt.Errorf("%w: %d ch, %d bit, %d Hz", ErrUnsupportedFormat, channels, bits, rate)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("%w: data before fmt", ErrUnsupportedFormat)
			}
			// Streams written while still open report a bogus size; read what is there.
			data, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return nil, fmt.Errorf("read data chunk: %w", err)
			}
			clip := make(Clip, len(data)/2)
			for i := range clip {
				clip[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
			}
			return clip, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, fmt.Errorf("%w: skip %q chunk: %v", ErrUnsupportedFormat, id, err)
			}
		}
	}
}

// EncodeWAV writes c as a canonical 44-byte-header PCM WAVE stream.
func EncodeWAV(w io.Writer, c Clip) error {
	dataLen := uint32(len(c) * 2)
	var hdr [wavHeaderSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+dataLen)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(hdr[22:24], numChannels)
	binary.LittleEndian.PutUint32(hdr[24:28], SampleRate)
	binary.LittleEndian.PutUint32(hdr[28:32], SampleRate*numChannels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(hdr[32:34], numChannels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(hdr[34:36], bitsPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataLen)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	buf := make([]byte, len(c)*2)
	for i, s := range c {
		buf[2*i] = byte(s)
		buf[2*i+1] = byte(s >> 8)
	}
	_, err := w.Write(buf)
	return err
}

// ReadClipFile loads a WAV file, mapping a missing or unopenable file to ErrMissingSource.
func ReadClipFile(path string) (Clip, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingSource, path, err)
	}
	clip, err := DecodeWAV(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return clip, nil
}

// writeTempClip writes c next to final so that a later rename is atomic.
func writeTempClip(final string, c Clip) (string, error) {
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(final)+"-*.tmp")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	if err := EncodeWAV(f, c); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

// WriteClipFile replaces path with c. Readers see either the old or the new file,
// never a partial one.
func WriteClipFile(path string, c Clip) error {
	tmp, err := writeTempClip(path, c)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("promote %s: %w", path, err)
	}
	return nil
}
