// Package audio holds the PCM and WAV helpers shared by the recorder and the
// output manager.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// FloatToPCM16 scales normalized samples to the signed 16-bit range,
// clamping anything outside [-1, 1].
func FloatToPCM16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * math.MaxInt16)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < -math.MaxInt16 {
			v = -math.MaxInt16
		}
		out[i] = int(v)
	}
	return out
}

// DecodePCM16 converts little-endian signed 16-bit PCM into samples.
func DecodePCM16(pcm []byte) ([]int, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return samples, nil
}

// WriteWAV writes 16-bit PCM samples to path, replacing any existing file.
func WriteWAV(path string, samples []int, sampleRate, channels int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", channels)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer file.Close()

	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	enc := wav.NewEncoder(file, sampleRate, bitDepth, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WritePCM16WAV writes little-endian 16-bit PCM bytes as a WAV file.
func WritePCM16WAV(path string, pcm []byte, sampleRate, channels int) error {
	samples, err := DecodePCM16(pcm)
	if err != nil {
		return err
	}
	return WriteWAV(path, samples, sampleRate, channels)
}

// Info describes a WAV file on disk.
type Info struct {
	SampleRate int
	Channels   int
	Samples    int
	Duration   time.Duration
}

// ReadInfo decodes the WAV file at path and reports its format and length.
func ReadInfo(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return Info{}, fmt.Errorf("%s: not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Info{}, fmt.Errorf("decode wav: %w", err)
	}
	info := Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		Samples:    len(buf.Data),
	}
	if info.SampleRate > 0 && info.Channels > 0 {
		frames := info.Samples / info.Channels
		info.Duration = time.Duration(frames) * time.Second / time.Duration(info.SampleRate)
	}
	return info, nil
}
