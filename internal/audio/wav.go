package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE

	readBlockFrames = 16384
)

// WAVSource streams integer PCM from a WAV file. It decodes forward only;
// a backwards seek re-opens the file.
type WAVSource struct {
	path   string
	file   *os.File
	dec    *wav.Decoder
	info   Info
	cursor int64 // next frame the decoder will return
	buf    *goaudio.IntBuffer
	carry  []int // samples of a frame split across reads

	// short is the frame count actually present once a read has run past
	// the end of the data; zero until then.
	short int64
}

// OpenWAV validates the header and positions the decoder at the PCM data.
// Sample rate, channel count and frame count come from the header alone.
func OpenWAV(path string) (*WAVSource, error) {
	s := &WAVSource{path: path}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenWAVSource adapts OpenWAV to the Opener signature.
func OpenWAVSource(path string) (Source, error) {
	return OpenWAV(path)
}

func (s *WAVSource) open() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return fmt.Errorf("%w: %s is not a valid WAV file", ErrUnsupported, s.path)
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		f.Close()
		return fmt.Errorf("%w: WAV format tag %d (only integer PCM is supported)", ErrUnsupported, dec.WavAudioFormat)
	}
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return fmt.Errorf("locate PCM data: %w", err)
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	if channels <= 0 || bitDepth <= 0 || bitDepth%8 != 0 || dec.SampleRate == 0 {
		f.Close()
		return fmt.Errorf("%w: %d channels, %d bits, %d Hz", ErrUnsupported, channels, bitDepth, dec.SampleRate)
	}

	frameBytes := int64(channels * bitDepth / 8)

	s.file = f
	s.dec = dec
	s.cursor = 0
	s.carry = s.carry[:0]
	s.info = Info{
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
		BitDepth:   bitDepth,
		Frames:     dec.PCMLen() / frameBytes,
	}
	if s.short > 0 && s.short < s.info.Frames {
		s.info.Frames = s.short
	}
	s.buf = &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: channels, SampleRate: int(dec.SampleRate)},
		Data:   make([]int, readBlockFrames*channels),
	}
	return nil
}

// Info returns header metadata.
func (s *WAVSource) Info() Info {
	return s.info
}

// ReadChunk decodes the requested window into mono samples. A file whose
// data ends before the header says is clamped: the frames that exist are
// returned without error and Info reports the real length from then on.
func (s *WAVSource) ReadChunk(offset, duration float64) ([]float64, error) {
	start, end := frameRange(offset, duration, s.info.SampleRate, s.info.Frames)

	if start < s.cursor {
		if err := s.reopen(); err != nil {
			return nil, err
		}
	}
	if start > s.cursor {
		if _, err := s.decode(start-s.cursor, nil); err != nil {
			return nil, fmt.Errorf("skip to frame %d: %w", start, err)
		}
		if s.cursor < start {
			s.truncate(s.cursor)
			return []float64{}, nil
		}
	}

	out := make([]float64, 0, end-start)
	out, err := s.decode(end-start, out)
	if err != nil {
		return nil, fmt.Errorf("decode frames %d-%d: %w", start, end, err)
	}
	if got := int64(len(out)); got < end-start {
		s.truncate(start + got)
	}
	return out, nil
}

// truncate records that the data ends at frames.
func (s *WAVSource) truncate(frames int64) {
	s.short = frames
	s.info.Frames = frames
}

// decode reads up to frames frames, appending mono samples to dst when dst is
// non-nil. The cursor always reflects what was consumed.
func (s *WAVSource) decode(frames int64, dst []float64) ([]float64, error) {
	channels := s.info.Channels
	scale, bias := sampleScale(s.info.BitDepth)

	for frames > 0 {
		want := int64(readBlockFrames)
		if frames < want {
			want = frames
		}
		need := int(want)*channels - len(s.carry)
		if need <= 0 {
			need = channels
		}
		s.buf.Data = s.buf.Data[:cap(s.buf.Data)]
		if need < len(s.buf.Data) {
			s.buf.Data = s.buf.Data[:need]
		}

		n, err := s.dec.PCMBuffer(s.buf)
		if err != nil {
			return dst, err
		}
		if n == 0 {
			return dst, nil
		}

		samples := append(s.carry, s.buf.Data[:n]...)
		whole := len(samples) / channels
		for f := 0; f < whole; f++ {
			if dst != nil {
				sum := 0.0
				for c := 0; c < channels; c++ {
					sum += (float64(samples[f*channels+c]) - bias) / scale
				}
				dst = append(dst, sum/float64(channels))
			}
		}
		s.carry = append(s.carry[:0], samples[whole*channels:]...)
		s.cursor += int64(whole)
		frames -= int64(whole)
	}
	return dst, nil
}

func (s *WAVSource) reopen() error {
	if s.file != nil {
		s.file.Close()
	}
	return s.open()
}

// Close releases the underlying file.
func (s *WAVSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// sampleScale returns the divisor and offset mapping integer PCM to [-1, 1].
// 8-bit WAV is unsigned and centred on 128.
func sampleScale(bitDepth int) (scale, bias float64) {
	if bitDepth == 8 {
		return 128, 128
	}
	return float64(int64(1) << (bitDepth - 1)), 0
}
