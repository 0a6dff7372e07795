// Package demux splits container input into elementary streams: MPEG-TS in
// Go through mediacommon, everything else through an ffmpeg stream copy.
package demux

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/jmylchreest/avkit/internal/codec"
)

// ErrNoStreams is returned when the input has neither a usable video nor audio stream.
var ErrNoStreams = errors.New("no demuxable streams")

// StreamKind distinguishes video from audio streams.
type StreamKind string

// Stream kinds.
const (
	KindVideo StreamKind = "video"
	KindAudio StreamKind = "audio"
)

// Stream describes one selected elementary stream.
type Stream struct {
	PID   uint16
	Kind  StreamKind
	Video codec.Video
	Audio codec.Audio

	// Audio parameters when the container carries them
	SampleRate int
	Channels   int
}

// CodecName returns the canonical codec name.
func (s *Stream) CodecName() string {
	if s.Kind == KindVideo {
		return s.Video.String()
	}
	return s.Audio.String()
}

// Extension returns the file extension of the stream's elementary format.
// MPEG audio tracks use .mp3 whatever their layer.
func (s *Stream) Extension() string {
	switch {
	case s.Kind == KindVideo && s.Video == codec.VideoMPEG1:
		return ".m1v"
	case s.Kind == KindVideo:
		return s.Video.Extension()
	case s.Audio == codec.AudioMP3, s.Audio == codec.AudioMP2:
		return ".mp3"
	}
	return s.Audio.Extension()
}

// Packet is one demuxed unit in its elementary stream framing: Annex B for
// H.264/HEVC, ADTS for AAC, bare frames for MPEG audio and AC-3.
type Packet struct {
	Stream   *Stream
	PTS      int64 // 90 kHz
	DTS      int64
	Data     []byte
	Keyframe bool
}

// Stats counts demuxed packets per stream type.
type Stats struct {
	VideoPackets uint64 `json:"video_packets"`
	VideoBytes   uint64 `json:"video_bytes"`
	AudioPackets uint64 `json:"audio_packets"`
	AudioBytes   uint64 `json:"audio_bytes"`
	DecodeErrors uint64 `json:"decode_errors"`
}

// OutputName derives an elementary output file name from the input, e.g.
// cuc_ieschool.ts and .h264 give cuc_ieschool.h264.
func OutputName(input, ext string) string {
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ext
}

// ElementaryWriter writes packets of one stream back to back into a file.
type ElementaryWriter struct {
	path string
	f    *os.File
	w    *bufio.Writer

	packets atomic.Uint64
	bytes   atomic.Uint64
}

// CreateElementaryWriter creates or truncates path.
func CreateElementaryWriter(path string) (*ElementaryWriter, error) {
	f, err := os.Create(path) //nolint:gosec // output path chosen by the user
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &ElementaryWriter{path: path, f: f, w: bufio.NewWriterSize(f, 64*1024)}, nil
}

// WritePacket appends the packet payload.
func (w *ElementaryWriter) WritePacket(p Packet) error {
	n, err := w.w.Write(p.Data)
	w.bytes.Add(uint64(n)) //nolint:gosec // n is non-negative
	if err != nil {
		return fmt.Errorf("writing %s: %w", w.path, err)
	}
	w.packets.Add(1)
	return nil
}

// Path returns the file path.
func (w *ElementaryWriter) Path() string {
	return w.path
}

// Packets returns the number of packets written.
func (w *ElementaryWriter) Packets() uint64 {
	return w.packets.Load()
}

// Bytes returns the number of bytes written.
func (w *ElementaryWriter) Bytes() uint64 {
	return w.bytes.Load()
}

// Close flushes and closes the file.
func (w *ElementaryWriter) Close() error {
	ferr := w.w.Flush()
	cerr := w.f.Close()
	if ferr != nil {
		return fmt.Errorf("flushing %s: %w", w.path, ferr)
	}
	return cerr
}
