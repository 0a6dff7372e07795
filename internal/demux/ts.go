package demux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/jmylchreest/avkit/internal/bitstream"
	"github.com/jmylchreest/avkit/internal/codec"
)

// defaultBufferSize holds a thousand TS packets.
const defaultBufferSize = 188 * 1024

// PacketFunc receives demuxed packets. Returning an error stops the demuxer.
type PacketFunc func(Packet) error

// TSDemuxerConfig configures the MPEG-TS demuxer.
type TSDemuxerConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Callbacks for the first video and first audio track. A nil callback
	// leaves that track unselected.
	OnVideo PacketFunc
	OnAudio PacketFunc

	// BufferSize of the read buffer in front of the TS reader.
	BufferSize int
}

// TSDemuxer demuxes the first video and first audio track of an MPEG-TS
// stream with mediacommon's reader.
type TSDemuxer struct {
	config TSDemuxerConfig
	reader *mpegts.Reader

	video *Stream
	audio *Stream
	other []*mpegts.Track

	videoPackets atomic.Uint64
	videoBytes   atomic.Uint64
	audioPackets atomic.Uint64
	audioBytes   atomic.Uint64
	decodeErrors atomic.Uint64
}

// NewTSDemuxer reads until the PAT and PMT are known and selects the tracks.
func NewTSDemuxer(r io.Reader, config TSDemuxerConfig) (*TSDemuxer, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = defaultBufferSize
	}

	d := &TSDemuxer{config: config}
	d.reader = &mpegts.Reader{R: bufio.NewReaderSize(r, config.BufferSize)}

	// Initialize reads until it finds PAT/PMT
	if err := d.reader.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing mpegts reader: %w", err)
	}

	for _, track := range d.reader.Tracks() {
		d.setupTrackCallback(track)
	}
	if d.video == nil && d.audio == nil {
		return nil, ErrNoStreams
	}

	d.reader.OnDecodeError(func(err error) {
		d.decodeErrors.Add(1)
		d.config.Logger.Debug("MPEG-TS decode error", slog.String("error", err.Error()))
	})

	d.config.Logger.Debug("MPEG-TS demuxer initialized",
		slog.String("video_codec", d.codecName(d.video)),
		slog.String("audio_codec", d.codecName(d.audio)),
		slog.Int("tracks", len(d.reader.Tracks())))
	return d, nil
}

func (d *TSDemuxer) codecName(s *Stream) string {
	if s == nil {
		return ""
	}
	return s.CodecName()
}

// setupTrackCallback selects a discovered track if its slot is still free.
func (d *TSDemuxer) setupTrackCallback(track *mpegts.Track) {
	video, audio := codec.FromTrack(track.Codec)

	switch {
	case video != "" && d.video == nil && d.config.OnVideo != nil:
		d.video = &Stream{PID: track.PID, Kind: KindVideo, Video: video}
		d.setupVideo(track, d.video)
		d.config.Logger.Debug("Found video track",
			slog.Uint64("pid", uint64(track.PID)),
			slog.String("codec", video.String()))

	case audio != "" && d.audio == nil && d.config.OnAudio != nil:
		s := &Stream{PID: track.PID, Kind: KindAudio, Audio: audio}
		if !d.setupAudio(track, s) {
			d.other = append(d.other, track)
			return
		}
		d.audio = s
		d.config.Logger.Debug("Found audio track",
			slog.Uint64("pid", uint64(track.PID)),
			slog.String("codec", audio.String()),
			slog.Int("sample_rate", s.SampleRate),
			slog.Int("channels", s.Channels))

	default:
		d.other = append(d.other, track)
		d.config.Logger.Debug("Skipping track",
			slog.Uint64("pid", uint64(track.PID)),
			slog.String("type", fmt.Sprintf("%T", track.Codec)))
	}
}

func (d *TSDemuxer) setupVideo(track *mpegts.Track, s *Stream) {
	switch track.Codec.(type) {
	case *mpegts.CodecH264:
		d.reader.OnDataH264(track, func(pts, dts int64, au [][]byte) error {
			return d.handleAccessUnit(s, pts, dts, au, h264.IsRandomAccess(au))
		})
	case *mpegts.CodecH265:
		d.reader.OnDataH265(track, func(pts, dts int64, au [][]byte) error {
			return d.handleAccessUnit(s, pts, dts, au, h265.IsRandomAccess(au))
		})
	case *mpegts.CodecMPEG1Video:
		d.reader.OnDataMPEGxVideo(track, func(pts int64, frame []byte) error {
			return d.emitVideo(Packet{
				Stream:   s,
				PTS:      pts,
				DTS:      pts,
				Data:     frame,
				Keyframe: bitstream.IsMPEGVideoKeyframe(frame),
			})
		})
	}
}

// setupAudio registers the callback for tracks with an elementary framing.
func (d *TSDemuxer) setupAudio(track *mpegts.Track, s *Stream) bool {
	switch c := track.Codec.(type) {
	case *mpegts.CodecMPEG4Audio:
		s.SampleRate = c.Config.SampleRate
		s.Channels = c.Config.ChannelCount
		cfg := c.Config
		d.reader.OnDataMPEG4Audio(track, func(pts int64, aus [][]byte) error {
			return d.handleMPEG4Audio(s, cfg.SampleRate, pts, aus, func(au []byte) ([]byte, error) {
				return bitstream.EncodeADTS(cfg, au)
			})
		})
		return true

	case *mpegts.CodecMPEG1Audio:
		d.reader.OnDataMPEG1Audio(track, func(pts int64, frames [][]byte) error {
			return d.handleMPEG1Audio(s, pts, frames)
		})
		return true

	case *mpegts.CodecAC3:
		s.SampleRate = c.SampleRate
		s.Channels = c.ChannelCount
		d.reader.OnDataAC3(track, func(pts int64, frame []byte) error {
			return d.emitAudio(Packet{Stream: s, PTS: pts, DTS: pts, Data: frame, Keyframe: true})
		})
		return true
	}
	// Opus in TS has no elementary file framing
	return false
}

// handleAccessUnit emits an H.264/HEVC access unit in Annex B format.
func (d *TSDemuxer) handleAccessUnit(s *Stream, pts, dts int64, au [][]byte, keyframe bool) error {
	if len(au) == 0 {
		return nil
	}
	data, err := bitstream.MarshalAnnexB(au)
	if err != nil {
		d.decodeErrors.Add(1)
		d.config.Logger.Debug("dropping access unit", slog.Int64("pts", pts), slog.String("error", err.Error()))
		return nil
	}
	return d.emitVideo(Packet{Stream: s, PTS: pts, DTS: dts, Data: data, Keyframe: keyframe})
}

// handleMPEG4Audio emits each access unit of a PES with an ADTS header.
// Access units after the first get their PTS from the frame duration.
func (d *TSDemuxer) handleMPEG4Audio(s *Stream, sampleRate int, pts int64, aus [][]byte, frame func([]byte) ([]byte, error)) error {
	duration := int64(1920) // 1024 samples at 48 kHz
	if sampleRate > 0 {
		duration = int64(codec.AudioAAC.FrameSize()) * 90000 / int64(sampleRate)
	}

	for i, au := range aus {
		if len(au) == 0 {
			continue
		}
		data, err := frame(au)
		if err != nil {
			return fmt.Errorf("framing AAC access unit: %w", err)
		}
		p := Packet{Stream: s, PTS: pts + int64(i)*duration, Data: data, Keyframe: true}
		p.DTS = p.PTS
		if err := d.emitAudio(p); err != nil {
			return err
		}
	}
	return nil
}

// handleMPEG1Audio emits MPEG audio frames, timing them from their headers.
func (d *TSDemuxer) handleMPEG1Audio(s *Stream, pts int64, frames [][]byte) error {
	current := pts
	for _, frame := range frames {
		if len(frame) == 0 {
			continue
		}
		if err := d.emitAudio(Packet{Stream: s, PTS: current, DTS: current, Data: frame, Keyframe: true}); err != nil {
			return err
		}

		h, err := bitstream.ParseMPEGAudioHeader(frame)
		if err != nil || h.SampleRate == 0 {
			continue
		}
		if s.SampleRate == 0 {
			s.SampleRate = h.SampleRate
		}
		current += int64(h.SampleCount()) * 90000 / int64(h.SampleRate)
	}
	return nil
}

func (d *TSDemuxer) emitVideo(p Packet) error {
	d.videoPackets.Add(1)
	d.videoBytes.Add(uint64(len(p.Data)))
	return d.config.OnVideo(p)
}

func (d *TSDemuxer) emitAudio(p Packet) error {
	d.audioPackets.Add(1)
	d.audioBytes.Add(uint64(len(p.Data)))
	return d.config.OnAudio(p)
}

// Video returns the selected video stream, or nil.
func (d *TSDemuxer) Video() *Stream {
	return d.video
}

// Audio returns the selected audio stream, or nil.
func (d *TSDemuxer) Audio() *Stream {
	return d.audio
}

// Tracks returns every track listed in the PMT.
func (d *TSDemuxer) Tracks() []*mpegts.Track {
	return d.reader.Tracks()
}

// Run demuxes until end of input or until ctx is cancelled.
func (d *TSDemuxer) Run(ctx context.Context) (Stats, error) {
	for {
		if err := ctx.Err(); err != nil {
			return d.Stats(), err
		}
		if err := d.reader.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				return d.Stats(), nil
			}
			return d.Stats(), fmt.Errorf("reading mpegts: %w", err)
		}
	}
}

// Stats returns the packet counters so far.
func (d *TSDemuxer) Stats() Stats {
	return Stats{
		VideoPackets: d.videoPackets.Load(),
		VideoBytes:   d.videoBytes.Load(),
		AudioPackets: d.audioPackets.Load(),
		AudioBytes:   d.audioBytes.Load(),
		DecodeErrors: d.decodeErrors.Load(),
	}
}
