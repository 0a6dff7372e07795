package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNoVideoStream is returned when an input has no usable video stream.
var ErrNoVideoStream = errors.New("no video stream found")

// ProbeResult contains the ffprobe output.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	Filename       string            `json:"filename"`
	NumStreams     int               `json:"nb_streams"`
	NumPrograms    int               `json:"nb_programs"`
	FormatName     string            `json:"format_name"`
	FormatLongName string            `json:"format_long_name"`
	StartTime      string            `json:"start_time,omitempty"`
	Duration       string            `json:"duration,omitempty"`
	Size           string            `json:"size,omitempty"`
	BitRate        string            `json:"bit_rate,omitempty"`
	ProbeScore     int               `json:"probe_score"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index         int               `json:"index"`
	CodecName     string            `json:"codec_name"`
	CodecLongName string            `json:"codec_long_name"`
	Profile       string            `json:"profile,omitempty"`
	CodecType     string            `json:"codec_type"` // video, audio, subtitle, data
	Width         int               `json:"width,omitempty"`
	Height        int               `json:"height,omitempty"`
	PixFmt        string            `json:"pix_fmt,omitempty"`
	SampleFmt     string            `json:"sample_fmt,omitempty"`
	SampleRate    string            `json:"sample_rate,omitempty"`
	Channels      int               `json:"channels,omitempty"`
	ChannelLayout string            `json:"channel_layout,omitempty"`
	RFrameRate    string            `json:"r_frame_rate,omitempty"`
	AvgFrameRate  string            `json:"avg_frame_rate,omitempty"`
	TimeBase      string            `json:"time_base,omitempty"`
	StartPts      int64             `json:"start_pts,omitempty"`
	Duration      string            `json:"duration,omitempty"`
	BitRate       string            `json:"bit_rate,omitempty"`
	NumFrames     string            `json:"nb_frames,omitempty"`
	Disposition   ProbeDisposition  `json:"disposition"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// ProbeDisposition contains stream disposition flags.
type ProbeDisposition struct {
	Default     int `json:"default"`
	Forced      int `json:"forced"`
	AttachedPic int `json:"attached_pic"`
}

// Prober handles ffprobe operations.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a new prober.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Probe runs ffprobe on a file and returns its format and streams.
func (p *Prober) Probe(ctx context.Context, input string) (*ProbeResult, error) {
	if p.ffprobePath == "" {
		return nil, fmt.Errorf("ffprobe not available")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		input,
	}

	output, err := exec.CommandContext(ctx, p.ffprobePath, args...).Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		return nil, fmt.Errorf("ffprobe %s: %w", input, err)
	}

	return parseProbeOutput(output)
}

func parseProbeOutput(output []byte) (*ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}
	return &result, nil
}

// BestVideoStream picks the stream av_find_best_stream would: the first video
// stream marked default, otherwise the first video stream. Cover art is skipped.
func (r *ProbeResult) BestVideoStream() (*ProbeStream, error) {
	var first *ProbeStream
	for i := range r.Streams {
		s := &r.Streams[i]
		if s.CodecType != "video" || s.Disposition.AttachedPic == 1 {
			continue
		}
		if s.Disposition.Default == 1 {
			return s, nil
		}
		if first == nil {
			first = s
		}
	}
	if first == nil {
		return nil, ErrNoVideoStream
	}
	return first, nil
}

// StreamsByType returns all streams of the given type.
func (r *ProbeResult) StreamsByType(codecType string) []ProbeStream {
	var streams []ProbeStream
	for _, s := range r.Streams {
		if s.CodecType == codecType {
			streams = append(streams, s)
		}
	}
	return streams
}

// Duration returns the container duration, zero when unknown.
func (r *ProbeResult) Duration() time.Duration {
	d, err := strconv.ParseFloat(r.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return time.Duration(d * float64(time.Second))
}

// Bitrate returns the container bitrate in bits per second, zero when unknown.
func (r *ProbeResult) Bitrate() int {
	br, _ := strconv.Atoi(r.Format.BitRate)
	return br
}

// Framerate returns the average frame rate, falling back to r_frame_rate.
func (s *ProbeStream) Framerate() float64 {
	if fr := parseFramerate(s.AvgFrameRate); fr > 0 {
		return fr
	}
	return parseFramerate(s.RFrameRate)
}

// SampleRateHz returns the audio sample rate, zero for non-audio streams.
func (s *ProbeStream) SampleRateHz() int {
	sr, _ := strconv.Atoi(s.SampleRate)
	return sr
}

// parseFramerate parses "30000/1001" or "25" style rates.
func parseFramerate(fr string) float64 {
	parts := strings.Split(fr, "/")
	if len(parts) != 2 {
		if f, err := strconv.ParseFloat(fr, 64); err == nil {
			return f
		}
		return 0
	}

	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}

	return num / den
}
