// Package ffmpeg provides FFmpeg/FFprobe binary detection and process wrappers.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/avkit/internal/util"
)

// Environment variables that override binary lookup.
const (
	EnvFFmpegBinary  = "AVKIT_FFMPEG_BINARY"
	EnvFFprobeBinary = "AVKIT_FFPROBE_BINARY"
)

var versionRegex = regexp.MustCompile(`^n?(\d+)\.(\d+)`)

// BinaryInfo contains information about the FFmpeg/FFprobe installation.
type BinaryInfo struct {
	FFmpegPath    string       `json:"ffmpeg_path"`
	FFprobePath   string       `json:"ffprobe_path"`
	Version       string       `json:"version"`
	MajorVersion  int          `json:"major_version"`
	MinorVersion  int          `json:"minor_version"`
	BuildDate     string       `json:"build_date,omitempty"`
	Configuration string       `json:"configuration,omitempty"`
	Codecs        []Codec      `json:"codecs,omitempty"`
	Encoders      []string     `json:"encoders,omitempty"`
	Decoders      []string     `json:"decoders,omitempty"`
	HWAccels      []string     `json:"hw_accels,omitempty"`
	Formats       []FormatInfo `json:"formats,omitempty"`
}

// Codec represents codec information from FFmpeg.
type Codec struct {
	Name        string `json:"name"`
	LongName    string `json:"long_name,omitempty"`
	Type        string `json:"type"` // video, audio, subtitle, data
	CanDecode   bool   `json:"can_decode"`
	CanEncode   bool   `json:"can_encode"`
	IsLossy     bool   `json:"is_lossy,omitempty"`
	IsLossless  bool   `json:"is_lossless,omitempty"`
	IsIntraOnly bool   `json:"is_intra_only,omitempty"`
}

// FormatInfo represents format/container information from FFmpeg.
type FormatInfo struct {
	Name     string `json:"name"`
	LongName string `json:"long_name,omitempty"`
	CanMux   bool   `json:"can_mux"`
	CanDemux bool   `json:"can_demux"`
}

// BinaryDetector handles detection and caching of FFmpeg binaries.
type BinaryDetector struct {
	mu           sync.RWMutex
	info         *BinaryInfo
	lastDetected time.Time
	cacheTTL     time.Duration

	// explicit paths from configuration, empty means search
	ffmpegPath  string
	ffprobePath string

	encoders map[string]*EncoderInfo
}

// NewBinaryDetector creates a new binary detector.
func NewBinaryDetector() *BinaryDetector {
	return &BinaryDetector{
		cacheTTL: 5 * time.Minute,
		encoders: make(map[string]*EncoderInfo),
	}
}

// WithCacheTTL sets the cache TTL for binary detection.
func (d *BinaryDetector) WithCacheTTL(ttl time.Duration) *BinaryDetector {
	d.cacheTTL = ttl
	return d
}

// WithPaths pins the ffmpeg and ffprobe binaries. Empty values keep the
// environment/local/PATH search.
func (d *BinaryDetector) WithPaths(ffmpegPath, ffprobePath string) *BinaryDetector {
	d.ffmpegPath = ffmpegPath
	d.ffprobePath = ffprobePath
	return d
}

// Detect detects FFmpeg and FFprobe binaries and their capabilities.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		info := d.info
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double-check after acquiring write lock
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	info, err := d.detect(ctx)
	if err != nil {
		return nil, err
	}

	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

// Clear clears the cached binary and encoder information.
func (d *BinaryDetector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = nil
	d.encoders = make(map[string]*EncoderInfo)
}

// EncoderInfo returns the capabilities ffmpeg reports for one encoder.
// Results are cached for the lifetime of the detector.
func (d *BinaryDetector) EncoderInfo(ctx context.Context, name string) (*EncoderInfo, error) {
	d.mu.RLock()
	enc, ok := d.encoders[name]
	d.mu.RUnlock()
	if ok {
		return enc, nil
	}

	info, err := d.Detect(ctx)
	if err != nil {
		return nil, err
	}
	enc, err = QueryEncoder(ctx, info.FFmpegPath, name)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.encoders[name] = enc
	d.mu.Unlock()
	return enc, nil
}

// detect performs the actual binary detection.
func (d *BinaryDetector) detect(ctx context.Context) (*BinaryInfo, error) {
	info := &BinaryInfo{}

	// Search order: configured path -> AVKIT_FFMPEG_BINARY -> ./ffmpeg -> PATH
	ffmpegPath := d.ffmpegPath
	if ffmpegPath == "" {
		var err error
		ffmpegPath, err = util.FindBinary("ffmpeg", EnvFFmpegBinary)
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found: %w", err)
		}
	}
	info.FFmpegPath = ffmpegPath

	// ffprobe is optional; only extract-frames and probe need it
	ffprobePath := d.ffprobePath
	if ffprobePath == "" {
		if p, err := util.FindBinary("ffprobe", EnvFFprobeBinary); err == nil {
			ffprobePath = p
		}
	}
	info.FFprobePath = ffprobePath

	out, err := run(ctx, ffmpegPath, "-version")
	if err != nil {
		return nil, fmt.Errorf("getting ffmpeg version: %w", err)
	}
	version, err := parseVersion(out)
	if err != nil {
		return nil, err
	}
	info.Version = version.Full
	info.MajorVersion = version.Major
	info.MinorVersion = version.Minor
	info.BuildDate = version.BuildDate
	info.Configuration = version.Configuration

	if out, err := run(ctx, ffmpegPath, "-codecs", "-hide_banner"); err == nil {
		info.Codecs = parseCodecs(out)
	}
	if out, err := run(ctx, ffmpegPath, "-encoders", "-hide_banner"); err == nil {
		info.Encoders = parseCoderList(out)
	}
	if out, err := run(ctx, ffmpegPath, "-decoders", "-hide_banner"); err == nil {
		info.Decoders = parseCoderList(out)
	}
	if out, err := run(ctx, ffmpegPath, "-hwaccels", "-hide_banner"); err == nil {
		info.HWAccels = parseHWAccels(out)
	}
	if out, err := run(ctx, ffmpegPath, "-formats", "-hide_banner"); err == nil {
		info.Formats = parseFormats(out)
	}

	return info, nil
}

func run(ctx context.Context, binary string, args ...string) (string, error) {
	output, err := exec.CommandContext(ctx, binary, args...).Output()
	if err != nil {
		return "", err
	}
	return string(output), nil
}

// versionInfo holds parsed version information.
type versionInfo struct {
	Full          string
	Major         int
	Minor         int
	BuildDate     string
	Configuration string
}

// parseVersion extracts version information from `ffmpeg -version` output.
func parseVersion(output string) (*versionInfo, error) {
	info := &versionInfo{}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "ffmpeg version"):
			// "ffmpeg version 6.0 Copyright...", "ffmpeg version n6.0-2-g..."
			parts := strings.Fields(line)
			if len(parts) >= 3 {
				info.Full = parts[2]
				if matches := versionRegex.FindStringSubmatch(parts[2]); len(matches) >= 3 {
					info.Major, _ = strconv.Atoi(matches[1])
					info.Minor, _ = strconv.Atoi(matches[2])
				}
			}
		case strings.HasPrefix(line, "built with"):
			info.BuildDate = strings.TrimPrefix(line, "built with ")
		case strings.HasPrefix(line, "configuration:"):
			info.Configuration = strings.TrimSpace(strings.TrimPrefix(line, "configuration:"))
		}
	}

	if info.Full == "" {
		return nil, fmt.Errorf("failed to parse ffmpeg version")
	}

	return info, nil
}

// parseCodecs parses `ffmpeg -codecs` output.
func parseCodecs(output string) []Codec {
	var codecs []Codec
	inCodecList := false

	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "-------") {
			inCodecList = true
			continue
		}
		if !inCodecList {
			continue
		}

		// Format: DEV.LS codec_name description
		// 0: D decode, 1: E encode, 2: V/A/S/D/T type,
		// 3: I intra only, 4: L lossy, 5: S lossless
		line = strings.TrimLeft(line, " ")
		if len(line) < 8 {
			continue
		}

		flags := line[:6]
		parts := strings.SplitN(strings.TrimSpace(line[6:]), " ", 2)
		if parts[0] == "" {
			continue
		}

		codec := Codec{
			Name:        parts[0],
			CanDecode:   flags[0] == 'D',
			CanEncode:   flags[1] == 'E',
			IsIntraOnly: flags[3] == 'I',
			IsLossy:     flags[4] == 'L',
			IsLossless:  flags[5] == 'S',
		}

		switch flags[2] {
		case 'V':
			codec.Type = "video"
		case 'A':
			codec.Type = "audio"
		case 'S':
			codec.Type = "subtitle"
		case 'D':
			codec.Type = "data"
		case 'T':
			codec.Type = "attachment"
		}

		if len(parts) > 1 {
			codec.LongName = strings.TrimSpace(parts[1])
		}

		if codec.Type != "" {
			codecs = append(codecs, codec)
		}
	}

	return codecs
}

// parseCoderList parses `ffmpeg -encoders` or `ffmpeg -decoders` output.
func parseCoderList(output string) []string {
	var names []string
	inList := false

	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}

		// Format: V....D name description
		line = strings.TrimLeft(line, " ")
		if len(line) < 8 {
			continue
		}
		if line[0] != 'V' && line[0] != 'A' && line[0] != 'S' {
			continue
		}

		if parts := strings.Fields(line[6:]); len(parts) >= 1 {
			names = append(names, parts[0])
		}
	}

	return names
}

// parseHWAccels parses `ffmpeg -hwaccels` output.
func parseHWAccels(output string) []string {
	var accels []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		accels = append(accels, line)
	}
	return accels
}

// parseFormats parses `ffmpeg -formats` output.
func parseFormats(output string) []FormatInfo {
	var formats []FormatInfo
	inFormatList := false

	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "--") {
			inFormatList = true
			continue
		}
		if !inFormatList || len(line) < 4 {
			continue
		}

		// Format: " DE name  description", newer builds add a 'd' device column
		flags := line[:4]
		parts := strings.SplitN(strings.TrimSpace(line[4:]), " ", 2)
		if parts[0] == "" {
			continue
		}

		format := FormatInfo{
			Name:     parts[0],
			CanDemux: strings.Contains(flags, "D"),
			CanMux:   strings.Contains(flags, "E"),
		}
		if len(parts) > 1 {
			format.LongName = strings.TrimSpace(parts[1])
		}

		// "mov,mp4,m4a,3gp,3g2,mj2" lists several demuxer names
		for _, name := range strings.Split(format.Name, ",") {
			f := format
			f.Name = name
			formats = append(formats, f)
		}
	}

	return formats
}

// HasEncoder returns true if the encoder is available.
func (info *BinaryInfo) HasEncoder(name string) bool {
	return slices.Contains(info.Encoders, name)
}

// HasDecoder returns true if the decoder is available.
func (info *BinaryInfo) HasDecoder(name string) bool {
	return slices.Contains(info.Decoders, name)
}

// HasMuxer returns true if the format is available for muxing.
func (info *BinaryInfo) HasMuxer(name string) bool {
	for _, f := range info.Formats {
		if f.Name == name && f.CanMux {
			return true
		}
	}
	return false
}

// Muxers returns the names of all formats that can be written.
func (info *BinaryInfo) Muxers() []string {
	var names []string
	for _, f := range info.Formats {
		if f.CanMux {
			names = append(names, f.Name)
		}
	}
	return names
}

// JSON returns the binary info as JSON string.
func (info *BinaryInfo) JSON() string {
	data, _ := json.MarshalIndent(info, "", "  ")
	return string(data)
}

// SupportsMinVersion returns true if FFmpeg version meets minimum requirement.
func (info *BinaryInfo) SupportsMinVersion(major, minor int) bool {
	if info.MajorVersion > major {
		return true
	}
	return info.MajorVersion == major && info.MinorVersion >= minor
}
