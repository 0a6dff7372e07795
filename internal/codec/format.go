package codec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnknownFormat is returned by GuessFormat for unrecognised file names.
var ErrUnknownFormat = errors.New("unknown output format")

// Format describes what an output file name resolves to, like av_guess_format.
type Format struct {
	// ffmpeg muxer name
	Name string
	// Set for bare elementary streams
	Video Video
	Audio Audio
	// Container outputs are written by the ffmpeg muxer instead of Go
	Container bool
}

// IsElementary reports whether the format is a bare elementary stream.
func (f Format) IsElementary() bool {
	return !f.Container && (f.Video != "" || f.Audio != "")
}

// String returns the muxer name.
func (f Format) String() string {
	return f.Name
}

// containerFormats maps container extensions to ffmpeg muxers.
var containerFormats = map[string]string{
	".mp4":  "mp4",
	".m4v":  "mp4",
	".mov":  "mov",
	".mkv":  "matroska",
	".webm": "webm",
	".ts":   "mpegts",
	".m2ts": "mpegts",
	".flv":  "flv",
	".avi":  "avi",
	".nut":  "nut",
}

// GuessFormat picks the output format from a file name.
func GuessFormat(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return Format{}, fmt.Errorf("%q has no extension: %w", filename, ErrUnknownFormat)
	}

	for _, v := range VideoCodecs() {
		for _, e := range videoRegistry[v].Extensions {
			if e == ext {
				return Format{Name: videoRegistry[v].RawMuxer, Video: v}, nil
			}
		}
	}
	for _, a := range AudioCodecs() {
		for _, e := range audioRegistry[a].Extensions {
			if e == ext {
				return Format{Name: audioRegistry[a].RawMuxer, Audio: a}, nil
			}
		}
	}
	if muxer, ok := containerFormats[ext]; ok {
		return Format{Name: muxer, Container: true}, nil
	}
	return Format{}, fmt.Errorf("%q: %w", filename, ErrUnknownFormat)
}
