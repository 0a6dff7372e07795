package ffmpeg

import (
	"context"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
)

// BitstreamFilterInfo contains information about a bitstream filter to apply
type BitstreamFilterInfo struct {
	VideoBSF string // e.g. h264_mp4toannexb
	AudioBSF string
	Reason   string
}

// lengthPrefixedContainers store H.264/HEVC as length-prefixed NAL units
// (avcC/hvcC) instead of Annex B start codes.
var lengthPrefixedContainers = []string{"mov", "mp4", "m4a", "3gp", "flv", "matroska", "webm"}

// AnnexBFilter returns the filter that turns a stream copied out of the given
// container into an Annex B elementary stream. formatName is ffprobe's
// comma separated format_name.
func AnnexBFilter(codecName, formatName string) BitstreamFilterInfo {
	if !isLengthPrefixed(formatName) {
		return BitstreamFilterInfo{Reason: "source already carries start codes"}
	}

	switch strings.ToLower(codecName) {
	case "h264", "avc", "avc1":
		return BitstreamFilterInfo{VideoBSF: "h264_mp4toannexb", Reason: formatName + " stores length-prefixed H.264"}
	case "hevc", "h265", "hev1", "hvc1":
		return BitstreamFilterInfo{VideoBSF: "hevc_mp4toannexb", Reason: formatName + " stores length-prefixed HEVC"}
	}
	return BitstreamFilterInfo{Reason: "no conversion needed for " + codecName}
}

func isLengthPrefixed(formatName string) bool {
	for _, name := range strings.Split(formatName, ",") {
		for _, c := range lengthPrefixedContainers {
			if name == c {
				return true
			}
		}
	}
	return false
}

// ApplyBitstreamFilters adds the bitstream filter arguments to a CommandBuilder
func ApplyBitstreamFilters(builder *CommandBuilder, bsfInfo BitstreamFilterInfo) *CommandBuilder {
	if bsfInfo.VideoBSF != "" {
		builder.BitstreamFilter("v", bsfInfo.VideoBSF)
		slog.Debug("Applying video bitstream filter",
			slog.String("bsf_v", bsfInfo.VideoBSF),
			slog.String("reason", bsfInfo.Reason))
	}
	if bsfInfo.AudioBSF != "" {
		builder.BitstreamFilter("a", bsfInfo.AudioBSF)
		slog.Debug("Applying audio bitstream filter",
			slog.String("bsf_a", bsfInfo.AudioBSF),
			slog.String("reason", bsfInfo.Reason))
	}
	return builder
}

// ValidateBitstreamFilterAvailable checks if a bitstream filter is available in FFmpeg
func ValidateBitstreamFilterAvailable(ctx context.Context, ffmpegPath, filterName string) bool {
	if filterName == "" {
		return true
	}

	output, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-bsfs").Output()
	if err != nil {
		slog.Warn("Failed to list bitstream filters", slog.Any("error", err))
		return true // Assume available
	}

	pattern := regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(filterName) + `\s*$`)
	return pattern.Match(output)
}
