package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/avkit/internal/codec"
	"github.com/jmylchreest/avkit/internal/ffmpeg"
)

// detectCmd represents the detect command
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect FFmpeg and the codecs avkit uses",
	Long: `Detect the FFmpeg installation and report which of the encoders,
decoders and muxers avkit relies on are available.

Examples:
  # Basic detection (JSON output)
  avkit detect

  # Pretty-printed JSON
  avkit detect --pretty

  # Output to file
  avkit detect > capabilities.json`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().Bool("pretty", false, "pretty-print JSON output")
	detectCmd.Flags().Duration("timeout", 30*time.Second, "detection timeout")
}

// DetectionResult contains the full detection output.
type DetectionResult struct {
	FFmpeg       FFmpegInfo       `json:"ffmpeg"`
	Capabilities CapabilitiesInfo `json:"capabilities"`
}

// FFmpegInfo contains FFmpeg binary information.
type FFmpegInfo struct {
	Version     string `json:"version"`
	FFmpegPath  string `json:"ffmpeg_path"`
	FFprobePath string `json:"ffprobe_path"`
}

// CapabilitiesInfo maps each codec or muxer avkit may use to its availability.
type CapabilitiesInfo struct {
	VideoEncoders map[string]bool `json:"video_encoders"`
	VideoDecoders map[string]bool `json:"video_decoders"`
	AudioEncoders map[string]bool `json:"audio_encoders"`
	AudioDecoders map[string]bool `json:"audio_decoders"`
	Muxers        map[string]bool `json:"muxers"`
	// GoDemuxable lists the codecs the Go MPEG-TS demuxer extracts.
	GoDemuxable []string `json:"go_demuxable"`
}

func runDetect(cmd *cobra.Command, _ []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	pretty, _ := cmd.Flags().GetBool("pretty")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	_, info, err := detectBinaries(ctx, cfg)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	result := buildDetectionResult(info)

	var data []byte
	if pretty {
		data, err = json.MarshalIndent(result, "", "  ")
	} else {
		data, err = json.Marshal(result)
	}
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func buildDetectionResult(info *ffmpeg.BinaryInfo) DetectionResult {
	caps := CapabilitiesInfo{
		VideoEncoders: map[string]bool{},
		VideoDecoders: map[string]bool{},
		AudioEncoders: map[string]bool{},
		AudioDecoders: map[string]bool{},
		Muxers:        map[string]bool{},
	}

	for _, v := range codec.VideoCodecs() {
		caps.VideoEncoders[v.Encoder()] = info.HasEncoder(v.Encoder())
		caps.VideoDecoders[v.Decoder()] = info.HasDecoder(v.Decoder())
		caps.Muxers[v.RawMuxer()] = info.HasMuxer(v.RawMuxer())
		if v.IsDemuxable() {
			caps.GoDemuxable = append(caps.GoDemuxable, v.String())
		}
	}
	for _, a := range codec.AudioCodecs() {
		caps.AudioEncoders[a.Encoder()] = info.HasEncoder(a.Encoder())
		caps.AudioDecoders[a.Decoder()] = info.HasDecoder(a.Decoder())
		caps.Muxers[a.RawMuxer()] = info.HasMuxer(a.RawMuxer())
		if a.IsDemuxable() {
			caps.GoDemuxable = append(caps.GoDemuxable, a.String())
		}
	}
	caps.Muxers["mpegts"] = info.HasMuxer("mpegts")

	return DetectionResult{
		FFmpeg: FFmpegInfo{
			Version:     info.Version,
			FFmpegPath:  info.FFmpegPath,
			FFprobePath: info.FFprobePath,
		},
		Capabilities: caps,
	}
}
