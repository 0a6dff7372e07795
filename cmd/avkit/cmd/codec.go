package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/avkit/internal/bitstream"
	"github.com/jmylchreest/avkit/internal/codec"
	"github.com/jmylchreest/avkit/internal/config"
	"github.com/jmylchreest/avkit/internal/ffmpeg"
	"github.com/jmylchreest/avkit/internal/media"
	"github.com/jmylchreest/avkit/internal/observability"
	"github.com/jmylchreest/avkit/internal/transcode"
)

// errUsage is returned after a usage text has been printed.
var errUsage = errors.New("invalid arguments")

const codecUsage = `usage: avkit codec output_type
API example program to decode/encode a media stream with libavcodec.
This program generates a synthetic stream and encodes it to a file
named test.h264, test.mp2 or test.mpg depending on output_type.
The encoded stream is then decoded and written to a raw data output.
output_type must be chosen between 'h264', 'mp2', 'mpg'.
`

var codecCmd = &cobra.Command{
	Use:   "codec <h264|mp2|mpg>",
	Short: "Encode a synthetic stream and decode it back",
	Long:  codecUsage,
	RunE:  runCodec,
}

func init() {
	rootCmd.AddCommand(codecCmd)
}

func runCodec(cmd *cobra.Command, args []string) (err error) {
	if len(args) < 1 {
		fmt.Fprint(cmd.ErrOrStderr(), codecUsage)
		return errUsage
	}
	outputType := args[0]
	switch outputType {
	case "h264", "mp2", "mpg":
	default:
		return fmt.Errorf("Invalid output type '%s', choose between 'h264', 'mp2', or 'mpg'", outputType) //nolint:staticcheck // user facing message
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel, logger := commandContext(cmd, cfg, "codec_"+outputType)
	defer cancel()
	defer observability.TimedOperationWithError(ctx, logger, "codec", &err)()

	detector, info, err := detectBinaries(ctx, cfg)
	if err != nil {
		return err
	}

	rt := roundTrip{
		ffmpegPath: info.FFmpegPath,
		cfg:        cfg,
		logger:     logger,
		stdout:     cmd.OutOrStdout(),
	}

	switch outputType {
	case "h264":
		return rt.encodeVideo(ctx, codec.VideoH264, "test.h264")
	case "mpg":
		if err := rt.encodeVideo(ctx, codec.VideoMPEG1, "test.mpg"); err != nil {
			return err
		}
		return rt.decodeVideo(ctx, "test.mpg", "test%02d.pgm")
	default:
		ac, err := codec.LookupAudio(cfg.Codec.AudioCodec)
		if err != nil {
			return err
		}
		if err := rt.encodeAudio(ctx, detector, ac, "test.mp2"); err != nil {
			return err
		}
		return rt.decodeAudio(ctx, ac, "test.mp2", "test.pcm")
	}
}

// roundTrip runs the synthetic encode and decode passes of the codec command.
type roundTrip struct {
	ffmpegPath string
	cfg        *config.Config
	logger     *slog.Logger
	stdout     io.Writer
}

func (rt roundTrip) encodeVideo(ctx context.Context, vc codec.Video, filename string) error {
	cc := rt.cfg.Codec
	rt.logger.Info("encode video file", slog.String("file", filename), slog.String("codec", vc.String()))

	encCfg := transcode.VideoEncoderConfig{
		Codec:       vc,
		Width:       cc.Width,
		Height:      cc.Height,
		TimeBaseNum: 1,
		TimeBaseDen: rt.cfg.Video.FrameRate,
		Bitrate:     cc.Bitrate,
		GOPSize:     cc.GOPSize,
		MaxBFrames:  cc.MaxBFrames,
		LogLevel:    rt.cfg.FFmpeg.LogLevel,
		Logger:      rt.logger,
	}
	if vc == codec.VideoH264 {
		encCfg.Options = []transcode.Option{{Key: "preset", Value: "slow"}}
	}
	enc, err := transcode.NewVideoEncoder(ctx, rt.ffmpegPath, encCfg)
	if err != nil {
		return err
	}
	defer enc.Close()

	var out bytes.Buffer
	for i := 0; i < cc.Frames; i++ {
		frame, err := media.NewVideoFrame(cc.Width, cc.Height, media.PixFmtYUV420P, 32)
		if err != nil {
			return err
		}
		if err := media.FillPattern(frame, i, media.PatternEncode); err != nil {
			return err
		}
		packets, err := enc.Encode(frame)
		if err != nil {
			return fmt.Errorf("encoding frame %d: %w", i, err)
		}
		for _, p := range packets {
			fmt.Fprintf(rt.stdout, "Write frame %3d (size=%5d)\n", p.Index, p.Size())
			out.Write(p.Data)
		}
	}

	rest, err := enc.Flush()
	if err != nil {
		return err
	}
	for _, p := range rest {
		fmt.Fprintf(rt.stdout, "Write frame %3d (size=%5d) delayed\n", p.Index, p.Size())
		out.Write(p.Data)
	}

	if !bitstream.HasSequenceEnd(out.Bytes()) {
		out.Write(bitstream.SequenceEndCode)
	}
	if err := os.WriteFile(filename, out.Bytes(), 0o644); err != nil { //nolint:gosec // output is meant to be readable
		return fmt.Errorf("could not open %s: %w", filename, err)
	}
	return nil
}

func (rt roundTrip) decodeVideo(ctx context.Context, filename, pattern string) error {
	rt.logger.Info("decode video file", slog.String("file", filename), slog.String("output", pattern))

	f, err := os.Open(filename) //nolint:gosec // file written by encodeVideo
	if err != nil {
		return fmt.Errorf("could not open %s: %w", filename, err)
	}
	defer f.Close()

	var dec *transcode.VideoDecoder
	defer func() {
		if dec != nil {
			dec.Close()
		}
	}()

	frameCount := 0
	save := func(frames []*media.VideoFrame) error {
		for _, fr := range frames {
			fmt.Fprintf(rt.stdout, "Saving frame %3d\n", frameCount)
			if err := media.SavePGM(fmt.Sprintf(pattern, frameCount), fr); err != nil {
				return err
			}
			frameCount++
		}
		return nil
	}

	decode := func(packets [][]byte) error {
		for _, pkt := range packets {
			if dec == nil {
				hdr, err := bitstream.ParseSequenceHeader(pkt)
				if err != nil {
					return fmt.Errorf("reading %s: %w", filename, err)
				}
				dec, err = transcode.NewVideoDecoder(ctx, rt.ffmpegPath, transcode.VideoDecoderConfig{
					Codec:    codec.VideoMPEG1,
					Width:    hdr.Width,
					Height:   hdr.Height,
					LogLevel: rt.cfg.FFmpeg.LogLevel,
					Logger:   rt.logger,
				})
				if err != nil {
					return err
				}
			}
			frames, err := dec.Decode(pkt)
			if err != nil {
				return fmt.Errorf("error while decoding frame %d: %w", frameCount, err)
			}
			if err := save(frames); err != nil {
				return err
			}
		}
		return nil
	}

	parser := bitstream.NewParser(bitstream.SplitMPEGVideo)
	buf := make([]byte, rt.cfg.Codec.InbufSize.Int())
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			packets, err := parser.Feed(buf[:n])
			if err != nil {
				return err
			}
			if err := decode(packets); err != nil {
				return err
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return fmt.Errorf("reading %s: %w", filename, rerr)
		}
	}

	tail, err := parser.Flush()
	if err != nil {
		return err
	}
	if err := decode(tail); err != nil {
		return err
	}
	if dec == nil {
		return fmt.Errorf("%s holds no pictures: %w", filename, bitstream.ErrInvalidBitstream)
	}
	rest, err := dec.Flush()
	if err != nil {
		return err
	}
	return save(rest)
}

// audioEncoderParams picks the sample rate and layout the encoder supports best.
func audioEncoderParams(ctx context.Context, detector *ffmpeg.BinaryDetector, ac codec.Audio, logger *slog.Logger) (int, media.ChannelLayout) {
	formats, rates, layouts := ac.SampleFormats(), ac.SampleRates(), ac.ChannelLayouts()
	if info, err := detector.EncoderInfo(ctx, ac.Encoder()); err != nil {
		logger.Warn("querying encoder failed, using registry defaults",
			slog.String("encoder", ac.Encoder()), slog.String("error", err.Error()))
	} else {
		if len(info.SampleFormats) > 0 {
			formats = info.SampleFormats
		}
		rates, layouts = info.SampleRates, info.ChannelLayouts
	}

	if !codec.SupportsSampleFormat(formats, media.SampleFmtS16) {
		logger.Warn("encoder does not support sample format, ffmpeg converts",
			slog.String("encoder", ac.Encoder()),
			slog.String("sample_fmt", media.SampleFmtS16.String()))
	}
	return codec.SelectSampleRate(rates), codec.SelectChannelLayout(layouts)
}

func (rt roundTrip) encodeAudio(ctx context.Context, detector *ffmpeg.BinaryDetector, ac codec.Audio, filename string) error {
	cc := rt.cfg.Codec
	rt.logger.Info("encode audio file", slog.String("file", filename), slog.String("codec", ac.String()))

	rate, layout := audioEncoderParams(ctx, detector, ac, rt.logger)
	enc, err := transcode.NewAudioEncoder(ctx, rt.ffmpegPath, transcode.AudioEncoderConfig{
		Codec:      ac,
		SampleRate: rate,
		Layout:     layout,
		Bitrate:    cc.AudioBitrate,
		LogLevel:   rt.cfg.FFmpeg.LogLevel,
		Logger:     rt.logger,
	})
	if err != nil {
		return err
	}
	defer enc.Close()

	var out bytes.Buffer
	tone := media.NewTone(cc.ToneFrequency, float64(cc.ToneAmplitude))
	for i := 0; i < cc.AudioFrames; i++ {
		frame, err := media.NewAudioFrame(media.SampleFmtS16, layout, rate, enc.FrameSize())
		if err != nil {
			return err
		}
		if err := tone.Fill(frame); err != nil {
			return err
		}
		frame.PTS = int64(i * enc.FrameSize())
		packets, err := enc.Encode(frame)
		if err != nil {
			return fmt.Errorf("error encoding audio frame: %w", err)
		}
		for _, p := range packets {
			out.Write(p.Data)
		}
	}

	rest, err := enc.Flush()
	if err != nil {
		return err
	}
	for _, p := range rest {
		out.Write(p.Data)
	}
	if err := os.WriteFile(filename, out.Bytes(), 0o644); err != nil { //nolint:gosec // output is meant to be readable
		return fmt.Errorf("could not open %s: %w", filename, err)
	}
	return nil
}

func (rt roundTrip) decodeAudio(ctx context.Context, ac codec.Audio, filename, outfilename string) error {
	cc := rt.cfg.Codec
	rt.logger.Info("decode audio file", slog.String("file", filename), slog.String("output", outfilename))

	in, err := os.Open(filename) //nolint:gosec // file written by encodeAudio
	if err != nil {
		return fmt.Errorf("could not open %s: %w", filename, err)
	}
	defer in.Close()

	out, err := os.Create(outfilename) //nolint:gosec // user working directory
	if err != nil {
		return fmt.Errorf("could not open %s: %w", outfilename, err)
	}
	defer out.Close()

	dec, err := transcode.NewAudioDecoder(ctx, rt.ffmpegPath, transcode.AudioDecoderConfig{
		Codec:    ac,
		LogLevel: rt.cfg.FFmpeg.LogLevel,
		Logger:   rt.logger,
	})
	if err != nil {
		return err
	}
	defer dec.Close()

	decode := func(packets [][]byte) error {
		for _, pkt := range packets {
			pcm, err := dec.Decode(pkt)
			if err != nil {
				return fmt.Errorf("error while decoding: %w", err)
			}
			if _, err := out.Write(pcm); err != nil {
				return fmt.Errorf("writing %s: %w", outfilename, err)
			}
		}
		return nil
	}

	// keep up to inbuf bytes in flight, topping up once fewer than the
	// refill threshold are left unparsed
	parser := bitstream.NewParser(ac.Splitter())
	inbuf := cc.AudioInbufSize.Int()
	refill := cc.AudioRefill.Int()
	buf := make([]byte, inbuf)
	for {
		if parser.Buffered() >= refill {
			return fmt.Errorf("%s: no frame found in %d bytes: %w", filename, parser.Buffered(), bitstream.ErrInvalidBitstream)
		}
		n, rerr := io.ReadFull(in, buf[:inbuf-parser.Buffered()])
		if n > 0 {
			packets, err := parser.Feed(buf[:n])
			if err != nil {
				return err
			}
			if err := decode(packets); err != nil {
				return err
			}
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return fmt.Errorf("reading %s: %w", filename, rerr)
		}
	}

	tail, err := parser.Flush()
	if err != nil {
		return err
	}
	if err := decode(tail); err != nil {
		return err
	}
	rest, err := dec.Flush()
	if err != nil {
		return err
	}
	if _, err := out.Write(rest); err != nil {
		return fmt.Errorf("writing %s: %w", outfilename, err)
	}
	rt.logger.Debug("decoded audio", slog.String("sample_fmt", dec.OutputFormat().String()))
	return nil
}
