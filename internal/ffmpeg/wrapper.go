package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Pipe endpoints for raw data exchanged with the child process.
const (
	PipeInput  = "pipe:0"
	PipeOutput = "pipe:1"
)

// Command represents an FFmpeg command to execute.
type Command struct {
	Binary    string
	Args      []string
	Input     string
	Output    string
	LogLevel  string
	Overwrite bool

	stderrLogPath string
}

// Progress represents FFmpeg progress information.
type Progress struct {
	Frame     int64         `json:"frame"`
	FPS       float64       `json:"fps"`
	Bitrate   string        `json:"bitrate"`
	TotalSize int64         `json:"total_size"`
	Time      time.Duration `json:"time"`
	Speed     float64       `json:"speed"`
}

// CommandBuilder builds FFmpeg commands with a fluent API.
type CommandBuilder struct {
	binary        string
	globalArgs    []string
	inputArgs     []string
	input         string
	filterArgs    []string
	outputArgs    []string
	output        string
	logLevel      string
	overwrite     bool
	stderrLogPath string
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	if level != "" {
		b.logLevel = level
	}
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Stats enables progress stats output on stderr.
func (b *CommandBuilder) Stats() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-stats")
	return b
}

// NoStdin stops ffmpeg from reading interactive commands from stdin.
func (b *CommandBuilder) NoStdin() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-nostdin")
	return b
}

// Input sets the input source.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// InputArgs adds arbitrary input arguments.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// InputFormat forces the input demuxer.
func (b *CommandBuilder) InputFormat(format string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, "-f", format)
	return b
}

// RawVideoInput declares headerless frames on the input.
func (b *CommandBuilder) RawVideoInput(pixFmt string, width, height, frameRate int) *CommandBuilder {
	b.inputArgs = append(b.inputArgs,
		"-f", "rawvideo",
		"-pix_fmt", pixFmt,
		"-s", fmt.Sprintf("%dx%d", width, height))
	if frameRate > 0 {
		b.inputArgs = append(b.inputArgs, "-framerate", strconv.Itoa(frameRate))
	}
	return b
}

// RawAudioInput declares headerless interleaved PCM on the input.
func (b *CommandBuilder) RawAudioInput(rawFormat string, sampleRate, channels int) *CommandBuilder {
	b.inputArgs = append(b.inputArgs,
		"-f", rawFormat,
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels))
	return b
}

// InputCodec forces the decoder used for the input.
func (b *CommandBuilder) InputCodec(codec string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, "-c", codec)
	return b
}

// OutputFormat forces the output muxer.
func (b *CommandBuilder) OutputFormat(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-f", format)
	return b
}

// RawVideoOutput writes headerless frames in the given pixel format.
func (b *CommandBuilder) RawVideoOutput(pixFmt string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-f", "rawvideo", "-pix_fmt", pixFmt)
	return b
}

// RawAudioOutput writes headerless interleaved PCM.
func (b *CommandBuilder) RawAudioOutput(rawFormat string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-f", rawFormat)
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// CopyCodec copies a stream without re-encoding. Stream is "v", "a" or "".
func (b *CommandBuilder) CopyCodec(stream string) *CommandBuilder {
	flag := "-c"
	if stream != "" {
		flag += ":" + stream
	}
	b.outputArgs = append(b.outputArgs, flag, "copy")
	return b
}

// VideoBitrate sets the video bitrate in bits per second.
func (b *CommandBuilder) VideoBitrate(bitrate int) *CommandBuilder {
	if bitrate > 0 {
		b.outputArgs = append(b.outputArgs, "-b:v", strconv.Itoa(bitrate))
	}
	return b
}

// AudioBitrate sets the audio bitrate in bits per second.
func (b *CommandBuilder) AudioBitrate(bitrate int) *CommandBuilder {
	if bitrate > 0 {
		b.outputArgs = append(b.outputArgs, "-b:a", strconv.Itoa(bitrate))
	}
	return b
}

// GOPSize sets the keyframe interval.
func (b *CommandBuilder) GOPSize(gop int) *CommandBuilder {
	if gop > 0 {
		b.outputArgs = append(b.outputArgs, "-g", strconv.Itoa(gop))
	}
	return b
}

// MaxBFrames sets the maximum number of consecutive B-frames.
func (b *CommandBuilder) MaxBFrames(n int) *CommandBuilder {
	if n >= 0 {
		b.outputArgs = append(b.outputArgs, "-bf", strconv.Itoa(n))
	}
	return b
}

// QuantizerRange sets qmin and qmax.
func (b *CommandBuilder) QuantizerRange(qmin, qmax int) *CommandBuilder {
	if qmin > 0 {
		b.outputArgs = append(b.outputArgs, "-qmin", strconv.Itoa(qmin))
	}
	if qmax > 0 {
		b.outputArgs = append(b.outputArgs, "-qmax", strconv.Itoa(qmax))
	}
	return b
}

// TimeBase sets the encoder time base num/den, expressed to ffmpeg as the
// output frame rate den/num.
func (b *CommandBuilder) TimeBase(num, den int) *CommandBuilder {
	if num > 0 && den > 0 {
		b.outputArgs = append(b.outputArgs, "-r", fmt.Sprintf("%d/%d", den, num))
	}
	return b
}

// PixelFormat sets the output pixel format.
func (b *CommandBuilder) PixelFormat(pixFmt string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-pix_fmt", pixFmt)
	return b
}

// SampleFormat sets the encoder sample format.
func (b *CommandBuilder) SampleFormat(sampleFmt string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-sample_fmt", sampleFmt)
	return b
}

// SampleRate sets the output sample rate.
func (b *CommandBuilder) SampleRate(rate int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-ar", strconv.Itoa(rate))
	return b
}

// AudioChannels sets the number of audio channels.
func (b *CommandBuilder) AudioChannels(channels int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-ac", strconv.Itoa(channels))
	return b
}

// VideoSize sets the output picture size.
func (b *CommandBuilder) VideoSize(width, height int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-s", fmt.Sprintf("%dx%d", width, height))
	return b
}

// PrivateOption sets an encoder private option such as preset or tune.
func (b *CommandBuilder) PrivateOption(key, value string) *CommandBuilder {
	if key != "" && value != "" {
		b.outputArgs = append(b.outputArgs, "-"+key, value)
	}
	return b
}

// BitstreamFilter applies a bitstream filter to a stream type ("v" or "a").
func (b *CommandBuilder) BitstreamFilter(stream, filter string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-bsf:"+stream, filter)
	return b
}

// Map selects an input stream for the output.
func (b *CommandBuilder) Map(spec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-map", spec)
	return b
}

// Frames limits the number of video frames written.
func (b *CommandBuilder) Frames(n int) *CommandBuilder {
	if n > 0 {
		b.outputArgs = append(b.outputArgs, "-frames:v", strconv.Itoa(n))
	}
	return b
}

// NoAudio drops audio streams.
func (b *CommandBuilder) NoAudio() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-an")
	return b
}

// NoVideo drops video streams.
func (b *CommandBuilder) NoVideo() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-vn")
	return b
}

// VideoFilter adds a video filter.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.filterArgs = append(b.filterArgs, filter)
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// FlushPackets writes each packet to the output as soon as it is muxed.
func (b *CommandBuilder) FlushPackets() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-flush_packets", "1")
	return b
}

// StderrLogPath sets a file path to write FFmpeg stderr output for debugging.
func (b *CommandBuilder) StderrLogPath(path string) *CommandBuilder {
	b.stderrLogPath = path
	return b
}

// ApplyCustomOutputOptions parses and applies custom output options string.
// Options are appended after existing output args.
func (b *CommandBuilder) ApplyCustomOutputOptions(opts string) *CommandBuilder {
	if opts == "" {
		return b
	}
	b.outputArgs = append(b.outputArgs, parseOptionsString(opts)...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)

	if b.overwrite {
		args = append(args, "-y")
	}

	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)

	if len(b.filterArgs) > 0 {
		args = append(args, "-vf", strings.Join(b.filterArgs, ","))
	}

	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary:        b.binary,
		Args:          args,
		Input:         b.input,
		Output:        b.output,
		LogLevel:      b.logLevel,
		Overwrite:     b.overwrite,
		stderrLogPath: b.stderrLogPath,
	}
}

// parseOptionsString splits an options string respecting quotes.
func parseOptionsString(s string) []string {
	var result []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)
	escaped := false

	for _, r := range s {
		if escaped {
			current.WriteRune(r)
			escaped = false
			continue
		}

		if r == '\\' {
			escaped = true
			continue
		}

		if r == '"' || r == '\'' {
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
			default:
				current.WriteRune(r)
			}
			continue
		}

		if r == ' ' && !inQuote {
			if current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
			continue
		}

		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Run executes the command and waits for completion. A failure carries the
// tail of ffmpeg's stderr.
func (c *Command) Run(ctx context.Context) error {
	p, err := c.Start(ctx)
	if err != nil {
		return err
	}
	return p.Wait()
}

// RunWithProgress runs the command and reports progress parsed from -stats
// output. The channel is never blocked on and is not closed.
func (c *Command) RunWithProgress(ctx context.Context, progressCh chan<- Progress) error {
	p, err := c.StartWithProgress(ctx, progressCh)
	if err != nil {
		return err
	}
	return p.Wait()
}

// StartWithProgress starts the command like Start and reports progress
// parsed from -stats output without blocking on the channel.
func (c *Command) StartWithProgress(ctx context.Context, progressCh chan<- Progress) (*Process, error) {
	return c.start(ctx, func(line string) {
		if progress, ok := parseProgress(line); ok {
			select {
			case progressCh <- progress:
			default:
			}
		}
	})
}

var (
	frameRe   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	bitrateRe = regexp.MustCompile(`bitrate=\s*([\d.]+\s*\w+/s)`)
	sizeRe    = regexp.MustCompile(`size=\s*(\d+)`)
	timeRe    = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
	speedRe   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// parseProgress parses one FFmpeg stats line.
func parseProgress(line string) (Progress, bool) {
	var progress Progress

	matches := frameRe.FindStringSubmatch(line)
	if len(matches) < 2 {
		// audio-only runs print size= and time= without frame=
		if !sizeRe.MatchString(line) || !timeRe.MatchString(line) {
			return progress, false
		}
	} else {
		progress.Frame, _ = strconv.ParseInt(matches[1], 10, 64)
	}

	if matches := fpsRe.FindStringSubmatch(line); len(matches) > 1 {
		progress.FPS, _ = strconv.ParseFloat(matches[1], 64)
	}
	if matches := bitrateRe.FindStringSubmatch(line); len(matches) > 1 {
		progress.Bitrate = matches[1]
	}
	if matches := sizeRe.FindStringSubmatch(line); len(matches) > 1 {
		progress.TotalSize, _ = strconv.ParseInt(matches[1], 10, 64)
	}
	if matches := timeRe.FindStringSubmatch(line); len(matches) > 4 {
		hours, _ := strconv.Atoi(matches[1])
		mins, _ := strconv.Atoi(matches[2])
		secs, _ := strconv.Atoi(matches[3])
		cs, _ := strconv.Atoi(matches[4])
		progress.Time = time.Duration(hours)*time.Hour +
			time.Duration(mins)*time.Minute +
			time.Duration(secs)*time.Second +
			time.Duration(cs)*time.Millisecond*10
	}
	if matches := speedRe.FindStringSubmatch(line); len(matches) > 1 {
		progress.Speed, _ = strconv.ParseFloat(matches[1], 64)
	}

	return progress, true
}

// scanStderrLines splits on \n and on the bare \r ffmpeg uses to redraw stats.
func scanStderrLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance := i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// newStderrScanner returns a scanner over ffmpeg diagnostics.
func newStderrScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	scanner.Split(scanStderrLines)
	return scanner
}

// Start starts the command with pipes attached for pipe:0 input and pipe:1
// output.
func (c *Command) Start(ctx context.Context) (*Process, error) {
	return c.start(ctx, nil)
}

func (c *Command) start(ctx context.Context, onLine func(string)) (*Process, error) {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)

	p := &Process{
		command:    c,
		cmd:        cmd,
		stderr:     newStderrBuffer(stderrTailLines),
		stderrDone: make(chan struct{}),
		onLine:     onLine,
	}

	var err error
	if c.Input == PipeInput || c.Input == "-" {
		if p.stdin, err = cmd.StdinPipe(); err != nil {
			return nil, fmt.Errorf("getting stdin pipe: %w", err)
		}
	}
	if c.Output == PipeOutput || c.Output == "-" {
		if p.stdout, err = cmd.StdoutPipe(); err != nil {
			return nil, fmt.Errorf("getting stdout pipe: %w", err)
		}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("getting stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}
	p.started = time.Now()

	p.monitor = NewProcessMonitor(cmd.Process.Pid)
	p.monitor.Start()
	if p.stdin != nil {
		p.in = NewCountingWriter(p.stdin, p.monitor)
	}
	if p.stdout != nil {
		p.out = NewCountingReader(p.stdout, p.monitor)
	}

	go p.captureStderr(stderr, c.stderrLogPath)

	return p, nil
}
