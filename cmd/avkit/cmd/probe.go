package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jmylchreest/avkit/internal/demux"
	"github.com/jmylchreest/avkit/internal/ffmpeg"
)

var probeJSON bool

var streamTitle = cases.Title(language.English)

var probeCmd = &cobra.Command{
	Use:   "probe <input>",
	Short: "Print the container and stream layout of a media file",
	Long: `Print the container format, duration, bitrate and one line per stream
of a media file, like ffmpeg's format dump. MPEG-TS inputs also list the
program map table read by the Go demuxer.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(probeCmd)
}

// ProbeReport is the output of the probe command.
type ProbeReport struct {
	Probe *ffmpeg.ProbeResult `json:"probe"`
	TS    *demux.Inspection   `json:"mpegts,omitempty"`
}

func isTransportStream(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".m2ts", ".mts":
		return true
	}
	return false
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel, logger := commandContext(cmd, cfg, "probe")
	defer cancel()

	_, info, err := detectBinaries(ctx, cfg)
	if err != nil {
		return err
	}

	input := args[0]
	result, err := ffmpeg.NewProber(info.FFprobePath).Probe(ctx, input)
	if err != nil {
		return err
	}
	report := ProbeReport{Probe: result}

	if isTransportStream(input) {
		f, err := os.Open(input) //nolint:gosec // user supplied input
		if err != nil {
			return fmt.Errorf("opening %s: %w", input, err)
		}
		defer f.Close()
		report.TS, err = demux.Inspect(ctx, f)
		if err != nil {
			logger.Warn("reading program map table failed", "error", err)
		}
	}

	if probeJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling probe result: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	printProbe(cmd.OutOrStdout(), input, report)
	return nil
}

func printProbe(w io.Writer, input string, r ProbeReport) {
	f := r.Probe.Format
	fmt.Fprintf(w, "Input #0, %s, from '%s':\n", f.FormatName, input)

	size := "N/A"
	if n, err := strconv.ParseUint(f.Size, 10, 64); err == nil {
		size = humanize.IBytes(n)
	}
	bitrate := "N/A"
	if br := r.Probe.Bitrate(); br > 0 {
		bitrate = fmt.Sprintf("%d kb/s", br/1000)
	}
	fmt.Fprintf(w, "  Duration: %s, size: %s, bitrate: %s\n", r.Probe.Duration(), size, bitrate)

	for _, s := range r.Probe.Streams {
		fmt.Fprintf(w, "  Stream #0:%d: %s: %s", s.Index, streamTitle.String(s.CodecType), s.CodecName)
		switch s.CodecType {
		case "video":
			fmt.Fprintf(w, ", %s, %dx%d", s.PixFmt, s.Width, s.Height)
			if fr := s.Framerate(); fr > 0 {
				fmt.Fprintf(w, ", %.2f fps", fr)
			}
		case "audio":
			fmt.Fprintf(w, ", %d Hz, %d channels", s.SampleRateHz(), s.Channels)
			if s.SampleFmt != "" {
				fmt.Fprintf(w, ", %s", s.SampleFmt)
			}
		}
		fmt.Fprintln(w)
	}

	if r.TS == nil {
		return
	}
	for _, p := range r.TS.Programs {
		fmt.Fprintf(w, "  Program %d (PMT PID 0x%04x, PCR PID 0x%04x)\n", p.Number, p.PMTPID, p.PCRPID)
		for _, es := range p.Streams {
			name := es.Codec
			if name == "" {
				name = "unknown"
			}
			fmt.Fprintf(w, "    PID 0x%04x stream_type 0x%02x %s\n", es.PID, es.StreamType, name)
		}
	}
}
