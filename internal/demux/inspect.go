package demux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astits"

	"github.com/jmylchreest/avkit/internal/codec"
)

// ProgramInfo is one program announced in the PAT with the streams of its PMT.
type ProgramInfo struct {
	Number  uint16           `json:"number"`
	PMTPID  uint16           `json:"pmt_pid"`
	PCRPID  uint16           `json:"pcr_pid"`
	Streams []ElementaryInfo `json:"streams"`
}

// ElementaryInfo describes one PMT entry.
type ElementaryInfo struct {
	PID        uint16 `json:"pid"`
	StreamType uint8  `json:"stream_type"`
	// Codec is empty for stream types outside the codec registry.
	Codec string `json:"codec,omitempty"`
}

// Inspection is the program structure of a transport stream.
type Inspection struct {
	Programs []ProgramInfo `json:"programs"`
	Packets  int           `json:"packets_read"`
}

// maxInspectTables bounds how many PSI tables Inspect looks at before giving up
// on programs whose PMT never shows.
const maxInspectTables = 4096

// CodecForStreamType maps an MPEG-TS stream_type onto a registry codec name.
func CodecForStreamType(st uint8) string {
	// the layer is only known from frame headers; name it the way the TS
	// demuxer does
	if st == codec.StreamTypeMPEG1Audio || st == codec.StreamTypeMPEG2Audio {
		return codec.AudioMP3.String()
	}
	for _, v := range codec.VideoCodecs() {
		if v.MPEGTSStreamType() == st && st != 0 {
			return v.String()
		}
	}
	for _, a := range codec.AudioCodecs() {
		if a.MPEGTSStreamType() == st && st != 0 {
			return a.String()
		}
	}
	return ""
}

// Inspect reads the PAT and the PMT of every listed program. It stops once all
// PMTs have been seen, at end of input, or when ctx is cancelled.
func Inspect(ctx context.Context, r io.Reader) (*Inspection, error) {
	dmx := astits.NewDemuxer(ctx, bufio.NewReaderSize(r, defaultBufferSize))

	result := &Inspection{}
	var pmtPIDs map[uint16]uint16 // PMT PID -> program number
	seen := make(map[uint16]bool)

	for tables := 0; tables < maxInspectTables; tables++ {
		d, err := dmx.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) {
				break
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("reading transport stream: %w", err)
		}
		result.Packets++

		switch {
		case d.PAT != nil && pmtPIDs == nil:
			pmtPIDs = make(map[uint16]uint16, len(d.PAT.Programs))
			for _, p := range d.PAT.Programs {
				// program 0 points at the NIT
				if p.ProgramNumber == 0 {
					continue
				}
				pmtPIDs[p.ProgramMapID] = p.ProgramNumber
			}

		case d.PMT != nil:
			if pmtPIDs == nil || seen[d.PID] {
				continue
			}
			if _, ok := pmtPIDs[d.PID]; !ok {
				continue
			}
			seen[d.PID] = true
			result.Programs = append(result.Programs, programInfo(d.PID, d.PMT))
		}

		if pmtPIDs != nil && len(seen) == len(pmtPIDs) {
			break
		}
	}

	if pmtPIDs == nil {
		return nil, fmt.Errorf("no PAT found: %w", ErrNoStreams)
	}
	return result, nil
}

func programInfo(pid uint16, pmt *astits.PMTData) ProgramInfo {
	info := ProgramInfo{
		Number: pmt.ProgramNumber,
		PMTPID: pid,
		PCRPID: pmt.PCRPID,
	}
	for _, es := range pmt.ElementaryStreams {
		st := uint8(es.StreamType)
		info.Streams = append(info.Streams, ElementaryInfo{
			PID:        es.ElementaryPID,
			StreamType: st,
			Codec:      CodecForStreamType(st),
		})
	}
	return info
}
