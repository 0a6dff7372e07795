// Package bitstream splits elementary streams into the packets a decoder
// expects: H.264/HEVC access units, MPEG video pictures, ADTS and MPEG audio
// frames, and JPEG pictures.
package bitstream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
)

// ErrInvalidBitstream is returned when a splitter meets data it cannot resynchronise on.
var ErrInvalidBitstream = errors.New("invalid bitstream")

// SplitFunc has the bufio.SplitFunc contract. A splitter returns one complete
// packet per call, or asks for more data by returning (0, nil, nil).
type SplitFunc = bufio.SplitFunc

// Parser turns arbitrarily sized chunks of an elementary stream into whole
// packets. It is the counterpart of av_parser_parse2 for the formats avkit writes.
type Parser struct {
	split SplitFunc
	buf   []byte
}

// NewParser returns a parser driven by split.
func NewParser(split SplitFunc) *Parser {
	return &Parser{split: split}
}

// Buffered returns the number of bytes held back waiting for a packet boundary.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Feed appends chunk to the pending data and returns every packet that is now complete.
func (p *Parser) Feed(chunk []byte) ([][]byte, error) {
	p.buf = append(p.buf, chunk...)
	return p.drain(false)
}

// Flush returns the packets remaining at end of stream and resets the parser.
func (p *Parser) Flush() ([][]byte, error) {
	packets, err := p.drain(true)
	p.buf = p.buf[:0]
	return packets, err
}

func (p *Parser) drain(atEOF bool) ([][]byte, error) {
	var packets [][]byte
	for len(p.buf) > 0 {
		advance, token, err := p.split(p.buf, atEOF)
		if err != nil {
			return packets, fmt.Errorf("splitting packet: %w", err)
		}
		if token != nil {
			packets = append(packets, bytes.Clone(token))
		}
		if advance <= 0 {
			break
		}
		// p.buf keeps its tail capacity, so the next append reallocates
		// with only the pending bytes once the array is used up
		p.buf = p.buf[min(advance, len(p.buf)):]
	}
	return packets, nil
}

// SplitAll runs split over a complete buffer and returns its packets.
func SplitAll(data []byte, split SplitFunc) ([][]byte, error) {
	p := NewParser(split)
	packets, err := p.Feed(data)
	if err != nil {
		return packets, err
	}
	rest, err := p.Flush()
	return append(packets, rest...), err
}
