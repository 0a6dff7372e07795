package codec

import (
	"slices"

	"github.com/jmylchreest/avkit/internal/media"
)

// DefaultSampleRate is used when an encoder lists no sample rates.
const DefaultSampleRate = 44100

// DefaultLayout is used when an encoder lists no channel layouts.
var DefaultLayout = media.LayoutStereo

// SupportsSampleFormat reports whether format is in the encoder's list.
func SupportsSampleFormat(formats []media.SampleFormat, format media.SampleFormat) bool {
	return slices.Contains(formats, format)
}

// SelectSampleRate returns the highest supported rate, or DefaultSampleRate
// when the encoder does not restrict it.
func SelectSampleRate(rates []int) int {
	if len(rates) == 0 {
		return DefaultSampleRate
	}
	return slices.Max(rates)
}

// SelectChannelLayout returns the layout with the most channels, the first one
// on ties, or DefaultLayout when the encoder does not restrict it.
func SelectChannelLayout(layouts []media.ChannelLayout) media.ChannelLayout {
	if len(layouts) == 0 {
		return DefaultLayout
	}
	best := layouts[0]
	for _, l := range layouts[1:] {
		if l.Channels > best.Channels {
			best = l
		}
	}
	return best
}
