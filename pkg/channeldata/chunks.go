// Package channeldata plans and decodes the binary data chunks that hold
// recorded channel samples.
//
// A segment is a continuous recording of one channel group. Its samples are
// stored as fixed-period chunks under a base URL; ChunkURLs lists the chunks
// overlapping a time window and Decode turns one downloaded chunk into a
// table with a time column and one column per channel.
package channeldata

import (
	"fmt"
	"math"
	"strings"
)

// chunkPattern is the file name of chunk 0 inside a segment's base URL.
const chunkPattern = "00000000000.dat"

// Channel is one recorded signal within a channel group.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Segment is a continuous recording period. Times are epoch milliseconds.
type Segment struct {
	ID        string  `json:"id"`
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration"`
}

// End returns the first millisecond after the segment.
func (s Segment) End() float64 {
	return s.StartTime + s.Duration
}

// ChannelGroup describes how the samples of a set of channels are stored.
type ChannelGroup struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	SampleEncoding   string    `json:"sampleEncoding"`
	SampleRate       float64   `json:"sampleRate"`
	SamplesPerRecord int       `json:"samplesPerRecord"`
	RecordsPerChunk  int       `json:"recordsPerChunk"`
	ChunkPeriod      float64   `json:"chunkPeriod"`
	SignalMin        float64   `json:"signalMin"`
	SignalMax        float64   `json:"signalMax"`
	Units            string    `json:"units"`
	Exponent         float64   `json:"exponent"`
	Compression      string    `json:"compression"`
	Timestamped      bool      `json:"timestamped"`
	Segments         []Segment `json:"segments"`
	Channels         []Channel `json:"channels"`
}

// Chunk is one downloadable piece of a segment.
type Chunk struct {
	SegmentID string
	Index     int
	URL       string
	// Time is the chunk start in epoch milliseconds.
	Time float64
}

// ChunkURLs lists the chunks of segment that overlap [from, to). Chunk i
// starts at StartTime + ChunkPeriod*1000*i; its URL is baseURL with the
// chunk-0 file name replaced by the zero-padded index. A non-positive to
// means no upper bound.
func ChunkURLs(group ChannelGroup, segment Segment, baseURL string, from, to float64) []Chunk {
	if group.ChunkPeriod <= 0 || baseURL == "" {
		return nil
	}
	if to <= 0 {
		to = math.Inf(1)
	}

	period := group.ChunkPeriod * 1000
	n := int(math.Ceil(segment.Duration / period))
	digits := len(chunkPattern) - len(".dat")

	var chunks []Chunk
	for i := 0; i < n; i++ {
		start := segment.StartTime + period*float64(i)
		next := segment.StartTime + period*float64(i+1)
		if start >= to || next <= from {
			continue
		}
		name := fmt.Sprintf("%0*d.dat", digits, i)
		chunks = append(chunks, Chunk{
			SegmentID: segment.ID,
			Index:     i,
			URL:       strings.Replace(baseURL, chunkPattern, name, 1),
			Time:      start,
		})
	}
	return chunks
}

// ChannelNames returns one unique column name per channel: the channel's
// name, or its id when the name is empty or shared with another channel.
// Channels repeated with the same id are listed once.
func ChannelNames(channels []Channel) []string {
	seen := make(map[string]bool, len(channels))
	unique := make([]Channel, 0, len(channels))
	for _, c := range channels {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		unique = append(unique, c)
	}

	counts := make(map[string]int, len(unique))
	for _, c := range unique {
		counts[c.Name]++
	}

	names := make([]string, len(unique))
	for i, c := range unique {
		if c.Name == "" || counts[c.Name] > 1 {
			names[i] = c.ID
		} else {
			names[i] = c.Name
		}
	}
	return names
}
