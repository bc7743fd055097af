package channeldata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"

	"github.com/seermedical/seer-client-go/pkg/table"
)

// Columns that prefix every decoded chunk table.
const (
	ColumnTime           = "time"
	ColumnStudyID        = "id"
	ColumnChannelGroupID = "channelGroups.id"
	ColumnSegmentID      = "segments.id"
)

// ErrUnknownEncoding is returned for a sample encoding Decode cannot read.
var ErrUnknownEncoding = errors.New("unknown sample encoding")

// ChunkMeta carries what Decode needs to interpret one chunk.
type ChunkMeta struct {
	StudyID string
	Group   ChannelGroup
	Segment Segment
	Chunk   Chunk
	// Channels are the column names, one per channel in storage order.
	Channels []string
}

type sampleFormat struct {
	size    int
	integer bool
	min     float64
	max     float64
	read    func([]byte) float64
}

var formats = map[string]sampleFormat{
	"int8": {size: 1, integer: true, min: math.MinInt8, max: math.MaxInt8,
		read: func(b []byte) float64 { return float64(int8(b[0])) }},
	"int16": {size: 2, integer: true, min: math.MinInt16, max: math.MaxInt16,
		read: func(b []byte) float64 { return float64(int16(binary.LittleEndian.Uint16(b))) }},
	"int32": {size: 4, integer: true, min: math.MinInt32, max: math.MaxInt32,
		read: func(b []byte) float64 { return float64(int32(binary.LittleEndian.Uint32(b))) }},
	"float32": {size: 4,
		read: func(b []byte) float64 { return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))) }},
	"float64": {size: 8,
		read: func(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }},
}

// Decompress inflates gzip data. Data that is not gzip is returned as-is.
func Decompress(raw []byte) []byte {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return raw
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return raw
	}
	return out
}

// Decode converts one downloaded chunk into a table with columns time, id,
// channelGroups.id, segments.id and one column per channel.
//
// Integer samples equal to the type's minimum in every column mark a gap:
// trailing gap rows are dropped, other gap rows become NaN. Integer samples
// are then scaled from the digital range to [SignalMin, SignalMax]. All
// channels are multiplied by 10^Exponent, NaN cells are filled from the
// left, then from the right, then with 0, and rows at or past the segment
// end are dropped.
func Decode(raw []byte, meta ChunkMeta) (*table.Table, error) {
	group := meta.Group
	format, ok := formats[group.SampleEncoding]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownEncoding, group.SampleEncoding)
	}
	nch := len(meta.Channels)
	if nch == 0 {
		return nil, errors.New("channel group has no channels")
	}

	data := raw
	if group.Compression == "gzip" {
		data = Decompress(raw)
	}
	if len(data)%format.size != 0 {
		return nil, fmt.Errorf("chunk length %d is not a multiple of %s size", len(data), group.SampleEncoding)
	}

	samples := make([]float64, len(data)/format.size)
	for i := range samples {
		samples[i] = format.read(data[i*format.size:])
	}

	rows, err := reshape(samples, nch, group)
	if err != nil {
		return nil, err
	}

	first := 0
	if group.Timestamped {
		first = 1
	}

	if format.integer {
		rows = dropTrailingGaps(rows, format.min)
		scale(rows, first, format, group)
	}
	factor := math.Pow(10, group.Exponent)
	for _, row := range rows {
		for c := first; c < len(row); c++ {
			row[c] *= factor
		}
		fillRow(row)
	}

	columns := append([]string{ColumnTime, ColumnStudyID, ColumnChannelGroupID, ColumnSegmentID}, meta.Channels...)
	out := table.New(columns...)
	end := meta.Segment.End()
	step := 0.0
	if group.SampleRate > 0 {
		step = 1000 / group.SampleRate
	}

	for i, row := range rows {
		var t float64
		if group.Timestamped {
			t = row[0] + meta.Chunk.Time
		} else {
			t = float64(i)*step + meta.Chunk.Time
		}
		if t >= end {
			continue
		}

		cells := make([]any, 0, len(columns))
		cells = append(cells, t, meta.StudyID, group.ID, meta.Segment.ID)
		for _, v := range row[first:] {
			cells = append(cells, v)
		}
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}

// reshape arranges samples into rows. Timestamped chunks are a flat
// sequence of (t, ch1..chN) rows. Other chunks are records of
// SamplesPerRecord samples for channel 1, then channel 2, and so on.
func reshape(samples []float64, nch int, group ChannelGroup) ([][]float64, error) {
	if group.Timestamped {
		width := nch + 1
		if len(samples)%width != 0 {
			return nil, fmt.Errorf("%d samples do not divide into rows of %d", len(samples), width)
		}
		rows := make([][]float64, len(samples)/width)
		for i := range rows {
			rows[i] = samples[i*width : (i+1)*width : (i+1)*width]
		}
		return rows, nil
	}

	spr := group.SamplesPerRecord
	if spr <= 0 {
		return nil, fmt.Errorf("invalid samples per record %d", spr)
	}
	recordLen := nch * spr
	if len(samples)%recordLen != 0 {
		return nil, fmt.Errorf("%d samples do not divide into records of %d", len(samples), recordLen)
	}

	records := len(samples) / recordLen
	rows := make([][]float64, 0, records*spr)
	for r := 0; r < records; r++ {
		base := r * recordLen
		for s := 0; s < spr; s++ {
			row := make([]float64, nch)
			for c := 0; c < nch; c++ {
				row[c] = samples[base+c*spr+s]
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func isGap(row []float64, sentinel float64) bool {
	for _, v := range row {
		if v != sentinel {
			return false
		}
	}
	return true
}

// dropTrailingGaps removes gap rows at the end of the chunk and turns the
// remaining gap rows into NaN.
func dropTrailingGaps(rows [][]float64, sentinel float64) [][]float64 {
	n := len(rows)
	for n > 0 && isGap(rows[n-1], sentinel) {
		n--
	}
	rows = rows[:n]
	for _, row := range rows {
		if isGap(row, sentinel) {
			for i := range row {
				row[i] = math.NaN()
			}
		}
	}
	return rows
}

// scale maps integer channel samples, from column first on, onto the
// physical signal range.
func scale(rows [][]float64, first int, format sampleFormat, group ChannelGroup) {
	digDiff := math.Abs(format.min) + math.Abs(format.max)
	sigDiff := group.SignalMax - group.SignalMin
	for _, row := range rows {
		for i := first; i < len(row); i++ {
			row[i] = (row[i]-format.min)/digDiff*sigDiff + group.SignalMin
		}
	}
}

// fillRow replaces NaN cells with the nearest value to the left, then to
// the right, then 0.
func fillRow(row []float64) {
	last := math.NaN()
	for i, v := range row {
		if math.IsNaN(v) {
			row[i] = last
		} else {
			last = v
		}
	}
	next := math.NaN()
	for i := len(row) - 1; i >= 0; i-- {
		if math.IsNaN(row[i]) {
			row[i] = next
		} else {
			next = row[i]
		}
	}
	for i, v := range row {
		if math.IsNaN(v) {
			row[i] = 0
		}
	}
}
