package replay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/andybalholm/brotli"
	"github.com/ulikunitz/xz"
)

// Segment is the decoded representation of a single segment file: a
// tick-indexed payload map plus the bounds of the ticks it contains.
type Segment[T any] struct {
	FirstTick int64
	LastTick  int64
	Data      map[int64]T
}

// PayloadCodec encodes and decodes a Segment to/from a self-describing
// byte stream. Implementations must satisfy decode(encode(s)) == s and
// must not reorder or drop keys.
type PayloadCodec[T any] interface {
	// Name identifies the codec; recorded in header.json so replayers
	// agree without out-of-band configuration.
	Name() string
	Encode(seg Segment[T]) ([]byte, error)
	Decode(data []byte) (Segment[T], error)
}

// wireSegment is the on-disk JSON shape. Tick keys are written as decimal
// strings (JSON object keys must be strings) but the parser tolerates a
// numeric-looking key either way since Go's encoding/json already demands
// string map keys on the way in.
type wireSegment[T any] struct {
	FirstTick int64        `json:"firstTick"`
	LastTick  int64        `json:"lastTick"`
	Data      map[string]T `json:"data"`
}

func toWire[T any](seg Segment[T]) wireSegment[T] {
	w := wireSegment[T]{FirstTick: seg.FirstTick, LastTick: seg.LastTick, Data: make(map[string]T, len(seg.Data))}
	for tick, payload := range seg.Data {
		w.Data[strconv.FormatInt(tick, 10)] = payload
	}
	return w
}

func fromWire[T any](w wireSegment[T]) (Segment[T], error) {
	seg := Segment[T]{FirstTick: w.FirstTick, LastTick: w.LastTick, Data: make(map[int64]T, len(w.Data))}
	for key, payload := range w.Data {
		tick, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return Segment[T]{}, fmt.Errorf("parsing tick key %q: %w", key, err)
		}
		seg.Data[tick] = payload
	}
	return seg, nil
}

// JSONCodec is the default, self-describing codec: plain
// encoding/json over the wire shape. It preserves tick keys exactly and
// never reorders the logical mapping (Go maps have no order to preserve
// in the first place; the wire encoding round-trips by key, not position).
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Name() string { return "json" }

func (JSONCodec[T]) Encode(seg Segment[T]) ([]byte, error) {
	return json.Marshal(toWire(seg))
}

func (JSONCodec[T]) Decode(data []byte) (Segment[T], error) {
	var w wireSegment[T]
	if err := json.Unmarshal(data, &w); err != nil {
		return Segment[T]{}, fmt.Errorf("decoding segment json: %w", err)
	}
	return fromWire(w)
}

// BrotliJSONCodec wraps JSONCodec with brotli compression at a fast
// level, chosen for the live recording flush path where compression cost
// is paid on every segment rollover.
type BrotliJSONCodec[T any] struct {
	// Quality is the brotli compression level (0-11). Zero uses a fast
	// default suited to the flush path.
	Quality int
}

func (BrotliJSONCodec[T]) Name() string { return "brotli+json" }

func (c BrotliJSONCodec[T]) Encode(seg Segment[T]) ([]byte, error) {
	raw, err := (JSONCodec[T]{}).Encode(seg)
	if err != nil {
		return nil, err
	}
	quality := c.Quality
	if quality <= 0 {
		quality = 5
	}
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, quality)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("brotli compressing segment: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing brotli writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (c BrotliJSONCodec[T]) Decode(data []byte) (Segment[T], error) {
	raw, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	if err != nil {
		return Segment[T]{}, fmt.Errorf("brotli decompressing segment: %w", err)
	}
	return (JSONCodec[T]{}).Decode(raw)
}

// XZJSONCodec wraps JSONCodec with xz compression at maximum ratio,
// chosen for the archive command's cold-storage recompression; it is not
// used on the live flush path because its compression cost is
// unsuitable there.
type XZJSONCodec[T any] struct{}

func (XZJSONCodec[T]) Name() string { return "xz+json" }

func (c XZJSONCodec[T]) Encode(seg Segment[T]) ([]byte, error) {
	raw, err := (JSONCodec[T]{}).Encode(seg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("creating xz writer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("xz compressing segment: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing xz writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (c XZJSONCodec[T]) Decode(data []byte) (Segment[T], error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return Segment[T]{}, fmt.Errorf("creating xz reader: %w", err)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return Segment[T]{}, fmt.Errorf("xz decompressing segment: %w", err)
	}
	return (JSONCodec[T]{}).Decode(raw)
}

// CodecByName returns the PayloadCodec implementation named by codec,
// defaulting to BrotliJSONCodec for an empty or unrecognized name.
func CodecByName[T any](name string) PayloadCodec[T] {
	switch name {
	case "json":
		return JSONCodec[T]{}
	case "xz+json":
		return XZJSONCodec[T]{}
	case "brotli+json", "":
		return BrotliJSONCodec[T]{}
	default:
		return BrotliJSONCodec[T]{}
	}
}

// sortedTicks returns the keys of data in ascending order, used where the
// codec or store needs a deterministic iteration order (e.g. computing
// firstTick/lastTick or building ordered range-query output).
func sortedTicks[T any](data map[int64]T) []int64 {
	ticks := make([]int64, 0, len(data))
	for t := range data {
		ticks = append(ticks, t)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	return ticks
}
