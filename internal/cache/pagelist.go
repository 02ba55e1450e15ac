package cache

import (
	"bufio"
	"fmt"
	"io"
	"sort"
)

// PageRange is a single run in a PageList: a half-open byte range
// [Offset, Offset+Length) tagged with whether it is currently present
// in the local cache file.
type PageRange struct {
	Offset int64
	Length int64
	Loaded bool
}

// End returns the exclusive end offset of the range.
func (p PageRange) End() int64 {
	return p.Offset + p.Length
}

// PageList is an ordered, disjoint run-length index over [0, size) of
// an object's byte range, split into Loaded and unloaded segments. It
// is always kept compressed: no two adjacent ranges share the same
// Loaded value.
//
// PageList is not safe for concurrent use; callers (CacheEntity) serialize
// access with their own lock.
type PageList struct {
	ranges []PageRange
}

// NewPageList returns an empty PageList covering a zero-length object.
func NewPageList() *PageList {
	return &PageList{}
}

// Init replaces the contents with a single range covering [0, size)
// tagged with the given loaded state.
func (pl *PageList) Init(size int64, loaded bool) {
	pl.ranges = nil
	if size > 0 {
		pl.ranges = []PageRange{{Offset: 0, Length: size, Loaded: loaded}}
	}
}

// Size returns the end offset of the last range, i.e. the logical size
// of the object this PageList describes.
func (pl *PageList) Size() int64 {
	if len(pl.ranges) == 0 {
		return 0
	}
	return pl.ranges[len(pl.ranges)-1].End()
}

// Resize grows or shrinks the list to newSize. Growing appends a tail
// range tagged loadedForTail; shrinking drops ranges past newSize and
// truncates the range spanning it.
func (pl *PageList) Resize(newSize int64, loadedForTail bool) {
	cur := pl.Size()
	switch {
	case newSize == cur:
		return
	case newSize > cur:
		if newSize-cur > 0 {
			pl.ranges = append(pl.ranges, PageRange{Offset: cur, Length: newSize - cur, Loaded: loadedForTail})
		}
	default:
		out := pl.ranges[:0:0]
		for _, r := range pl.ranges {
			if r.Offset >= newSize {
				break
			}
			if r.End() > newSize {
				r.Length = newSize - r.Offset
			}
			out = append(out, r)
		}
		pl.ranges = out
	}
	pl.compress()
}

// splitAt ensures a range boundary exists at offset (a no-op if one
// already does, or if offset is outside [0, size)).
func (pl *PageList) splitAt(offset int64) {
	if offset <= 0 || offset >= pl.Size() {
		return
	}
	for i, r := range pl.ranges {
		if r.Offset == offset {
			return
		}
		if r.Offset < offset && offset < r.End() {
			left := PageRange{Offset: r.Offset, Length: offset - r.Offset, Loaded: r.Loaded}
			right := PageRange{Offset: offset, Length: r.End() - offset, Loaded: r.Loaded}
			pl.ranges = append(pl.ranges[:i], append([]PageRange{left, right}, pl.ranges[i+1:]...)...)
			return
		}
	}
}

// SetPageLoadedStatus marks [offset, offset+length) as loaded or not,
// extending the list first if the window exceeds the current size (the
// new prefix gap is marked unloaded, the new segment takes loaded).
func (pl *PageList) SetPageLoadedStatus(offset, length int64, loaded bool) {
	if length <= 0 {
		return
	}
	end := offset + length
	if end > pl.Size() {
		gapStart := pl.Size()
		if offset > gapStart {
			pl.ranges = append(pl.ranges, PageRange{Offset: gapStart, Length: offset - gapStart, Loaded: false})
			gapStart = offset
		}
		pl.ranges = append(pl.ranges, PageRange{Offset: gapStart, Length: end - gapStart, Loaded: loaded})
		pl.compress()
	}

	pl.splitAt(offset)
	pl.splitAt(end)

	for i := range pl.ranges {
		if pl.ranges[i].Offset >= offset && pl.ranges[i].End() <= end {
			pl.ranges[i].Loaded = loaded
		}
	}
	pl.compress()
}

// compress merges adjacent ranges sharing the same Loaded value.
func (pl *PageList) compress() {
	if len(pl.ranges) < 2 {
		return
	}
	sort.Slice(pl.ranges, func(i, j int) bool { return pl.ranges[i].Offset < pl.ranges[j].Offset })
	out := pl.ranges[:1]
	for _, r := range pl.ranges[1:] {
		last := &out[len(out)-1]
		if last.Loaded == r.Loaded && last.End() == r.Offset {
			last.Length += r.Length
			continue
		}
		out = append(out, r)
	}
	pl.ranges = out
}

// clip intersects [offset, offset+length) with [0, size).
func (pl *PageList) clip(offset, length int64) (int64, int64) {
	end := offset + length
	if offset < 0 {
		offset = 0
	}
	if size := pl.Size(); end > size {
		end = size
	}
	if end < offset {
		end = offset
	}
	return offset, end
}

// GetTotalUnloaded returns the number of unloaded bytes intersecting
// [offset, offset+length).
func (pl *PageList) GetTotalUnloaded(offset, length int64) int64 {
	start, end := pl.clip(offset, length)
	var total int64
	for _, r := range pl.ranges {
		if r.Loaded || r.End() <= start || r.Offset >= end {
			continue
		}
		lo, hi := r.Offset, r.End()
		if lo < start {
			lo = start
		}
		if hi > end {
			hi = end
		}
		total += hi - lo
	}
	return total
}

// GetUnloadedPages returns the coalesced unloaded sub-ranges within
// [offset, offset+length), clipped to the window. Output ranges are
// merged when one ends where the next begins.
func (pl *PageList) GetUnloadedPages(offset, length int64) []PageRange {
	start, end := pl.clip(offset, length)
	var out []PageRange
	for _, r := range pl.ranges {
		if r.Loaded || r.End() <= start || r.Offset >= end {
			continue
		}
		lo, hi := r.Offset, r.End()
		if lo < start {
			lo = start
		}
		if hi > end {
			hi = end
		}
		if n := len(out); n > 0 && out[n-1].End() == lo {
			out[n-1].Length += hi - lo
			continue
		}
		out = append(out, PageRange{Offset: lo, Length: hi - lo, Loaded: false})
	}
	return out
}

// IsPageLoaded reports whether every byte in [offset, offset+length) is
// loaded.
func (pl *PageList) IsPageLoaded(offset, length int64) bool {
	return pl.GetTotalUnloaded(offset, length) == 0
}

// Ranges returns a copy of the underlying run list, for inspection and
// tests.
func (pl *PageList) Ranges() []PageRange {
	out := make([]PageRange, len(pl.ranges))
	copy(out, pl.ranges)
	return out
}

// Serialize writes "<size>\n<off>:<len>:<0|1>\n..." starting at the
// current position of w.
func (pl *PageList) Serialize(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%d\n", pl.Size()); err != nil {
		return err
	}
	for _, r := range pl.ranges {
		loaded := 0
		if r.Loaded {
			loaded = 1
		}
		if _, err := fmt.Fprintf(bw, "%d:%d:%d\n", r.Offset, r.Length, loaded); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Deserialize parses the format written by Serialize, rebuilding the
// range list. It fails if the accumulated range lengths do not equal
// the declared size.
func (pl *PageList) Deserialize(r io.Reader) error {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return err
		}
		return fmt.Errorf("pagelist: empty stream")
	}
	var size int64
	if _, err := fmt.Sscanf(sc.Text(), "%d", &size); err != nil {
		return fmt.Errorf("pagelist: invalid size header %q: %w", sc.Text(), err)
	}

	var ranges []PageRange
	var total int64
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		var off, length int64
		var loaded int
		if _, err := fmt.Sscanf(line, "%d:%d:%d", &off, &length, &loaded); err != nil {
			return fmt.Errorf("pagelist: invalid range line %q: %w", line, err)
		}
		ranges = append(ranges, PageRange{Offset: off, Length: length, Loaded: loaded != 0})
		total += length
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if total != size {
		return fmt.Errorf("pagelist: parsed total %d does not match declared size %d", total, size)
	}
	pl.ranges = ranges
	pl.compress()
	return nil
}
