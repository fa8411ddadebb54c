package storage

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RangeKind distinguishes a data-bearing range from a gap the Range
// Planner zero-fills.
type RangeKind int

const (
	// RangeKindZero is a gap between occupied sub-ranges, synthesized by
	// the planner rather than reported by the remote listing.
	RangeKindZero RangeKind = iota
	// RangeKindData is a range the remote listing reported as occupied.
	RangeKindData
)

// Range is a half-open-by-inclusive-end interval of bytes, the planner's
// unit of output.
type Range struct {
	Start int64
	End   int64 // inclusive
	Kind  RangeKind
}

// Length returns the number of bytes the range covers.
func (r Range) Length() int64 { return r.End - r.Start + 1 }

// RemoteRangeLister is the external collaborator the planner pages
// through: it reports the occupied (data) sub-ranges within
// [start, end], inclusive, sorted ascending and non-overlapping, clipped
// to that window.
type RemoteRangeLister interface {
	ListRanges(ctx context.Context, start, end int64) ([]Range, error)
}

type pageResult struct {
	ranges []Range
	end    int64 // inclusive end of the page window fetched, for trailing gap-fill
	err    error
}

// RangePlanner is the lazy sequence generator of spec.md §4.5: given a
// total size, a caller-requested window, and min/max chunk sizes, it pages
// through a RemoteRangeLister and emits a monotonic sequence of Range
// values covering the window exactly, gap-filled and merged/split per the
// invariants in Next's doc comment.
type RangePlanner struct {
	lister                RemoteRangeLister
	smin, smax, pageSize  int64
	windowEnd             int64 // inclusive
	cursor                int64 // next unread remote offset

	mu       sync.Mutex
	pending  []Range
	carry    *Range // unfinalized trailing data run, may still grow by merging
	done     bool
	paused   bool
	resumeCh chan struct{}

	pages  chan pageResult
	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewRangePlanner constructs a planner covering [windowStart, windowEnd]
// clamped to [0, total-1]. windowEnd of -1 means "to the end of the
// resource". pageSize is the fetch-ahead size L: the planner prefetches
// one page of occupied ranges while the caller consumes the previous
// page's emitted ranges.
func NewRangePlanner(ctx context.Context, lister RemoteRangeLister, total, windowStart, windowEnd, smin, smax, pageSize int64) *RangePlanner {
	we := total - 1
	if windowEnd >= 0 && windowEnd < we {
		we = windowEnd
	}
	if windowStart < 0 {
		windowStart = 0
	}

	pctx, cancel := context.WithCancel(ctx)
	p := &RangePlanner{
		lister:    lister,
		smin:      smin,
		smax:      smax,
		pageSize:  pageSize,
		windowEnd: we,
		cursor:    windowStart,
		resumeCh:  make(chan struct{}),
		pages:     make(chan pageResult, 1),
		cancel:    cancel,
	}
	close(p.resumeCh) // not paused initially

	if windowStart > we {
		p.done = true
		close(p.pages)
		return p
	}

	eg, egCtx := errgroup.WithContext(pctx)
	p.group = eg
	eg.Go(func() error {
		defer close(p.pages)
		cursor := windowStart
		for cursor <= we {
			end := cursor + pageSize - 1
			if end > we {
				end = we
			}
			ranges, err := lister.ListRanges(egCtx, cursor, end)
			select {
			case p.pages <- pageResult{ranges: ranges, end: end, err: err}:
			case <-egCtx.Done():
				return egCtx.Err()
			}
			if err != nil {
				return err
			}
			cursor = end + 1
		}
		return nil
	})

	return p
}

// Pause halts future emissions from Next (in-flight page fetches may still
// complete and buffer in the channel).
func (p *RangePlanner) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		p.resumeCh = make(chan struct{})
	}
}

// Resume re-enables emissions. Pausing then resuming yields the same
// emitted sequence as never pausing, since no state is discarded.
func (p *RangePlanner) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		close(p.resumeCh)
	}
}

// Close releases the background page-fetching goroutine.
func (p *RangePlanner) Close() {
	p.cancel()
}

// Next returns the next Range in the monotonic sequence covering the
// planner's window, or ok=false once the sequence is exhausted. No range
// is ever emitted twice; ranges are strictly increasing in Start; the
// union of all emitted ranges is exactly the requested window.
func (p *RangePlanner) Next(ctx context.Context) (Range, bool, error) {
	for {
		p.mu.Lock()
		resumeCh := p.resumeCh
		paused := p.paused
		if !paused && len(p.pending) > 0 {
			r := p.pending[0]
			p.pending = p.pending[1:]
			p.mu.Unlock()
			return r, true, nil
		}
		if !paused && p.done {
			p.mu.Unlock()
			return Range{}, false, nil
		}
		p.mu.Unlock()

		if paused {
			select {
			case <-resumeCh:
				continue
			case <-ctx.Done():
				return Range{}, false, ctx.Err()
			}
		}

		select {
		case res, ok := <-p.pages:
			if !ok {
				if err := p.group.Wait(); err != nil {
					return Range{}, false, err
				}
				p.mu.Lock()
				if p.carry != nil {
					p.pending = append(p.pending, splitLarge([]Range{*p.carry}, p.smax)...)
					p.carry = nil
				}
				p.done = true
				p.mu.Unlock()
				continue
			}
			if res.err != nil {
				return Range{}, false, res.err
			}
			p.ingestPage(res.ranges, res.end)
		case <-ctx.Done():
			return Range{}, false, ctx.Err()
		}
	}
}

// ingestPage turns one page's occupied ranges into gap-filled, merged,
// split segments, carrying forward a trailing run that might still merge
// with the next page's leading occupied range. pageEnd is the inclusive end
// of the window this page's ListRanges call covered: gapFill uses it to
// zero-fill the remainder of the page past the last occupied sub-range (or
// the whole page, when it reported no occupied ranges at all), so a page
// with sparse or no data never silently drops bytes from the emitted
// sequence.
func (p *RangePlanner) ingestPage(occupied []Range, pageEnd int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	segments := gapFill(p.cursor, pageEnd, occupied)
	if len(segments) == 0 {
		return
	}
	if p.carry != nil {
		segments = append([]Range{*p.carry}, segments...)
		p.carry = nil
	}

	merged := growSmallData(segments, p.smin, p.smax)

	// Hold the last segment back: it might still merge with the next
	// page's leading range. It is flushed by the caller once the page
	// channel closes or a following page doesn't extend it.
	last := merged[len(merged)-1]
	p.carry = &last
	toEmit := merged[:len(merged)-1]

	p.cursor = last.End + 1

	p.pending = append(p.pending, splitLarge(toEmit, p.smax)...)
}

// gapFill synthesizes RangeKindZero segments for the space between cursor
// and the next occupied range, between occupied ranges, and — critically —
// between the last occupied range (or cursor, if there is none) and end,
// interleaved with the occupied ranges themselves. Without that trailing
// fill, a page whose remote listing reports no occupied ranges (or none
// near the page's tail) would silently vanish from the emitted sequence
// instead of surfacing as zero-fill.
func gapFill(cursor, end int64, occupied []Range) []Range {
	if cursor > end {
		return nil
	}
	var segments []Range
	pos := cursor
	for _, o := range occupied {
		if o.Start > pos {
			segments = append(segments, Range{Start: pos, End: o.Start - 1, Kind: RangeKindZero})
		}
		segments = append(segments, Range{Start: o.Start, End: o.End, Kind: RangeKindData})
		pos = o.End + 1
	}
	if pos <= end {
		segments = append(segments, Range{Start: pos, End: end, Kind: RangeKindZero})
	}
	return segments
}

// growSmallData implements spec.md §4.5 step 2: a RangeKindData segment
// shorter than smin is not worth a separate request, so it absorbs
// following bytes — whether they belong to a zero-fill gap or to the next
// occupied sub-range — relabeling the absorbed span as data, until it
// reaches smax or there is nothing left in segments to absorb. This is a
// superset of "merge two adjacent below-smin data runs": that case falls
// out automatically, since the first run's absorption simply consumes the
// second run's bytes directly when there's no gap between them.
//
// Per the §8 invariant, only the final range of the whole window may end
// up shorter than smin; every other emitted data range either started at
// smin or grew to meet it. A segment that runs out of following segments
// before reaching smax (because it's the window's last page) is left
// short — ingestPage holds it as the trailing carry rather than emitting
// it, so it still has a chance to keep growing against the next page.
func growSmallData(segments []Range, smin, smax int64) []Range {
	if len(segments) == 0 {
		return segments
	}
	out := make([]Range, 0, len(segments))
	i := 0
	for i < len(segments) {
		seg := segments[i]
		if seg.Kind != RangeKindData || seg.Length() >= smin {
			out = append(out, seg)
			i++
			continue
		}

		cur := seg
		j := i + 1
		for cur.Length() < smax && j < len(segments) {
			next := segments[j]
			need := smax - cur.Length()
			if next.Length() <= need {
				cur = Range{Start: cur.Start, End: next.End, Kind: RangeKindData}
				j++
				continue
			}
			consumedEnd := next.Start + need - 1
			cur = Range{Start: cur.Start, End: consumedEnd, Kind: RangeKindData}
			segments[j] = Range{Start: consumedEnd + 1, End: next.End, Kind: next.Kind}
			break
		}
		out = append(out, cur)
		i = j
	}
	return out
}

// splitLarge breaks any segment whose length exceeds smax into
// Smax-sized chunks (the final chunk may be shorter), per spec.md §4.5
// step 3. Applies uniformly to zero and data segments.
func splitLarge(segments []Range, smax int64) []Range {
	if smax <= 0 {
		return segments
	}
	out := make([]Range, 0, len(segments))
	for _, s := range segments {
		if s.Length() <= smax {
			out = append(out, s)
			continue
		}
		for start := s.Start; start <= s.End; start += smax {
			end := start + smax - 1
			if end > s.End {
				end = s.End
			}
			out = append(out, Range{Start: start, End: end, Kind: s.Kind})
		}
	}
	return out
}
