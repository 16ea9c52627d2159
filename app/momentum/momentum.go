package momentum

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/lysyi3m/bbs-comb/app/board"
)

type Compression string

const (
	CompressionLog  Compression = "log"
	CompressionSqrt Compression = "sqrt"
)

type Options struct {
	TargetCountInWindow int
	MinWindowMin        int
	MaxWindowMin        int
	HalfLifeMillis      int64
	Compression         Compression
}

func DefaultOptions() Options {
	return Options{
		TargetCountInWindow: 12,
		MinWindowMin:        3,
		MaxWindowMin:        20,
		HalfLifeMillis:      0,
		Compression:         CompressionLog,
	}
}

// ScoredPost is a post annotated with its corrected timestamp and a
// momentum value in [0,1].
type ScoredPost struct {
	board.Post
	Timestamp time.Time
	Momentum  float64
}

// Calculator converts a thread's ordered post stream into per-post
// momentum scores. All state lives in Options; Run is a pure function of
// its input.
type Calculator struct {
	opts Options
}

func NewCalculator(opts Options) *Calculator {
	if opts.TargetCountInWindow <= 0 {
		opts.TargetCountInWindow = 12
	}
	if opts.MinWindowMin <= 0 {
		opts.MinWindowMin = 3
	}
	if opts.MaxWindowMin < opts.MinWindowMin {
		opts.MaxWindowMin = opts.MinWindowMin
	}
	if opts.Compression == "" {
		opts.Compression = CompressionLog
	}
	return &Calculator{opts: opts}
}

// Run scores the posts in original order. Single-post and zero-span
// threads produce momentum 0 for every post rather than dividing by zero.
func (c *Calculator) Run(posts []board.Post) []ScoredPost {
	if len(posts) == 0 {
		return nil
	}

	timestamps := parseTimestamps(posts)
	repairMonotonic(timestamps)

	scored := make([]ScoredPost, len(posts))
	for i, post := range posts {
		scored[i] = ScoredPost{Post: post, Timestamp: time.UnixMilli(timestamps[i])}
	}

	spanMillis := timestamps[len(timestamps)-1] - timestamps[0]
	if len(posts) < 2 || spanMillis < 1 {
		return scored
	}

	windowMin := c.windowMinutes(len(posts), spanMillis)
	windowMillis := int64(windowMin) * 60_000

	counts := trailingCounts(timestamps, windowMillis)

	series := counts
	if c.opts.HalfLifeMillis > 0 {
		series = smoothEMA(counts, timestamps, c.opts.HalfLifeMillis)
	}

	rates := make([]float64, len(series))
	for i, v := range series {
		rates[i] = v / float64(windowMin)
	}

	qLow := percentile(rates, 0.10)
	qHigh := percentile(rates, 0.95)
	if qHigh < qLow+1e-3 {
		qHigh = qLow + 1e-3
	}

	for i, rate := range rates {
		x := clamp((rate-qLow)/(qHigh-qLow), 0, 1)
		scored[i].Momentum = c.compress(x)
	}

	return scored
}

// windowMinutes sizes the trailing window so the thread's overall average
// rate would place TargetCountInWindow posts inside it, clamped to
// [MinWindowMin, MaxWindowMin].
func (c *Calculator) windowMinutes(n int, spanMillis int64) int {
	avgRatePerMin := float64(n-1) * 60_000 / float64(max64(spanMillis, 1))
	w := float64(c.opts.TargetCountInWindow) / avgRatePerMin
	w = clamp(w, float64(c.opts.MinWindowMin), float64(c.opts.MaxWindowMin))
	return int(math.Round(w))
}

func (c *Calculator) compress(x float64) float64 {
	switch c.opts.Compression {
	case CompressionSqrt:
		return clamp(math.Sqrt(x), 0, 1)
	default:
		return clamp(math.Log(1+3*x)/math.Log(4), 0, 1)
	}
}

// weekday tokens like (金) sit between the date and the time
var weekdayPattern = regexp.MustCompile(`\([^)]*\)`)

// timeLayouts are tried in order of decreasing second precision.
var timeLayouts = []string{
	"2006/01/02 15:04:05.00",
	"2006/01/02 15:04:05.0",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"06/01/02 15:04:05",
	"06/01/02 15:04",
}

// parseTimestamps resolves each post's date string to epoch millis. An
// unparsable date falls back to the previous post's value; leading
// unparsable dates are backfilled from the first parsable one.
func parseTimestamps(posts []board.Post) []int64 {
	timestamps := make([]int64, len(posts))
	parsed := make([]bool, len(posts))

	for i, post := range posts {
		if ts, ok := parsePostTime(post.DateString); ok {
			timestamps[i] = ts
			parsed[i] = true
		} else if i > 0 {
			timestamps[i] = timestamps[i-1]
		}
	}

	// Backfill leading failures so one garbled first line does not stretch
	// the thread span back to the epoch.
	firstParsed := -1
	for i, ok := range parsed {
		if ok {
			firstParsed = i
			break
		}
	}
	if firstParsed > 0 {
		for i := 0; i < firstParsed; i++ {
			timestamps[i] = timestamps[firstParsed]
		}
	}

	return timestamps
}

func parsePostTime(dateString string) (int64, bool) {
	s := weekdayPattern.ReplaceAllString(dateString, " ")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return 0, false
	}

	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.UnixMilli(), true
		}
	}

	return 0, false
}

// repairMonotonic clamps every timestamp to at least one millisecond past
// its predecessor, turning duplicate-second and out-of-order noise into a
// strictly increasing series.
func repairMonotonic(timestamps []int64) {
	for i := 1; i < len(timestamps); i++ {
		if timestamps[i] <= timestamps[i-1] {
			timestamps[i] = timestamps[i-1] + 1
		}
	}
}

// trailingCounts computes, for each post, how many posts fall inside the
// trailing window ending at that post (inclusive). Two-pointer scan, O(n).
func trailingCounts(timestamps []int64, windowMillis int64) []float64 {
	counts := make([]float64, len(timestamps))
	lo := 0
	for i := range timestamps {
		for timestamps[lo] < timestamps[i]-windowMillis {
			lo++
		}
		counts[i] = float64(i - lo + 1)
	}
	return counts
}

// smoothEMA applies a time-weighted exponential moving average with
// alpha = 1 - exp(-dt/tau), tau = halfLife / ln 2.
func smoothEMA(counts []float64, timestamps []int64, halfLifeMillis int64) []float64 {
	tau := float64(halfLifeMillis) / math.Ln2

	smoothed := make([]float64, len(counts))
	smoothed[0] = counts[0]
	for i := 1; i < len(counts); i++ {
		dt := float64(timestamps[i] - timestamps[i-1])
		alpha := 1 - math.Exp(-dt/tau)
		smoothed[i] = smoothed[i-1] + alpha*(counts[i]-smoothed[i-1])
	}
	return smoothed
}

// percentile returns the p-quantile of values using linear interpolation
// between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
