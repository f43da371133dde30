// Package severity turns per-severity finding counts into the proportional
// arc segments used by the dashboard's ring chart.
package severity

import (
	"math"
	"strconv"
	"strings"
)

type Level string

const (
	Critical Level = "CRITICAL"
	High     Level = "HIGH"
	Medium   Level = "MEDIUM"
	Low      Level = "LOW"
)

// Order is the stacking order of the chart. Segments are always emitted in
// this order.
var Order = []Level{Critical, High, Medium, Low}

// DefaultRadius is the radius of the dashboard ring, in SVG user units.
const DefaultRadius = 80.0

// Circumference returns the length of a circle of the given radius.
func Circumference(radius float64) float64 {
	return 2 * math.Pi * radius
}

// Normalize maps a raw severity label onto a Level. Unknown labels count as
// Low, matching how the backend buckets them.
func Normalize(raw string) Level {
	switch lvl := Level(strings.ToUpper(strings.TrimSpace(raw))); lvl {
	case Critical, High, Medium, Low:
		return lvl
	default:
		return Low
	}
}

// Segment is one arc of the ring.
type Segment struct {
	Severity Level   `json:"severity"`
	Count    int     `json:"count"`
	Offset   float64 `json:"start_offset"`
	Length   float64 `json:"length"`
}

// DashArray renders the segment as an SVG stroke-dasharray value.
func (s Segment) DashArray(circumference float64) string {
	return formatFloat(s.Length) + " " + formatFloat(circumference)
}

// DashOffset is the stroke-dashoffset that starts the arc after the previous
// segments.
func (s Segment) DashOffset() float64 {
	return -s.Offset
}

// Segments splits circumference between the severity buckets in proportion
// to their counts. Empty buckets produce no segment and do not advance the
// offset. A zero total yields no segments at all.
func Segments(stats map[string]int, total int, circumference float64) []Segment {
	if total <= 0 {
		return []Segment{}
	}

	segments := make([]Segment, 0, len(Order))
	offset := 0.0
	for _, lvl := range Order {
		count := stats[string(lvl)]
		if count <= 0 {
			continue
		}
		length := float64(count) / float64(total) * circumference
		segments = append(segments, Segment{
			Severity: lvl,
			Count:    count,
			Offset:   offset,
			Length:   length,
		})
		offset += length
	}
	return segments
}

// Count is a legend row.
type Count struct {
	Severity Level `json:"severity"`
	Count    int   `json:"count"`
}

// Counts returns one legend row per level in chart order, defaulting
// missing buckets to zero.
func Counts(stats map[string]int) []Count {
	rows := make([]Count, len(Order))
	for i, lvl := range Order {
		rows[i] = Count{Severity: lvl, Count: stats[string(lvl)]}
	}
	return rows
}

// Tally counts raw severity labels into buckets.
func Tally(labels []string) map[string]int {
	stats := make(map[string]int, len(Order))
	for _, lvl := range Order {
		stats[string(lvl)] = 0
	}
	for _, label := range labels {
		stats[string(Normalize(label))]++
	}
	return stats
}

// Chart bundles everything a renderer needs for the ring and its legend.
type Chart struct {
	Total         int       `json:"total"`
	Radius        float64   `json:"radius"`
	Circumference float64   `json:"circumference"`
	Segments      []Segment `json:"segments"`
	Legend        []Count   `json:"legend"`
}

// Build computes the chart for the given counts at the given radius.
// A non-positive radius falls back to DefaultRadius.
func Build(stats map[string]int, total int, radius float64) Chart {
	if radius <= 0 {
		radius = DefaultRadius
	}
	circ := Circumference(radius)
	return Chart{
		Total:         total,
		Radius:        radius,
		Circumference: circ,
		Segments:      Segments(stats, total, circ),
		Legend:        Counts(stats),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
