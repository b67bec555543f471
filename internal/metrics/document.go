package metrics

import (
	"encoding/json"
	"fmt"
	"time"
)

// SeriesDocument is the durable form of one series inside a Document.
type SeriesDocument struct {
	Type        Kind    `json:"type"`
	Description string  `json:"description"`
	Points      []Point `json:"points"`
}

// Document is the durable, tool-scoped serialization of a ToolMetrics
// record: one JSON object per tool, keyed by series name.
type Document struct {
	ToolName    string                    `json:"toolName"`
	LastUpdated time.Time                 `json:"lastUpdated"`
	Metrics     map[string]SeriesDocument `json:"metrics"`
}

// Document converts the in-memory record to its durable form. The
// returned document holds copies of the point slices, so encoding it is
// safe after the per-tool lock is released.
func (tm *ToolMetrics) Document() *Document {
	doc := &Document{
		ToolName:    tm.ToolName,
		LastUpdated: tm.LastUpdated,
		Metrics:     make(map[string]SeriesDocument, len(tm.Series)),
	}
	for _, s := range tm.Series {
		points := make([]Point, len(s.Points))
		copy(points, s.Points)
		doc.Metrics[s.Name] = SeriesDocument{
			Type:        s.Kind,
			Description: s.Description,
			Points:      points,
		}
	}
	return doc
}

// Encode renders the document as indented JSON.
func (d *Document) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode metrics document for %s: %w", d.ToolName, err)
	}
	return data, nil
}

// DecodeDocument parses a durable metrics document.
func DecodeDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode metrics document: %w", err)
	}
	if doc.Metrics == nil {
		doc.Metrics = map[string]SeriesDocument{}
	}
	return &doc, nil
}

// Merge folds the points of in into d, series by series. Points already
// present in d (same timestamp and value) are kept once, so merging is
// idempotent. Existing points stay first; this preserves chronology
// because new points are always newer than previously persisted ones.
func (d *Document) Merge(in *Document) {
	if in == nil {
		return
	}
	if in.LastUpdated.After(d.LastUpdated) {
		d.LastUpdated = in.LastUpdated
	}
	if d.Metrics == nil {
		d.Metrics = make(map[string]SeriesDocument, len(in.Metrics))
	}
	for name, incoming := range in.Metrics {
		existing, ok := d.Metrics[name]
		if !ok {
			d.Metrics[name] = incoming
			continue
		}
		seen := make(map[string]struct{}, len(existing.Points))
		for _, p := range existing.Points {
			seen[pointKey(p)] = struct{}{}
		}
		for _, p := range incoming.Points {
			if _, dup := seen[pointKey(p)]; dup {
				continue
			}
			seen[pointKey(p)] = struct{}{}
			existing.Points = append(existing.Points, p)
		}
		existing.Type = incoming.Type
		existing.Description = incoming.Description
		d.Metrics[name] = existing
	}
}

// Prune drops every point not newer than cutoff and returns how many
// points were removed.
func (d *Document) Prune(cutoff time.Time) int {
	dropped := 0
	for name, sd := range d.Metrics {
		kept := sd.Points[:0]
		for _, p := range sd.Points {
			if p.Timestamp.After(cutoff) {
				kept = append(kept, p)
			} else {
				dropped++
			}
		}
		sd.Points = kept
		d.Metrics[name] = sd
	}
	return dropped
}

// PointCount returns the total number of points across all series.
func (d *Document) PointCount() int {
	n := 0
	for _, sd := range d.Metrics {
		n += len(sd.Points)
	}
	return n
}

func pointKey(p Point) string {
	return fmt.Sprintf("%d|%g", p.Timestamp.UnixNano(), p.Value)
}
