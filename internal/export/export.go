// Package export produces the per-cycle planning document: filter
// statistics, the ranked candidates with their visibility analyses, and
// the observer the plan was computed for. The document round-trips
// losslessly through JSON.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/signalsfoundry/leo-serving-planner/internal/config"
	"github.com/signalsfoundry/leo-serving-planner/internal/pipeline"
	"github.com/signalsfoundry/leo-serving-planner/model"
)

// Method tags documents produced by the six-stage admission pipeline.
const Method = "six_stage_pipeline"

// Candidate pairs a score record with its constellation tag. The tag is
// carried explicitly so decoding restores the enum the score record does
// not serialize itself.
type Candidate struct {
	Constellation string               `json:"constellation"`
	Score         model.SatelliteScore `json:"score"`
}

// Document is one cycle's export.
type Document struct {
	GeneratedAt time.Time                 `json:"generated_at"`
	Method      string                    `json:"method"`
	Observer    config.Observer           `json:"observer"`
	Statistics  pipeline.FilterStatistics `json:"filter_statistics"`
	Candidates  []Candidate               `json:"candidates"`
}

// NewDocument assembles the export for one completed pipeline run.
func NewDocument(observer config.Observer, result *pipeline.Result, at time.Time) Document {
	doc := Document{
		GeneratedAt: at.UTC(),
		Method:      Method,
		Observer:    observer,
		Statistics:  result.Stats,
		Candidates:  make([]Candidate, 0, len(result.Candidates)),
	}
	for _, score := range result.Candidates {
		doc.Candidates = append(doc.Candidates, Candidate{
			Constellation: score.Constellation.String(),
			Score:         score,
		})
	}
	return doc
}

// Encode writes the document as indented JSON.
func Encode(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	return nil
}

// Decode reads a document and restores the constellation enums the score
// records dropped on the way out.
func Decode(r io.Reader) (Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("export: decode: %w", err)
	}
	for i := range doc.Candidates {
		doc.Candidates[i].Score.Constellation = model.ParseConstellation(doc.Candidates[i].Constellation)
	}
	return doc, nil
}
