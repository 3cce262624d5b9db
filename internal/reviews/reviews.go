// Package reviews models backend review outcomes: one record per analysed
// chunk carrying a verdict from each review agent.
package reviews

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Type names a review agent. The value is the outcome's JSON key.
type Type string

const (
	FactChecking           Type = "FactCheckingReview"
	FederalUnity           Type = "FederalUnityReview"
	ForeignRelations       Type = "ForeignRelationsReview"
	HistoricalNarrative    Type = "HistoricalNarrativeReview"
	InstitutionalIntegrity Type = "InstitutionalIntegrityReview"
	NationalSecurity       Type = "NationalSecurityReview"
	RhetoricTone           Type = "RhetoricToneReview"
)

// Types lists every review type in display order.
var Types = []Type{
	FactChecking,
	FederalUnity,
	ForeignRelations,
	HistoricalNarrative,
	InstitutionalIntegrity,
	NationalSecurity,
	RhetoricTone,
}

var titles = map[Type]string{
	FactChecking:           "Fact Checking Review",
	FederalUnity:           "Federal Unity Review",
	ForeignRelations:       "Foreign Relations Review",
	HistoricalNarrative:    "Historical Narrative Review",
	InstitutionalIntegrity: "Institutional Integrity Review",
	NationalSecurity:       "National Security Review",
	RhetoricTone:           "Rhetoric & Tone Review",
}

// Title returns the display title, or the raw type for unknown values.
func (t Type) Title() string {
	if title, ok := titles[t]; ok {
		return title
	}
	return string(t)
}

// Valid reports whether t is a known review type.
func (t Type) Valid() bool {
	_, ok := titles[t]
	return ok
}

// ParseType accepts the JSON key ("FactCheckingReview"), a short name
// ("fact-checking", "factchecking") or the display title.
func ParseType(s string) (Type, error) {
	norm := normalize(s)
	for _, t := range Types {
		if norm == normalize(string(t)) ||
			norm == normalize(strings.TrimSuffix(string(t), "Review")) ||
			norm == normalize(t.Title()) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown review type %q", s)
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Review is one agent's verdict on a chunk.
type Review struct {
	Confidence      float64   `json:"confidence"`
	HumanReview     bool      `json:"human_review"`
	IssueFound      bool      `json:"issue_found"`
	Observation     string    `json:"observation"`
	ProblematicText string    `json:"problematic_text"`
	Recommendation  string    `json:"recommendation"`
	Retries         int       `json:"retries"`
	Status          string    `json:"status"`
	Coordinates     []float64 `json:"coordinates,omitempty"`
	PageNumber      int       `json:"page_number,omitempty"`
}

// Outcome is the review record for one analysed chunk.
type Outcome struct {
	ID                       string          `json:"_id"`
	BookName                 string          `json:"Book Name"`
	ChunkNo                  int             `json:"Chunk no."`
	ChunkID                  string          `json:"Chunk_ID"`
	DocID                    string          `json:"doc_id"`
	PageNumber               int             `json:"Page Number"`
	PredictedLabel           string          `json:"Predicted Label"`
	PredictedLabelConfidence float64         `json:"Predicted Label Confidence"`
	TextAnalyzed             string          `json:"Text Analyzed"`
	OverallStatus            string          `json:"overall_status"`
	Timestamp                string          `json:"timestamp"`
	Reviews                  map[Type]Review `json:"-"`
}

// UnmarshalJSON decodes the flat backend record, collecting one Review per
// known review-type key. Page numbers arrive as strings or numbers.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	str := func(key string) string {
		var s string
		if v, ok := raw[key]; ok {
			if json.Unmarshal(v, &s) != nil {
				s = strings.Trim(string(v), `"`)
			}
		}
		return s
	}
	num := func(key string) float64 {
		v, ok := raw[key]
		if !ok {
			return 0
		}
		var f float64
		if json.Unmarshal(v, &f) == nil {
			return f
		}
		f, _ = strconv.ParseFloat(str(key), 64)
		return f
	}

	*o = Outcome{
		ID:                       str("_id"),
		BookName:                 str("Book Name"),
		ChunkNo:                  int(num("Chunk no.")),
		ChunkID:                  str("Chunk_ID"),
		DocID:                    str("doc_id"),
		PageNumber:               int(num("Page Number")),
		PredictedLabel:           str("Predicted Label"),
		PredictedLabelConfidence: num("Predicted Label Confidence"),
		TextAnalyzed:             str("Text Analyzed"),
		OverallStatus:            str("overall_status"),
		Timestamp:                str("timestamp"),
		Reviews:                  make(map[Type]Review),
	}

	for _, t := range Types {
		v, ok := raw[string(t)]
		if !ok || string(v) == "null" {
			continue
		}
		var r Review
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("failed to decode %s: %w", t, err)
		}
		if r.PageNumber == 0 {
			r.PageNumber = o.PageNumber
		}
		o.Reviews[t] = r
	}
	return nil
}

// MarshalJSON writes the flat backend shape back out.
func (o Outcome) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"_id":                        o.ID,
		"Book Name":                  o.BookName,
		"Chunk no.":                  o.ChunkNo,
		"Chunk_ID":                   o.ChunkID,
		"doc_id":                     o.DocID,
		"Page Number":                strconv.Itoa(o.PageNumber),
		"Predicted Label":            o.PredictedLabel,
		"Predicted Label Confidence": o.PredictedLabelConfidence,
		"Text Analyzed":              o.TextAnalyzed,
		"overall_status":             o.OverallStatus,
		"timestamp":                  o.Timestamp,
	}
	for t, r := range o.Reviews {
		out[string(t)] = r
	}
	return json.Marshal(out)
}

// Update carries the user-editable fields of a review.
type Update struct {
	Observation    *string `json:"observation,omitempty"`
	Recommendation *string `json:"recommendation,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Observation == nil && u.Recommendation == nil
}

// Filter narrows outcomes to the reviews a reader cares about.
type Filter struct {
	// MinConfidence drops reviews below this confidence (0 keeps all).
	MinConfidence float64
	// OnlyHumanReview keeps only reviews flagged for a human.
	OnlyHumanReview bool
	// Types keeps only these review types (empty keeps all).
	Types []Type
}

// Row is one review flattened out of its outcome.
type Row struct {
	OutcomeID  string  `json:"outcome_id"`
	ChunkNo    int     `json:"chunk_no"`
	PageNumber int     `json:"page_number"`
	Type       Type    `json:"type"`
	Title      string  `json:"title"`
	Review     Review  `json:"review"`
	Label      string  `json:"predicted_label"`
	LabelConf  float64 `json:"predicted_label_confidence"`
}

// Match reports whether a single review passes the filter.
func (f Filter) Match(t Type, r Review) bool {
	if r.Confidence < f.MinConfidence {
		return false
	}
	if f.OnlyHumanReview && !r.HumanReview {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, want := range f.Types {
			if want == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Apply flattens outcomes into rows that pass the filter, ordered by chunk
// number then review type display order.
func (f Filter) Apply(outcomes []Outcome) []Row {
	var rows []Row
	for _, o := range outcomes {
		for _, t := range Types {
			r, ok := o.Reviews[t]
			if !ok || !f.Match(t, r) {
				continue
			}
			rows = append(rows, Row{
				OutcomeID:  o.ID,
				ChunkNo:    o.ChunkNo,
				PageNumber: r.PageNumber,
				Type:       t,
				Title:      t.Title(),
				Review:     r,
				Label:      o.PredictedLabel,
				LabelConf:  o.PredictedLabelConfidence,
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ChunkNo < rows[j].ChunkNo })
	return rows
}

// Counts returns how many reviews of each type flagged an issue.
func Counts(outcomes []Outcome) map[Type]int {
	counts := make(map[Type]int)
	for _, o := range outcomes {
		for t, r := range o.Reviews {
			if r.IssueFound {
				counts[t]++
			}
		}
	}
	return counts
}
