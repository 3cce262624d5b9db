package reviews

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const outcomeJSON = `{
	"_id": "o1",
	"Book Name": "Annual Report",
	"Chunk no.": 3,
	"Chunk_ID": "c-3",
	"doc_id": "b1",
	"Page Number": "7",
	"Predicted Label": "Policy",
	"Predicted Label Confidence": 0.82,
	"Text Analyzed": "Some text",
	"overall_status": "done",
	"timestamp": "2024-05-01T10:00:00",
	"FactCheckingReview": {"confidence": 90, "human_review": true, "issue_found": true, "observation": "wrong date", "problematic_text": "1999", "recommendation": "fix", "retries": 0, "status": "ok", "coordinates": [10, 20, 110, 40]},
	"RhetoricToneReview": {"confidence": 40, "human_review": false, "issue_found": false, "observation": "", "problematic_text": "", "recommendation": "", "retries": 1, "status": "ok"},
	"NationalSecurityReview": null
}`

func TestOutcome_UnmarshalJSON(t *testing.T) {
	var o Outcome
	if err := json.Unmarshal([]byte(outcomeJSON), &o); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if o.ID != "o1" || o.BookName != "Annual Report" || o.ChunkNo != 3 || o.PageNumber != 7 {
		t.Errorf("unexpected header fields: %+v", o)
	}
	if o.PredictedLabelConfidence != 0.82 {
		t.Errorf("PredictedLabelConfidence = %v", o.PredictedLabelConfidence)
	}
	if len(o.Reviews) != 2 {
		t.Fatalf("expected 2 reviews (null skipped), got %d", len(o.Reviews))
	}

	want := Review{
		Confidence:      90,
		HumanReview:     true,
		IssueFound:      true,
		Observation:     "wrong date",
		ProblematicText: "1999",
		Recommendation:  "fix",
		Status:          "ok",
		Coordinates:     []float64{10, 20, 110, 40},
		PageNumber:      7,
	}
	if diff := cmp.Diff(want, o.Reviews[FactChecking]); diff != "" {
		t.Errorf("FactChecking review mismatch (-want +got):\n%s", diff)
	}
}

func TestType_TitleAndParse(t *testing.T) {
	if got := RhetoricTone.Title(); got != "Rhetoric & Tone Review" {
		t.Errorf("Title() = %q", got)
	}
	if got := Type("Other").Title(); got != "Other" {
		t.Errorf("unknown Title() = %q", got)
	}

	tests := []struct {
		in   string
		want Type
	}{
		{"FactCheckingReview", FactChecking},
		{"fact-checking", FactChecking},
		{"Rhetoric & Tone Review", RhetoricTone},
		{"national_security", NationalSecurity},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseType(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseType("astrology"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestFilter_Apply(t *testing.T) {
	outcomes := []Outcome{
		{ID: "b", ChunkNo: 2, Reviews: map[Type]Review{
			FactChecking: {Confidence: 95, HumanReview: true},
			RhetoricTone: {Confidence: 30},
		}},
		{ID: "a", ChunkNo: 1, Reviews: map[Type]Review{
			FederalUnity: {Confidence: 70, HumanReview: true},
		}},
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"no filter", Filter{}, []string{"a/FederalUnityReview", "b/FactCheckingReview", "b/RhetoricToneReview"}},
		{"min confidence", Filter{MinConfidence: 60}, []string{"a/FederalUnityReview", "b/FactCheckingReview"}},
		{"human only", Filter{OnlyHumanReview: true}, []string{"a/FederalUnityReview", "b/FactCheckingReview"}},
		{"types", Filter{Types: []Type{RhetoricTone}}, []string{"b/RhetoricToneReview"}},
		{"combined", Filter{MinConfidence: 80, Types: []Type{FederalUnity}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, row := range tt.filter.Apply(outcomes) {
				got = append(got, row.OutcomeID+"/"+string(row.Type))
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCounts(t *testing.T) {
	outcomes := []Outcome{
		{Reviews: map[Type]Review{FactChecking: {IssueFound: true}, RhetoricTone: {}}},
		{Reviews: map[Type]Review{FactChecking: {IssueFound: true}}},
	}
	got := Counts(outcomes)
	if got[FactChecking] != 2 || got[RhetoricTone] != 0 {
		t.Errorf("Counts() = %v", got)
	}
}

func TestUpdate_Empty(t *testing.T) {
	if !(Update{}).Empty() {
		t.Error("zero Update should be empty")
	}
	obs := "x"
	if (Update{Observation: &obs}).Empty() {
		t.Error("Update with observation should not be empty")
	}
}
