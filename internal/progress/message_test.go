package progress

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func intPtr(n int) *int { return &n }

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Message
		wantErr bool
	}{
		{"bare done", "done", Message{Progress: 100, Finished: true}, false},
		{"quoted done", `"done"`, Message{Progress: 100, Finished: true}, false},
		{"progress only", `{"progress": 12.5}`, Message{Progress: 12.5}, false},
		{"with counters", `{"progress": 40, "total": 10, "done": 4}`, Message{Progress: 40, Total: intPtr(10), Done: intPtr(4)}, false},
		{"null counters", `{"progress": 0, "total": null, "done": null}`, Message{}, false},
		{"missing progress", `{"total": 3}`, Message{}, true},
		{"out of range", `{"progress": 140}`, Message{}, true},
		{"fractional total", `{"progress": 5, "total": 1.5}`, Message{}, true},
		{"not json", `hello`, Message{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMessage_Complete(t *testing.T) {
	if (Message{Progress: 99.9}).Complete() {
		t.Error("99.9 should not be complete")
	}
	if !(Message{Progress: 100}).Complete() {
		t.Error("100 should be complete")
	}
	if !(Message{Finished: true}).Complete() {
		t.Error("finished sentinel should be complete")
	}
}

func TestKind_Path(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{Classification, "/ws/progress/b1"},
		{Analysis, "/ws/analysis-progress/b1"},
		{Indexing, "/ws/index-progress/b1"},
	}
	for _, tt := range tests {
		got, err := tt.kind.Path("b1")
		if err != nil || got != tt.want {
			t.Errorf("%s.Path() = %q, %v; want %q", tt.kind, got, err, tt.want)
		}
	}
	if _, err := Kind("ocr").Path("b1"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
