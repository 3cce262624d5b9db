// Package books is the client-side coordinator for the document list and
// the backend jobs (indexing, classification, analysis) running on it.
package books

import (
	"encoding/json"
	"io"
)

// Status is the backend's lifecycle state for a book.
type Status string

const (
	StatusPending     Status = "Pending"
	StatusUnprocessed Status = "Unprocessed"
	StatusIndexing    Status = "Indexing"
	StatusProcessing  Status = "Processing"
	StatusClassified  Status = "Classified"
	StatusAnalyzed    Status = "Analyzed"
	StatusProcessed   Status = "Processed"
	StatusAssigned    Status = "Assigned"
)

// Busy reports whether the backend is still working on the book.
func (s Status) Busy() bool {
	return s == StatusIndexing || s == StatusProcessing
}

// Feedback is a reviewer comment left on a book.
type Feedback struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Department string `json:"department"`
	Comment    string `json:"comment,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// Book is a document record as the backend reports it.
type Book struct {
	ID                  string          `json:"_id"`
	DocName             string          `json:"doc_name"`
	Author              string          `json:"author"`
	Date                string          `json:"date,omitempty"`
	Category            string          `json:"category"`
	Reference           string          `json:"reference,omitempty"`
	Summary             string          `json:"summary,omitempty"`
	Status              Status          `json:"status"`
	StartDate           string          `json:"startDate,omitempty"`
	EndDate             string          `json:"endDate,omitempty"`
	Labels              json.RawMessage `json:"labels,omitempty"`
	AssignedDepartments []string        `json:"assigned_departments,omitempty"`
	Feedback            []Feedback      `json:"feedback,omitempty"`
}

// Upload is a new book to create.
type Upload struct {
	FileName  string
	File      io.ReadSeeker
	Size      int64
	DocName   string
	Author    string
	Category  string
	Reference string
	Date      string
	Summary   string
}

// Classification is one chunk's label from the classification pipeline.
type Classification struct {
	ChunkID     string    `json:"chunk_id"`
	ChunkNo     int       `json:"chunk_no,omitempty"`
	Label       string    `json:"label"`
	Confidence  float64   `json:"confidence"`
	PageNumber  int       `json:"page_number,omitempty"`
	Coordinates []float64 `json:"coordinates,omitempty"`
	Text        string    `json:"text,omitempty"`
}

// decodeClassifications accepts either a bare list or {"classifications": [...]}.
func decodeClassifications(raw json.RawMessage) ([]Classification, error) {
	var list []Classification
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Classifications []Classification `json:"classifications"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Classifications, nil
}
