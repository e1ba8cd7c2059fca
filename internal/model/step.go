package model

import "encoding/json"

// StepKind identifies what a completed wizard step produced.
type StepKind string

const (
	// StepKindFile marks a step whose artifact is an uploaded document,
	// stored in the blob tier and referenced by FileKey.
	StepKindFile StepKind = "file"
	// StepKindForm marks a step whose artifact is structured form data.
	StepKindForm StepKind = "form"
	// StepKindSkip marks a step the applicant explicitly skipped.
	StepKindSkip StepKind = "skip"
)

// StepOutput is the artifact produced by completing one wizard step.
// A step sequence is sparse: a missing entry means the step is not done.
type StepOutput struct {
	Step        int             `json:"step"`
	Kind        StepKind        `json:"kind"`
	FileKey     string          `json:"file_key,omitempty"`
	FileName    string          `json:"file_name,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	Size        int64           `json:"size,omitempty"`
	Form        json.RawMessage `json:"form,omitempty"`
	// Subject carries the identity payload extracted from a verified
	// document's metadata, verbatim. Empty for form and skip steps.
	Subject string `json:"subject,omitempty"`
}

// Empty reports whether the output counts as "not completed" for
// wizard gating purposes.
func (s *StepOutput) Empty() bool {
	return s == nil || s.Kind == ""
}

// DocumentSubject is the JSON payload embedded in the Subject metadata
// field of partner-issued verification reports.
type DocumentSubject struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ParseDocumentSubject decodes a Subject payload. It returns false when
// the payload is empty or not the expected JSON shape.
func ParseDocumentSubject(subject string) (DocumentSubject, bool) {
	if subject == "" {
		return DocumentSubject{}, false
	}
	var ds DocumentSubject
	if err := json.Unmarshal([]byte(subject), &ds); err != nil {
		return DocumentSubject{}, false
	}
	if ds.Name == "" && ds.Email == "" {
		return DocumentSubject{}, false
	}
	return ds, true
}
