// Package verify authenticates uploaded PDFs by their embedded metadata
// fingerprint. This is a gate against wrong-file uploads, not a security
// boundary: the issuing partner stamps title, author and keywords, and a
// match is taken on faith without inspecting page content.
package verify

import (
	"bytes"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/veranda-hq/applyflow/internal/config"
)

// Mode selects how strictly keywords are matched.
type Mode int

const (
	// MatchLoose accepts any expected title, the expected author, and
	// the expected keyword count.
	MatchLoose Mode = iota
	// MatchStrict requires the exact title and the exact keyword list,
	// and releases the embedded subject payload on success.
	MatchStrict
)

// Result is the outcome of verifying one upload.
type Result struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
	// Subject is the document's subject metadata, verbatim, returned
	// only on a strict match.
	Subject string `json:"-"`
}

// invalidMessage is the single user-facing failure text. Malformed
// bytes and mismatched fingerprints deliberately read the same.
const invalidMessage = "This document could not be verified. Please upload the unmodified report you received from the verification provider."

const validMessage = "Document verified."

// metadata is the slice of PDF document information we fingerprint.
type metadata struct {
	title    string
	author   string
	subject  string
	keywords []string
}

// readMetadata parses the document information dictionary without
// rendering any page content.
func readMetadata(fileBytes []byte) (*metadata, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(fileBytes), conf)
	if err != nil {
		return nil, err
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, err
	}

	return &metadata{
		title:    strings.TrimSpace(ctx.Title),
		author:   strings.TrimSpace(ctx.Author),
		subject:  strings.TrimSpace(ctx.Subject),
		keywords: splitKeywords(ctx.Keywords),
	}, nil
}

// splitKeywords normalizes the keyword string: providers delimit with
// commas or semicolons.
func splitKeywords(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Verify checks fileBytes against the expected fingerprint.
func Verify(fileBytes []byte, fp config.FingerprintConfig, mode Mode) Result {
	meta, err := readMetadata(fileBytes)
	if err != nil {
		zap.L().Debug("document metadata unreadable", zap.Error(err))
		return Result{Valid: false, Message: invalidMessage}
	}

	switch mode {
	case MatchStrict:
		if len(fp.Titles) == 0 || meta.title != fp.Titles[0] {
			return Result{Valid: false, Message: invalidMessage}
		}
		if meta.author != fp.Author {
			return Result{Valid: false, Message: invalidMessage}
		}
		if !equalKeywords(meta.keywords, fp.Keywords) {
			return Result{Valid: false, Message: invalidMessage}
		}
		return Result{Valid: true, Message: validMessage, Subject: meta.subject}
	default:
		if !containsTitle(fp.Titles, meta.title) {
			return Result{Valid: false, Message: invalidMessage}
		}
		if meta.author != fp.Author {
			return Result{Valid: false, Message: invalidMessage}
		}
		if len(meta.keywords) != fp.KeywordCount {
			return Result{Valid: false, Message: invalidMessage}
		}
		return Result{Valid: true, Message: validMessage}
	}
}

func containsTitle(titles []string, title string) bool {
	for _, t := range titles {
		if t == title {
			return true
		}
	}
	return false
}

func equalKeywords(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
