package verify

import (
	"bytes"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranda-hq/applyflow/internal/config"
)

// stampedPDF builds a one-page PDF carrying the given metadata, the way
// partner-issued verification reports are stamped.
func stampedPDF(t *testing.T, title, author, subject, keywords string) []byte {
	t.Helper()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor(author, true)
	pdf.SetSubject(subject, true)
	pdf.SetKeywords(keywords, true)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(40, 10, "report body")

	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

var identityFP = config.FingerprintConfig{
	Titles:       []string{"Identity Verification Report", "ID Verification Report"},
	Author:       "TrustLayer Verification",
	KeywordCount: 3,
}

var completeFP = config.FingerprintConfig{
	Titles:   []string{"Complete Verification Report"},
	Author:   "TrustLayer Verification",
	Keywords: []string{"identity", "credit", "complete"},
}

func TestVerify_LooseMatch(t *testing.T) {
	t.Parallel()

	t.Run("exact fingerprint passes", func(t *testing.T) {
		t.Parallel()
		b := stampedPDF(t, "Identity Verification Report", "TrustLayer Verification", "", "a, b, c")
		res := Verify(b, identityFP, MatchLoose)
		assert.True(t, res.Valid, res.Message)
	})

	t.Run("alternate title passes", func(t *testing.T) {
		t.Parallel()
		b := stampedPDF(t, "ID Verification Report", "TrustLayer Verification", "", "x; y; z")
		res := Verify(b, identityFP, MatchLoose)
		assert.True(t, res.Valid)
	})

	t.Run("wrong title fails", func(t *testing.T) {
		t.Parallel()
		b := stampedPDF(t, "Some Other Report", "TrustLayer Verification", "", "a, b, c")
		res := Verify(b, identityFP, MatchLoose)
		assert.False(t, res.Valid)
		assert.NotEmpty(t, res.Message)
	})

	t.Run("wrong author fails", func(t *testing.T) {
		t.Parallel()
		b := stampedPDF(t, "Identity Verification Report", "Forger Inc", "", "a, b, c")
		assert.False(t, Verify(b, identityFP, MatchLoose).Valid)
	})

	t.Run("wrong keyword count fails", func(t *testing.T) {
		t.Parallel()
		b := stampedPDF(t, "Identity Verification Report", "TrustLayer Verification", "", "a, b")
		assert.False(t, Verify(b, identityFP, MatchLoose).Valid)
	})
}

func TestVerify_StrictMatch(t *testing.T) {
	t.Parallel()

	t.Run("exact match releases subject", func(t *testing.T) {
		t.Parallel()
		subject := `{"name":"Ada Tenant","email":"ada@example.com"}`
		b := stampedPDF(t, "Complete Verification Report", "TrustLayer Verification", subject, "identity, credit, complete")
		res := Verify(b, completeFP, MatchStrict)
		require.True(t, res.Valid, res.Message)
		assert.Equal(t, subject, res.Subject)
	})

	t.Run("same count different keywords fails", func(t *testing.T) {
		t.Parallel()
		b := stampedPDF(t, "Complete Verification Report", "TrustLayer Verification", "", "identity, credit, partial")
		res := Verify(b, completeFP, MatchStrict)
		assert.False(t, res.Valid)
		assert.Empty(t, res.Subject)
	})

	t.Run("alternate title not accepted strictly", func(t *testing.T) {
		t.Parallel()
		fp := completeFP
		fp.Titles = []string{"Complete Verification Report", "Complete Report"}
		b := stampedPDF(t, "Complete Report", "TrustLayer Verification", "", "identity, credit, complete")
		assert.False(t, Verify(b, fp, MatchStrict).Valid)
	})
}

func TestVerify_MalformedBytes(t *testing.T) {
	t.Parallel()

	res := Verify([]byte("definitely not a pdf"), identityFP, MatchLoose)
	assert.False(t, res.Valid)
	assert.Equal(t, invalidMessage, res.Message, "malformed input gets the generic failure text")
}

func TestSplitKeywords(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b", "c"}, splitKeywords("a, b, c"))
	assert.Equal(t, []string{"a", "b"}, splitKeywords("a;b"))
	assert.Empty(t, splitKeywords("  "))
	assert.Empty(t, splitKeywords(""))
}
