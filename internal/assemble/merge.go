package assemble

import (
	"bytes"
	"context"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
)

// introPageDropThreshold is the packet assembly policy: any constituent
// document with at least this many pages loses its first page, which is
// the verification provider's own cover/branding page and would be
// redundant next to the packet's generated cover. Single-page documents
// are kept whole. The threshold is fixed; it must track the provider's
// document layout, not taste.
const introPageDropThreshold = 2

// Document is one constituent of the packet, in step order.
type Document struct {
	Name  string
	Bytes []byte
}

func pdfConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount returns the number of pages in a PDF.
func PageCount(fileBytes []byte) (int, error) {
	conf := pdfConf()
	ctx, err := api.ReadContext(bytes.NewReader(fileBytes), conf)
	if err != nil {
		return 0, eris.Wrap(err, "assemble: read pdf")
	}
	if err := api.ValidateContext(ctx); err != nil {
		return 0, eris.Wrap(err, "assemble: validate pdf")
	}
	return ctx.PageCount, nil
}

// dropIntroPage returns the document without its first page.
func dropIntroPage(fileBytes []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(fileBytes), &buf, []string{"2-"}, pdfConf()); err != nil {
		return nil, eris.Wrap(err, "assemble: trim intro page")
	}
	return buf.Bytes(), nil
}

// Merge builds the submission packet: the generated cover page followed
// by every constituent document in step order, each stripped of its
// provider intro page when it has one. Any malformed input aborts the
// whole merge; a partial packet is never produced.
func Merge(ctx context.Context, docs []Document, cover CoverInfo) ([]byte, error) {
	coverBytes, err := RenderCover(cover)
	if err != nil {
		return nil, err
	}

	parts := []io.ReadSeeker{bytes.NewReader(coverBytes)}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "assemble: merge canceled")
		}

		pages, err := PageCount(doc.Bytes)
		if err != nil {
			return nil, eris.Wrapf(err, "assemble: document %s", doc.Name)
		}

		body := doc.Bytes
		if pages >= introPageDropThreshold {
			if body, err = dropIntroPage(doc.Bytes); err != nil {
				return nil, eris.Wrapf(err, "assemble: document %s", doc.Name)
			}
		}
		parts = append(parts, bytes.NewReader(body))
	}

	var out bytes.Buffer
	if err := api.MergeRaw(parts, &out, false, pdfConf()); err != nil {
		return nil, eris.Wrap(err, "assemble: merge packet")
	}
	return out.Bytes(), nil
}
