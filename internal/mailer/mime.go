package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/rotisserie/eris"
)

// base64LineLength is the RFC 2045 maximum encoded line length.
const base64LineLength = 76

// buildRawMessage renders a multipart/mixed MIME message: one HTML body
// part followed by base64-encoded attachments.
func buildRawMessage(from string, msg Message) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n", w.Boundary())
	buf.WriteString("\r\n")

	body, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`text/html; charset="UTF-8"`},
	})
	if err != nil {
		return nil, eris.Wrap(err, "mailer: create body part")
	}
	if _, err := body.Write([]byte(msg.HTML)); err != nil {
		return nil, eris.Wrap(err, "mailer: write body part")
	}

	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		part, err := w.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {fmt.Sprintf("%s; name=%q", contentType, att.Name)},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", att.Name)},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, eris.Wrapf(err, "mailer: create attachment part %s", att.Name)
		}
		if err := writeBase64(part, att.Data); err != nil {
			return nil, eris.Wrapf(err, "mailer: encode attachment %s", att.Name)
		}
	}

	if err := w.Close(); err != nil {
		return nil, eris.Wrap(err, "mailer: close multipart writer")
	}
	return buf.Bytes(), nil
}

// writeBase64 encodes data in 76-character lines per RFC 2045.
func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := base64LineLength
		if n > len(encoded) {
			n = len(encoded)
		}
		if _, err := fmt.Fprintf(w, "%s\r\n", encoded[:n]); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}
