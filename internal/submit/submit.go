// Package submit turns a completed session into a delivered application
// packet: gather step outputs, assemble the PDF, email the landlord,
// retire the tracking record.
package submit

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veranda-hq/applyflow/internal/assemble"
	"github.com/veranda-hq/applyflow/internal/mailer"
	"github.com/veranda-hq/applyflow/internal/model"
	"github.com/veranda-hq/applyflow/internal/stepstore"
	"github.com/veranda-hq/applyflow/internal/tracker"
)

// ErrNoLandlordEmail blocks submission when the merge object never
// collected a landlord address. Nothing is assembled or sent.
var ErrNoLandlordEmail = eris.New("submit: no landlord email on file")

// Sender is the outbound-mail dependency.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// Receipt summarizes a delivered submission.
type Receipt struct {
	LandlordEmail string
	PacketBytes   int
	Documents     int
}

// Submitter performs the final submission for a session.
type Submitter struct {
	outputs   *stepstore.Service
	mail      Sender
	syn       *tracker.Synchronizer
	stepNames []string
	now       func() time.Time
}

// New builds a Submitter. stepNames label the packet's sections by step
// index; a missing name falls back to the uploaded filename.
func New(outputs *stepstore.Service, mail Sender, syn *tracker.Synchronizer, stepNames []string) *Submitter {
	return &Submitter{
		outputs:   outputs,
		mail:      mail,
		syn:       syn,
		stepNames: stepNames,
		now:       time.Now,
	}
}

// Submit assembles and delivers the packet. The tracking record is
// deleted only after the mail goes out; a delivery failure leaves the
// session resumable.
func (s *Submitter) Submit(ctx context.Context, sessionID string) (*Receipt, error) {
	info, err := s.outputs.Info(ctx, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "submit: load rental info")
	}
	if info == nil || info.LandlordEmail == "" {
		return nil, ErrNoLandlordEmail
	}

	packet, docCount, err := s.buildPacket(ctx, sessionID, info)
	if err != nil {
		return nil, err
	}

	subject := fmt.Sprintf("Rental application: %s", info.ApplicantName)
	if info.PropertyAddress != "" {
		subject = fmt.Sprintf("Rental application for %s: %s", info.PropertyAddress, info.ApplicantName)
	}
	err = s.mail.Send(ctx, mailer.Message{
		To:      []string{info.LandlordEmail},
		Subject: subject,
		HTML: fmt.Sprintf("<p>%s has completed a rental application%s. The full packet is attached.</p>",
			info.ApplicantName, forProperty(info.PropertyAddress)),
		Attachments: []mailer.Attachment{
			{Name: "application.pdf", ContentType: "application/pdf", Data: packet},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "submit: deliver packet")
	}

	if err := s.syn.Delete(ctx, sessionID); err != nil {
		// Delivery already happened; the stale record only costs a
		// spurious reminder until TTL expiry.
		zap.L().Warn("tracking record cleanup failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	zap.L().Info("application submitted",
		zap.String("session_id", sessionID),
		zap.String("landlord", info.LandlordEmail),
		zap.Int("documents", docCount),
		zap.Int("packet_bytes", len(packet)),
	)
	return &Receipt{
		LandlordEmail: info.LandlordEmail,
		PacketBytes:   len(packet),
		Documents:     docCount,
	}, nil
}

// Packet assembles the merged application packet without delivering it.
// A session with no rental info still yields a packet with a bare cover.
func (s *Submitter) Packet(ctx context.Context, sessionID string) ([]byte, int, error) {
	info, err := s.outputs.Info(ctx, sessionID)
	if err != nil {
		return nil, 0, eris.Wrap(err, "submit: load rental info")
	}
	if info == nil {
		info = &model.RentalInfo{}
	}
	return s.buildPacket(ctx, sessionID, info)
}

func (s *Submitter) buildPacket(ctx context.Context, sessionID string, info *model.RentalInfo) ([]byte, int, error) {
	docs, err := s.gatherDocuments(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}

	sections := make([]string, len(docs))
	for i, d := range docs {
		sections[i] = d.Name
	}
	cover := assemble.CoverInfo{
		PropertyAddress: info.PropertyAddress,
		ApplicantName:   info.ApplicantName,
		Date:            s.now(),
		Sections:        sections,
	}

	packet, err := assemble.Merge(ctx, docs, cover)
	if err != nil {
		return nil, 0, eris.Wrap(err, "submit: assemble packet")
	}
	return packet, len(docs), nil
}

// gatherDocuments loads every file-kind step output's blob in step order.
func (s *Submitter) gatherDocuments(ctx context.Context, sessionID string) ([]assemble.Document, error) {
	seq, err := s.outputs.Sequence(ctx, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "submit: list step outputs")
	}

	var docs []assemble.Document
	for _, out := range seq {
		if out == nil || out.Kind != model.StepKindFile {
			continue
		}
		data, err := s.outputs.FileBytes(ctx, *out)
		if err != nil {
			return nil, eris.Wrapf(err, "submit: load document for step %d", out.Step)
		}
		docs = append(docs, assemble.Document{
			Name:  s.sectionName(out),
			Bytes: data,
		})
	}
	return docs, nil
}

func (s *Submitter) sectionName(out *model.StepOutput) string {
	if out.Step < len(s.stepNames) && s.stepNames[out.Step] != "" {
		return s.stepNames[out.Step]
	}
	return out.FileName
}

func forProperty(addr string) string {
	if addr == "" {
		return ""
	}
	return " for " + addr
}
