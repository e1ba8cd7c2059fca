package stepstore

import (
	"context"

	"go.uber.org/zap"

	"github.com/veranda-hq/applyflow/internal/blob"
	"github.com/veranda-hq/applyflow/internal/model"
)

// SubjectFunc receives the identity extracted from a verified document
// when a file artifact carrying a subject payload is stored. The
// document identity outranks typed form input downstream.
type SubjectFunc func(ctx context.Context, sessionID string, subj model.DocumentSubject)

// Service is the step-output store: the index tier plus the blob tier,
// with the document-subject side channel on top.
type Service struct {
	store     Store
	blobs     blob.Store
	onSubject SubjectFunc
}

// NewService wires the two tiers together. onSubject may be nil.
func NewService(store Store, blobs blob.Store, onSubject SubjectFunc) *Service {
	return &Service{store: store, blobs: blobs, onSubject: onSubject}
}

// Get returns the artifact for one step, or nil for an empty slot.
func (s *Service) Get(ctx context.Context, sessionID string, step int) (*model.StepOutput, error) {
	return s.store.GetStep(ctx, sessionID, step)
}

// Sequence returns the sparse step-output sequence as a dense slice
// indexed by step, with nil holes, sized to the highest completed step.
func (s *Service) Sequence(ctx context.Context, sessionID string) ([]*model.StepOutput, error) {
	outs, err := s.store.ListSteps(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(outs) == 0 {
		return nil, nil
	}
	seq := make([]*model.StepOutput, outs[len(outs)-1].Step+1)
	for i := range outs {
		seq[outs[i].Step] = &outs[i]
	}
	return seq, nil
}

// Set stores one step artifact. Index-tier write failures are logged and
// swallowed: the in-flight request keeps its in-memory result and the
// tracking record remains the fallback source of progress. A subject
// payload on the artifact triggers the identity side channel.
func (s *Service) Set(ctx context.Context, sessionID string, out model.StepOutput) {
	if err := s.store.SetStep(ctx, sessionID, out); err != nil {
		zap.L().Error("step persist failed",
			zap.String("session_id", sessionID),
			zap.Int("step", out.Step),
			zap.Error(err),
		)
	}

	if subj, ok := model.ParseDocumentSubject(out.Subject); ok && s.onSubject != nil {
		s.onSubject(ctx, sessionID, subj)
	}
}

// PutFile stores file bytes in the blob tier and the referencing
// artifact in the index tier. The blob write is required; the index
// write follows Set's best-effort rule.
func (s *Service) PutFile(ctx context.Context, sessionID string, out model.StepOutput, data []byte) (model.StepOutput, error) {
	key := blob.NewKey(sessionID, out.Step)
	if err := s.blobs.Put(ctx, key, data, out.ContentType); err != nil {
		return out, err
	}
	out.Kind = model.StepKindFile
	out.FileKey = key
	out.Size = int64(len(data))
	s.Set(ctx, sessionID, out)
	return out, nil
}

// FileBytes loads the blob behind a file artifact.
func (s *Service) FileBytes(ctx context.Context, out model.StepOutput) ([]byte, error) {
	return s.blobs.Get(ctx, out.FileKey)
}

// Info returns the accumulated rental/applicant merge object.
func (s *Service) Info(ctx context.Context, sessionID string) (*model.RentalInfo, error) {
	return s.store.Info(ctx, sessionID)
}

// MergeInfo overlays non-zero fields onto the stored merge object.
func (s *Service) MergeInfo(ctx context.Context, sessionID string, in model.RentalInfo) (*model.RentalInfo, error) {
	return s.store.MergeInfo(ctx, sessionID, in)
}

// LastStep returns the persisted wizard position, 0 when none.
func (s *Service) LastStep(ctx context.Context, sessionID string) (int, error) {
	return s.store.LastStep(ctx, sessionID)
}

// SetLastStep persists the wizard position.
func (s *Service) SetLastStep(ctx context.Context, sessionID string, step int) error {
	return s.store.SetLastStep(ctx, sessionID, step)
}

// Clear removes everything held for a session: blobs first, then the
// index rows, then the merge object and wizard position.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := s.blobs.DeletePrefix(ctx, blob.SessionPrefix(sessionID)); err != nil {
		return err
	}
	if err := s.store.ClearSteps(ctx, sessionID); err != nil {
		return err
	}
	if err := s.store.ClearInfo(ctx, sessionID); err != nil {
		return err
	}
	return s.store.SetLastStep(ctx, sessionID, 0)
}
