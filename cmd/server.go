package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/veranda-hq/applyflow/internal/config"
	"github.com/veranda-hq/applyflow/internal/model"
	"github.com/veranda-hq/applyflow/internal/session"
	"github.com/veranda-hq/applyflow/internal/submit"
	"github.com/veranda-hq/applyflow/internal/verify"
	"github.com/veranda-hq/applyflow/pkg/esign"
)

// generations tracks an upload counter per (session, step) so that a
// verification result landing after a newer upload for the same slot is
// discarded instead of clobbering it.
type generations struct {
	mu  sync.Mutex
	cur map[string]int
}

func newGenerations() *generations {
	return &generations{cur: make(map[string]int)}
}

func genKey(sessionID string, step int) string {
	return sessionID + "/" + strconv.Itoa(step)
}

// next claims a new generation for the slot.
func (g *generations) next(sessionID string, step int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cur[genKey(sessionID, step)]++
	return g.cur[genKey(sessionID, step)]
}

// current reports whether gen is still the newest claim on the slot.
func (g *generations) current(sessionID string, step int, gen int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cur[genKey(sessionID, step)] == gen
}

// uploadRule binds a document step to its metadata fingerprint.
type uploadRule struct {
	fp   config.FingerprintConfig
	mode verify.Mode
}

// server hosts the wizard HTTP API.
type server struct {
	env   *appEnv
	rules map[int]uploadRule
	skips map[int]bool
	gens  *generations
}

func newServer(env *appEnv) *server {
	w := env.cfg.Wizard
	skips := make(map[int]bool, len(w.SkipSteps))
	for _, idx := range w.SkipSteps {
		skips[idx] = true
	}
	return &server{
		env: env,
		rules: map[int]uploadRule{
			// The identity report carries the applicant's subject payload
			// and is matched strictly; the others are loose.
			w.IdentityStep: {fp: env.cfg.Verify.Identity, mode: verify.MatchStrict},
			w.CreditStep:   {fp: env.cfg.Verify.Credit, mode: verify.MatchLoose},
			w.CompleteStep: {fp: env.cfg.Verify.Complete, mode: verify.MatchLoose},
		},
		skips: skips,
		gens:  newGenerations(),
	}
}

// router assembles the chi middleware stack and routes.
func (s *server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.env.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.env.metrics.Snapshot())
	})

	r.Group(func(r chi.Router) {
		r.Use(session.Middleware(s.env.cfg.Server.CookieName))

		r.Get("/api/state", s.handleState)
		r.Post("/api/steps/{index}/document", s.handleDocument)
		r.Post("/api/steps/{index}/form", s.handleForm)
		r.Post("/api/steps/{index}/skip", s.handleSkip)
		r.Post("/api/next", s.handleNext)
		r.Post("/api/previous", s.handlePrevious)
		r.Post("/api/background-check", s.handleBackcheck)
		r.Post("/api/esign", s.handleESign)
		r.Post("/api/submit", s.handleSubmit)
		r.Post("/api/restart", s.handleRestart)
	})

	return r
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeCollaboratorError logs the real failure and hands the client a
// readable message. Nothing propagates uncaught past a handler.
func writeCollaboratorError(w http.ResponseWriter, action string, err error) {
	zap.L().Error(action+" failed", zap.Error(err))
	writeError(w, http.StatusBadGateway, "The "+action+" service is unavailable right now. Please try again.")
}

// clientIP prefers the forwarded address set by the edge proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// stepIndex parses and bounds-checks the {index} route parameter.
func (s *server) stepIndex(r *http.Request) (int, error) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, fmt.Errorf("step index must be a number")
	}
	if idx < 0 || idx >= s.env.cfg.Wizard.Steps {
		return 0, fmt.Errorf("step index out of range")
	}
	return idx, nil
}

// --- handlers ---

type stateStep struct {
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"`
	FileName string `json:"file_name,omitempty"`
	Complete bool   `json:"complete"`
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := session.FromContext(ctx)

	current, err := s.env.wizard.Current(ctx, sessionID)
	if err != nil {
		writeCollaboratorError(w, "application state", err)
		return
	}
	seq, err := s.env.outputs.Sequence(ctx, sessionID)
	if err != nil {
		writeCollaboratorError(w, "application state", err)
		return
	}
	info, err := s.env.outputs.Info(ctx, sessionID)
	if err != nil {
		writeCollaboratorError(w, "application state", err)
		return
	}

	steps := make([]stateStep, s.env.cfg.Wizard.Steps)
	for i := range steps {
		if i < len(s.env.cfg.Wizard.StepNames) {
			steps[i].Name = s.env.cfg.Wizard.StepNames[i]
		}
		if i < len(seq) && seq[i] != nil && !seq[i].Empty() {
			steps[i].Kind = string(seq[i].Kind)
			steps[i].FileName = seq[i].FileName
			steps[i].Complete = true
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"step":       current,
		"steps":      steps,
		"info":       info,
	})
}

func (s *server) handleDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := session.FromContext(ctx)

	idx, err := s.stepIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rule, ok := s.rules[idx]
	if !ok {
		writeError(w, http.StatusBadRequest, "this step does not accept document uploads")
		return
	}

	maxBytes := int64(s.env.cfg.Server.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "a PDF file upload named 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "upload could not be read")
		return
	}

	gen := s.gens.next(sessionID, idx)

	result := verify.Verify(data, rule.fp, rule.mode)
	if !result.Valid {
		s.env.metrics.UploadRejected()
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "message": result.Message})
		return
	}
	s.env.metrics.UploadVerified()

	// A newer upload for this slot won while we verified; drop this one.
	if !s.gens.current(sessionID, idx, gen) {
		writeError(w, http.StatusConflict, "a newer upload for this step replaced this one")
		return
	}

	// A verified identity may resolve to an earlier attempt's session.
	storeID := sessionID
	if subj, ok := model.ParseDocumentSubject(result.Subject); ok && subj.Email != "" {
		canonical, err := s.env.syn.Canonical(ctx, sessionID, subj.Email)
		if err != nil {
			zap.L().Warn("canonical session lookup failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		} else if canonical != sessionID {
			storeID = canonical
			session.WriteCookie(w, s.env.cfg.Server.CookieName, canonical)
		}
	}

	out, err := s.env.outputs.PutFile(ctx, storeID, model.StepOutput{
		Step:        idx,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Subject:     result.Subject,
	}, data)
	if err != nil {
		writeCollaboratorError(w, "document storage", err)
		return
	}

	s.env.syn.Track(storeID, model.TrackingUpdate{Step: model.IntPtr(idx)})

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":      true,
		"message":    result.Message,
		"session_id": storeID,
		"file_name":  out.FileName,
	})
}

func (s *server) handleForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := session.FromContext(ctx)

	idx, err := s.stepIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	// The application form also feeds the flat merge object and the
	// tracking record.
	var info model.RentalInfo
	if err := json.Unmarshal(body, &info); err == nil {
		merged, err := s.env.outputs.MergeInfo(ctx, sessionID, info)
		if err != nil {
			writeCollaboratorError(w, "application storage", err)
			return
		}
		// Track the merged identity: an email lifted from a verified
		// document survives later typed input.
		s.env.syn.Track(sessionID, model.TrackingUpdate{
			Email:      merged.ApplicantEmail,
			Name:       merged.ApplicantName,
			Address:    info.CurrentAddress.String(),
			PropertyID: info.PropertyID,
			IP:         clientIP(r),
		})
	}

	s.env.outputs.Set(ctx, sessionID, model.StepOutput{
		Step: idx,
		Kind: model.StepKindForm,
		Form: body,
	})
	s.env.syn.Track(sessionID, model.TrackingUpdate{Step: model.IntPtr(idx)})

	writeJSON(w, http.StatusOK, map[string]any{"stored": true, "step": idx})
}

func (s *server) handleSkip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := session.FromContext(ctx)

	idx, err := s.stepIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.skips[idx] {
		writeError(w, http.StatusForbidden, "this step cannot be skipped")
		return
	}

	s.env.outputs.Set(ctx, sessionID, model.StepOutput{
		Step: idx,
		Kind: model.StepKindSkip,
	})

	writeJSON(w, http.StatusOK, map[string]any{"stored": true, "step": idx})
}

func (s *server) handleNext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := session.FromContext(ctx)

	step, moved, err := s.env.wizard.Next(ctx, sessionID)
	if err != nil {
		writeCollaboratorError(w, "application state", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"step": step, "moved": moved})
}

func (s *server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := session.FromContext(ctx)

	step, moved, err := s.env.wizard.Previous(ctx, sessionID)
	if err != nil {
		writeCollaboratorError(w, "application state", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"step": step, "moved": moved})
}

func (s *server) handleBackcheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := session.FromContext(ctx)

	info, err := s.env.outputs.Info(ctx, sessionID)
	if err != nil {
		writeCollaboratorError(w, "application state", err)
		return
	}
	if info == nil || info.ApplicantName == "" {
		writeError(w, http.StatusUnprocessableEntity, "complete the application form before running the background check")
		return
	}

	check, err := s.env.checker.Run(ctx, model.DocumentSubject{
		Name:  info.ApplicantName,
		Email: info.ApplicantEmail,
	})
	if err != nil {
		s.env.metrics.CheckFailed()
		writeCollaboratorError(w, "background check", err)
		return
	}
	s.env.metrics.CheckRun()

	form, err := json.Marshal(check)
	if err != nil {
		writeCollaboratorError(w, "background check", err)
		return
	}
	idx := s.env.cfg.Wizard.BackcheckStep
	s.env.outputs.Set(ctx, sessionID, model.StepOutput{
		Step: idx,
		Kind: model.StepKindForm,
		Form: form,
	})
	s.env.syn.Track(sessionID, model.TrackingUpdate{Step: model.IntPtr(idx)})

	writeJSON(w, http.StatusOK, check)
}

func (s *server) handleESign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := session.FromContext(ctx)

	info, err := s.env.outputs.Info(ctx, sessionID)
	if err != nil {
		writeCollaboratorError(w, "application state", err)
		return
	}
	if info == nil || info.ApplicantEmail == "" {
		writeError(w, http.StatusUnprocessableEntity, "an applicant email is required before signing")
		return
	}

	resp, err := s.env.esign.CreateSigningRequest(ctx, esign.SigningRequest{
		TemplateIDs: s.env.cfg.ESign.TemplateIDs,
		Fields: map[string]string{
			"property_address": info.PropertyAddress,
			"applicant_name":   info.ApplicantName,
			"monthly_rent":     fmt.Sprintf("%.2f", info.MonthlyRent),
			"move_in_date":     info.MoveInDate,
		},
		Recipients: []esign.Recipient{
			{Name: info.ApplicantName, Email: info.ApplicantEmail},
		},
		Embedded: true,
	})
	if err != nil {
		writeCollaboratorError(w, "signature", err)
		return
	}
	s.env.metrics.SignRequest()

	signingURL := resp.URLFor(info.ApplicantEmail)
	form, err := json.Marshal(map[string]string{
		"request_id":  resp.RequestID,
		"signing_url": signingURL,
	})
	if err != nil {
		writeCollaboratorError(w, "signature", err)
		return
	}
	idx := s.env.cfg.Wizard.ESignStep
	s.env.outputs.Set(ctx, sessionID, model.StepOutput{
		Step: idx,
		Kind: model.StepKindForm,
		Form: form,
	})
	s.env.syn.Track(sessionID, model.TrackingUpdate{
		Step:   model.IntPtr(idx),
		Signed: model.BoolPtr(true),
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"request_id":  resp.RequestID,
		"signing_url": signingURL,
	})
}

func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := session.FromContext(ctx)

	receipt, err := s.env.submitter.Submit(ctx, sessionID)
	if errors.Is(err, submit.ErrNoLandlordEmail) {
		writeError(w, http.StatusUnprocessableEntity, "no landlord email on file; the application cannot be delivered")
		return
	}
	if err != nil {
		s.env.metrics.DeliveryFailed()
		writeCollaboratorError(w, "submission", err)
		return
	}
	s.env.metrics.Submission()

	writeJSON(w, http.StatusOK, map[string]any{
		"submitted": true,
		"documents": receipt.Documents,
	})
}

func (s *server) handleRestart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := session.FromContext(ctx)

	if err := s.env.wizard.Restart(ctx, sessionID); err != nil {
		writeCollaboratorError(w, "restart", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restarted": true, "step": 0})
}
