// Package blob stores binary step artifacts (uploaded documents,
// generated PDFs) outside the small JSON index tier. Keys are generated
// per file and namespaced by session id so a whole session can be
// cleared in one call.
package blob

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/veranda-hq/applyflow/internal/config"
)

// Store is the blob tier contract.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every blob whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// NewKey generates a blob key for one upload, namespaced by session.
func NewKey(sessionID string, step int) string {
	return fmt.Sprintf("%s/%d-%s.pdf", sessionID, step, uuid.New().String())
}

// SessionPrefix is the key prefix covering all blobs of one session.
func SessionPrefix(sessionID string) string {
	return sessionID + "/"
}

// New builds a Store from config: "fs" or "s3".
func New(cfg config.BlobConfig) (Store, error) {
	switch cfg.Mode {
	case "fs", "":
		return NewFS(cfg.Dir)
	case "s3":
		return NewS3(cfg)
	default:
		return nil, eris.Errorf("blob: unknown mode %q", cfg.Mode)
	}
}
