// Package session derives the stable session id that keys one
// application attempt. Resolution never touches the network; the remote
// tracking record is synced lazily on first tracked activity.
package session

import "github.com/google/uuid"

// Source records where a resolved session id came from.
type Source string

const (
	// SourceURL means the id arrived in the request URL, typically from
	// an emailed resume link. It wins over any existing cookie.
	SourceURL Source = "url"
	// SourceCookie means an existing cookie id was reused.
	SourceCookie Source = "cookie"
	// SourceMinted means no id existed and a fresh one was generated.
	SourceMinted Source = "minted"
)

// Resolution is the outcome of resolving a session id for one request.
type Resolution struct {
	ID     string
	Source Source
	// SetCookie is true when the caller must (re)write the session
	// cookie: either a new id was minted or a URL id displaced the
	// cookie value.
	SetCookie bool
}

// Resolve picks the session id for a request. A URL-supplied id wins
// unconditionally, even over a differing existing cookie, so an emailed
// resume link recovers the original attempt on any device. Otherwise an
// existing cookie is reused, and only as a last resort is a new id
// minted.
func Resolve(urlID, cookieID string) Resolution {
	switch {
	case urlID != "":
		return Resolution{
			ID:        urlID,
			Source:    SourceURL,
			SetCookie: urlID != cookieID,
		}
	case cookieID != "":
		return Resolution{ID: cookieID, Source: SourceCookie}
	default:
		return Resolution{
			ID:        uuid.New().String(),
			Source:    SourceMinted,
			SetCookie: true,
		}
	}
}
