package model

import "time"

// TrackingRecord is the server-side mirror of one application attempt,
// keyed by session id. Email is an attribute with a secondary index, not
// an alternate key.
type TrackingRecord struct {
	SessionID        string    `json:"session_id" dynamodbav:"sessionId"`
	Step             int       `json:"step" dynamodbav:"step"`
	Email            string    `json:"email,omitempty" dynamodbav:"email,omitempty"`
	Name             string    `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Address          string    `json:"address,omitempty" dynamodbav:"address,omitempty"`
	PropertyID       string    `json:"property_id,omitempty" dynamodbav:"propertyId,omitempty"`
	IP               string    `json:"ip,omitempty" dynamodbav:"ip,omitempty"`
	Geo              string    `json:"geo,omitempty" dynamodbav:"geo,omitempty"`
	Signed           bool      `json:"signed" dynamodbav:"signed"`
	UserReminderSent bool      `json:"user_reminder_sent" dynamodbav:"userReminderSent"`
	SalesAlertSent   bool      `json:"sales_alert_sent" dynamodbav:"salesAlertSent"`
	CreatedAt        time.Time `json:"created_at" dynamodbav:"createdAt,unixtime"`
	LastActivity     time.Time `json:"last_activity" dynamodbav:"lastActivity,unixtime"`
	ExpiresAt        int64     `json:"expires_at,omitempty" dynamodbav:"expiresAt,omitempty"`
}

// TrackingUpdate is a partial update to a tracking record. Nil pointer
// fields and empty strings are left untouched on the stored record.
type TrackingUpdate struct {
	Step       *int
	Email      string
	Name       string
	Address    string
	PropertyID string
	IP         string
	Geo        string
	Signed     *bool
}

// IsZero reports whether the update would change nothing.
func (u TrackingUpdate) IsZero() bool {
	return u.Step == nil && u.Email == "" && u.Name == "" && u.Address == "" &&
		u.PropertyID == "" && u.IP == "" && u.Geo == "" && u.Signed == nil
}

// IntPtr returns a pointer to v, for TrackingUpdate literals.
func IntPtr(v int) *int { return &v }

// BoolPtr returns a pointer to v, for TrackingUpdate literals.
func BoolPtr(v bool) *bool { return &v }
