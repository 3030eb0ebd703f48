package provider

import "encoding/json"

// envelope is the response wrapper used by every gateway endpoint
type envelope struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

// responseParameters carries hints attached to failed responses
type responseParameters struct {
	RetryAfter int `json:"retry_after,omitempty"`
}

// Identity describes the account the session is signed in as
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Phone    string `json:"phone,omitempty"`
}

// Sender is the author of a channel message
type Sender struct {
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Message is the structured record returned for a gift ID
type Message struct {
	ID     int64   `json:"id"`
	Sender *Sender `json:"sender,omitempty"`
	Text   string  `json:"message,omitempty"`
}

// sessionResult is returned by the sign-in endpoints on success
type sessionResult struct {
	SessionToken string `json:"session_token"`
}
