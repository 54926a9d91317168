// Package models defines the request and response shapes exchanged with the
// card search backend, and the audit record the gateway keeps about them.
package models

import (
	"strings"
	"time"
)

// DefaultProvider is used when the caller did not pick an AI provider.
const DefaultProvider = "aihubmix"

// ImageURIs holds the card image links returned by the backend.
type ImageURIs struct {
	Small  string `json:"small,omitempty"`
	Normal string `json:"normal,omitempty"`
	Large  string `json:"large,omitempty"`
	PNG    string `json:"png,omitempty"`
}

// Card is a single search hit.
type Card struct {
	Name        string     `json:"name"`
	ManaCost    string     `json:"mana_cost,omitempty"`
	TypeLine    string     `json:"type_line"`
	OracleText  string     `json:"oracle_text"`
	ImageURIs   *ImageURIs `json:"image_uris,omitempty"`
	ScryfallURI string     `json:"scryfall_uri"`
	Rarity      string     `json:"rarity,omitempty"`
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	// Query is the natural-language search text.
	Query string `json:"query"`
	// Language selects the answer language ("en" or "zh").
	Language string `json:"language"`
	// APIKey is the caller's AI provider key. Never log it unmasked.
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
	Sort     string `json:"sort,omitempty"`
	Order    string `json:"order,omitempty"`
}

// Masked returns a copy safe for logging.
func (r SearchRequest) Masked() SearchRequest {
	if r.APIKey != "" {
		r.APIKey = "***"
	}
	return r
}

// SearchResponse is the answer to a SearchRequest.
type SearchResponse struct {
	Cards         []Card `json:"cards"`
	ScryfallQuery string `json:"scryfall_query"`
	TotalCards    int    `json:"total_cards"`
	APIProvider   string `json:"api_provider,omitempty"`
}

// Examples lists sample queries per language.
type Examples struct {
	ZH []string `json:"zh"`
	EN []string `json:"en"`
}

// Model describes an AI model offered by a provider.
type Model struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// ModelsResponse is the body of GET /api/models.
type ModelsResponse struct {
	Success  bool    `json:"success"`
	Models   []Model `json:"models"`
	Provider string  `json:"provider"`
	Message  string  `json:"message"`
}

// ValidateKeyRequest is the body of POST /api/validate-key.
type ValidateKeyRequest struct {
	APIKey string `json:"api_key"`
}

// ValidationResponse reports whether an API key was accepted.
type ValidationResponse struct {
	Valid    bool   `json:"valid"`
	Provider string `json:"provider,omitempty"`
	Message  string `json:"message,omitempty"`
}

// AuditEntry records one request that passed through the gateway.
// Payload secrets are never part of it.
type AuditEntry struct {
	ID            string `json:"id"`
	Path          string `json:"path"`
	Query         string `json:"query,omitempty"`
	Model         string `json:"model,omitempty"`
	Provider      string `json:"provider,omitempty"`
	ClientVersion string `json:"client_version"`
	// Enveloped is true when the request body arrived obfuscated.
	Enveloped bool `json:"enveloped"`
	// Signed is true when a valid payload signature accompanied the request.
	Signed     bool      `json:"signed"`
	ReceivedAt time.Time `json:"received_at"`
}

// MaskAPIKey hides the middle of key, keeping four characters on each side.
// Keys of eight characters or fewer are hidden entirely.
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
