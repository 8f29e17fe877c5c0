package model

import (
	"errors"
	"strings"
	"time"
)

// SecretTypeEngineAPIKey is the credential required to invoke the external
// analysis engine on behalf of an owner.
const SecretTypeEngineAPIKey = "engine_api_key"

// Secret is an owner-scoped credential. Value is stored encrypted at rest and
// decrypted on read.
type Secret struct {
	ID         string    `json:"id"          db:"id"`
	OwnerID    string    `json:"owner_id"    db:"owner_id"`
	SecretType string    `json:"secret_type" db:"secret_type"`
	Value      string    `json:"value"       db:"value"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"  db:"updated_at"`
}

// PutSecretRequest stores or replaces the secret for (owner_id, secret_type).
type PutSecretRequest struct {
	OwnerID    string `json:"owner_id"`
	SecretType string `json:"secret_type"`
	Value      string `json:"value"`
}

// Validate validates the PutSecretRequest fields.
func (r *PutSecretRequest) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return errors.New("owner_id is required")
	}
	if strings.TrimSpace(r.SecretType) == "" {
		return errors.New("secret_type is required")
	}
	if r.Value == "" {
		return errors.New("value is required")
	}
	return nil
}
