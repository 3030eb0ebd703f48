package auth

import (
	"os"
	"time"
)

const (
	envSessionToken = "GIFTPARSER_SESSION_TOKEN"
	envAPIID        = "GIFTPARSER_API_ID"
	envAPIHash      = "GIFTPARSER_API_HASH"
	envPhone        = "GIFTPARSER_PHONE"
)

// EnvironmentStore reads a single read-only profile from environment
// variables, for CI and containers
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables. The profile is
// named "env" unless a name is given.
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	if !e.Exists(name) {
		return nil, ErrCredentialsNotFound
	}

	if name == "" {
		name = "env"
	}

	return &Account{
		Name:         name,
		Phone:        os.Getenv(envPhone),
		APIID:        os.Getenv(envAPIID),
		APIHash:      os.Getenv(envAPIHash),
		SessionToken: os.Getenv(envSessionToken),
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials are complete
func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv(envSessionToken) != "" &&
		os.Getenv(envAPIID) != "" &&
		os.Getenv(envAPIHash) != ""
}
