package auth

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	vaultFormat  = "giftparser-sessions"
	vaultVersion = 2
	vaultKeyFile = "vault.key"
	kdfRounds    = 100000
	saltLen      = 32
	keyLen       = 32
)

// ErrVaultFormat is returned for a vault written by an incompatible version
var ErrVaultFormat = errors.New("unsupported session vault format")

// vaultHeader is stored in clear and authenticated with the sealed profiles,
// so editing the salt, rounds or version breaks decryption
type vaultHeader struct {
	Format  string `json:"format"`
	Version int    `json:"version"`
	Salt    []byte `json:"salt"`
	Rounds  int    `json:"rounds"`
}

type vaultFile struct {
	vaultHeader
	Nonce   []byte    `json:"nonce"`
	Sealed  []byte    `json:"sealed"`
	Updated time.Time `json:"updated"`
}

// SessionVault keeps every profile's provider session in one AES-GCM sealed
// file. The key is derived with PBKDF2 from GIFTPARSER_PASSPHRASE or, when
// unset, from a random key file created next to the vault.
type SessionVault struct {
	mu         sync.Mutex
	path       string
	passphrase string

	// derived key cache, valid for salt and rounds
	salt   []byte
	rounds int
	key    []byte
}

// OpenSessionVault prepares the vault at path. The file itself is created on
// the first Store.
func OpenSessionVault(path string) (*SessionVault, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	passphrase, err := vaultPassphrase(dir)
	if err != nil {
		return nil, err
	}
	return &SessionVault{path: path, passphrase: passphrase}, nil
}

// Store seals account under its profile name, replacing any previous session
func (v *SessionVault) Store(account *Account) error {
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}
	return v.update(func(profiles map[string]Account) error {
		profiles[account.Name] = *account
		return nil
	})
}

// Retrieve returns the session stored for a profile
func (v *SessionVault) Retrieve(name string) (*Account, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	var found *Account
	err := v.view(func(profiles map[string]Account) error {
		account, ok := profiles[name]
		if !ok {
			return ErrCredentialsNotFound
		}
		found = &account
		return nil
	})
	return found, err
}

// List returns every stored profile ordered by name
func (v *SessionVault) List() ([]*Account, error) {
	accounts := []*Account{}
	err := v.view(func(profiles map[string]Account) error {
		for _, account := range profiles {
			account := account
			accounts = append(accounts, &account)
		}
		return nil
	})
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return accounts, err
}

// Delete drops a profile; the vault file goes with the last one
func (v *SessionVault) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}
	return v.update(func(profiles map[string]Account) error {
		if _, ok := profiles[name]; !ok {
			return ErrCredentialsNotFound
		}
		delete(profiles, name)
		return nil
	})
}

// Exists reports whether a session is stored for the profile
func (v *SessionVault) Exists(name string) bool {
	account, err := v.Retrieve(name)
	return err == nil && account != nil
}

func (v *SessionVault) view(fn func(map[string]Account) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	profiles, err := v.unseal()
	if err != nil {
		return err
	}
	return fn(profiles)
}

func (v *SessionVault) update(fn func(map[string]Account) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	profiles, err := v.unseal()
	if err != nil {
		return err
	}
	if err := fn(profiles); err != nil {
		return err
	}

	if len(profiles) == 0 {
		if err := os.Remove(v.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove session vault: %w", err)
		}
		return nil
	}
	return v.seal(profiles)
}

// unseal reads the vault; a missing file is an empty vault
func (v *SessionVault) unseal() (map[string]Account, error) {
	profiles := make(map[string]Account)

	content, err := os.ReadFile(v.path)
	if errors.Is(err, fs.ErrNotExist) {
		return profiles, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session vault: %w", err)
	}

	var file vaultFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("session vault %s is corrupt: %w", v.path, err)
	}
	if file.Format != vaultFormat || file.Version != vaultVersion {
		return nil, fmt.Errorf("%s has format %q version %d: %w", v.path, file.Format, file.Version, ErrVaultFormat)
	}

	aead, err := v.cipherFor(file.Salt, file.Rounds)
	if err != nil {
		return nil, err
	}
	if len(file.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("session vault %s is corrupt: bad nonce", v.path)
	}
	aad, err := json.Marshal(file.vaultHeader)
	if err != nil {
		return nil, err
	}

	plain, err := aead.Open(nil, file.Nonce, file.Sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("session vault cannot be unlocked, check GIFTPARSER_PASSPHRASE: %w", err)
	}
	if err := json.Unmarshal(plain, &profiles); err != nil {
		return nil, fmt.Errorf("session vault %s holds malformed profiles: %w", v.path, err)
	}
	return profiles, nil
}

func (v *SessionVault) seal(profiles map[string]Account) error {
	salt := v.salt
	if salt == nil {
		salt = make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}
	header := vaultHeader{Format: vaultFormat, Version: vaultVersion, Salt: salt, Rounds: kdfRounds}

	aead, err := v.cipherFor(header.Salt, header.Rounds)
	if err != nil {
		return err
	}
	plain, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}
	aad, err := json.Marshal(header)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	content, err := json.MarshalIndent(vaultFile{
		vaultHeader: header,
		Nonce:       nonce,
		Sealed:      aead.Seal(nil, nonce, plain, aad),
		Updated:     time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}
	return replaceFile(v.path, content)
}

// cipherFor returns the AEAD for salt and rounds, deriving the key only when
// either changed since the last call
func (v *SessionVault) cipherFor(salt []byte, rounds int) (cipher.AEAD, error) {
	if len(salt) == 0 || rounds <= 0 {
		return nil, fmt.Errorf("session vault %s is corrupt: missing key parameters", v.path)
	}
	if v.key == nil || v.rounds != rounds || !bytes.Equal(v.salt, salt) {
		v.key = pbkdf2.Key([]byte(v.passphrase), salt, rounds, keyLen, sha256.New)
		v.salt, v.rounds = salt, rounds
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// replaceFile swaps content in through a synced temp file in the same
// directory, so a crash leaves either the old or the new vault
func replaceFile(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".sessions-*")
	if err != nil {
		return fmt.Errorf("failed to write session vault: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session vault: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync session vault: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// vaultPassphrase prefers GIFTPARSER_PASSPHRASE and otherwise reads, or
// creates, the key file in dir
func vaultPassphrase(dir string) (string, error) {
	if pass := os.Getenv("GIFTPARSER_PASSPHRASE"); pass != "" {
		return pass, nil
	}

	keyPath := filepath.Join(dir, vaultKeyFile)
	if content, err := os.ReadFile(keyPath); err == nil {
		if pass := string(bytes.TrimSpace(content)); pass != "" {
			return pass, nil
		}
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate vault key: %w", err)
	}
	pass := base64.RawURLEncoding.EncodeToString(b)
	if err := os.WriteFile(keyPath, []byte(pass), 0600); err != nil {
		return "", fmt.Errorf("failed to save vault key: %w", err)
	}
	return pass, nil
}
