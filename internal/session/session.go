package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/reactsync/internal/moderation"
)

// Account is an authenticated identity and its opaque credential.
type Account struct {
	Handle     string `json:"handle"`
	DID        string `json:"did"`
	Credential string `json:"-"`
}

// Store persists credentials. Implemented by *store.Store.
type Store interface {
	LoadSession(ctx context.Context, handle string) (credential string, found bool, err error)
	SaveSession(ctx context.Context, handle, credential string) error
}

// Authenticator negotiates sessions with the platform.
//
// Resume returns a credential error when the platform no longer accepts the
// stored credential.
type Authenticator interface {
	Login(ctx context.Context, handle, password string) (Account, error)
	Resume(ctx context.Context, credential string) (Account, error)
}

// RefreshHandler receives rotated credentials from the platform client.
type RefreshHandler interface {
	SessionRefreshed(handle, credential string)
}

// ErrNoPassword is returned when a login is needed but no password is set.
var ErrNoPassword = errors.New("no stored session and no password configured")

// Manager implements the session store contract on top of a Store.
type Manager struct {
	store  Store
	auth   Authenticator
	logger *slog.Logger

	mu  sync.Mutex
	key string // normalized identifier of the account being authenticated
}

// NewManager creates a manager. A nil logger uses slog.Default().
func NewManager(store Store, auth Authenticator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, auth: auth, logger: logger}
}

// Authenticate resumes the stored session for handle, or logs in with
// password and stores the new credential.
func (m *Manager) Authenticate(ctx context.Context, handle, password string) (Account, error) {
	handle = moderation.NormalizeHandle(handle)
	if handle == "" {
		return Account{}, fmt.Errorf("authenticate: empty handle")
	}
	// Set before Resume: a refresh may fire while the stored session is
	// being verified.
	m.mu.Lock()
	m.key = handle
	m.mu.Unlock()

	cred, found, err := m.store.LoadSession(ctx, handle)
	if err != nil {
		return Account{}, fmt.Errorf("authenticate %s: %w", handle, err)
	}

	if found {
		acct, err := m.auth.Resume(ctx, cred)
		if err == nil {
			m.logger.Debug("resumed stored session", "handle", handle, "did", acct.DID)
			return acct, nil
		}
		if !moderation.IsCredentialError(err) {
			return Account{}, fmt.Errorf("authenticate %s: %w", handle, err)
		}
		m.logger.Info("stored session rejected, logging in", "handle", handle, "error", err)
	}

	if password == "" {
		return Account{}, moderation.NewCredentialError(handle, ErrNoPassword)
	}

	acct, err := m.auth.Login(ctx, handle, password)
	if err != nil {
		return Account{}, fmt.Errorf("authenticate %s: %w", handle, err)
	}
	if err := m.store.SaveSession(ctx, handle, acct.Credential); err != nil {
		return Account{}, fmt.Errorf("authenticate %s: %w", handle, err)
	}
	m.logger.Info("logged in", "handle", handle, "did", acct.DID)
	return acct, nil
}

// SessionRefreshed persists a rotated credential in place of the stored one.
// It implements RefreshHandler.
//
// The credential is saved under the identifier passed to Authenticate, not
// the handle the server reports, so accounts configured by DID or renamed
// since login keep one row. Before any Authenticate call the reported
// handle is used.
//
// The notification is one-way, so a failed save is logged rather than
// returned; the next run falls back to the previous credential or a login.
func (m *Manager) SessionRefreshed(handle, credential string) {
	m.mu.Lock()
	key := m.key
	m.mu.Unlock()
	if key == "" {
		key = moderation.NormalizeHandle(handle)
	}
	if key != moderation.NormalizeHandle(handle) {
		m.logger.Debug("server reports a different handle", "stored_as", key, "reported", handle)
	}
	handle = key
	if err := m.store.SaveSession(context.Background(), handle, credential); err != nil {
		m.logger.Error("failed to persist refreshed session", "handle", handle, "error", err)
		return
	}
	m.logger.Debug("persisted refreshed session", "handle", handle)
}
