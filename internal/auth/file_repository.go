package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/codebyjuno/slotcal/internal/apperror"
)

// usersFileName is the JSON document the file backend keeps users in.
const usersFileName = "users.json"

// usersDocument is the on-disk shape of the user set.
type usersDocument struct {
	Users []User `json:"users"`
}

// fileUserRepository implements UserRepository on a JSON file. All access
// goes through one mutex, so the uniqueness check and the append happen as
// a unit -- the file backend's equivalent of the unique index.
type fileUserRepository struct {
	mu   sync.Mutex
	path string
}

// NewFileUserRepository creates a user repository persisting to
// dataDir/users.json. The directory is created if missing.
func NewFileUserRepository(dataDir string) (UserRepository, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &fileUserRepository{path: filepath.Join(dataDir, usersFileName)}, nil
}

// Create appends a new user after re-checking email uniqueness under the
// repository lock.
func (r *fileUserRepository) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}

	for i := range doc.Users {
		if strings.EqualFold(doc.Users[i].Email, user.Email) {
			return apperror.NewConflict("email already registered")
		}
	}

	doc.Users = append(doc.Users, *user)
	return r.save(doc)
}

// FindByID retrieves a user by id.
func (r *fileUserRepository) FindByID(_ context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}

	for i := range doc.Users {
		if doc.Users[i].ID == id {
			u := doc.Users[i]
			return &u, nil
		}
	}
	return nil, apperror.NewNotFound("user not found")
}

// FindByEmail retrieves a user by normalized email.
func (r *fileUserRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}

	for i := range doc.Users {
		if strings.EqualFold(doc.Users[i].Email, email) {
			u := doc.Users[i]
			return &u, nil
		}
	}
	return nil, apperror.NewNotFound("user not found")
}

// EmailExists returns true if a user with the given email already exists.
func (r *fileUserRepository) EmailExists(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return false, err
	}

	for i := range doc.Users {
		if strings.EqualFold(doc.Users[i].Email, email) {
			return true, nil
		}
	}
	return false, nil
}

// load reads the document, treating a missing file as an empty user set.
// Must be called with the lock held.
func (r *fileUserRepository) load() (*usersDocument, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return &usersDocument{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading users file: %w", err)
	}

	doc := &usersDocument{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parsing users file: %w", err)
	}
	return doc, nil
}

// save writes the document atomically: write to a temp file in the same
// directory, then rename over the target. Must be called with the lock held.
func (r *fileUserRepository) save(doc *usersDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling users file: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing users file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replacing users file: %w", err)
	}
	return nil
}
