package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/gofrs/flock"

	"cara/internal/ai"
	"cara/internal/fileutil"
)

const fileMode = 0o600

// FileStore keeps credentials in a JSON document. An advisory lock on a
// sibling ".lock" file serializes writers across processes.
type FileStore struct {
	path   string
	lock   *flock.Flock
	sealer *sealer
	logger *slog.Logger
	mu     sync.Mutex
}

// OpenFile prepares a file store at path. The file is created on first Save.
func OpenFile(path, secret string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("credentials file path is empty")
	}
	logger = componentLogger(logger)
	return &FileStore{
		path:   path,
		lock:   flock.New(path + ".lock"),
		sealer: prepareSealer(secret, "file", logger),
		logger: logger,
	}, nil
}

// Path returns the document location.
func (s *FileStore) Path() string {
	return s.path
}

// Close releases nothing; locks are held only for the duration of a call.
func (s *FileStore) Close() error {
	return nil
}

// Load reads the document under a shared lock. A missing file is an empty
// state.
func (s *FileStore) Load(ctx context.Context) (ai.CredentialState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lock.TryRLockContext(ctx, lockRetryDelay); err != nil {
		return ai.CredentialState{}, fmt.Errorf("lock credentials file: %w", err)
	}
	defer func() {
		_ = s.lock.Unlock()
	}()
	return s.read()
}

// Save writes state under an exclusive lock, replacing the document. Locked
// credentials are copied from the existing document with the new model.
func (s *FileStore) Save(ctx context.Context, state ai.CredentialState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("lock credentials file: %w", err)
	}
	defer func() {
		_ = s.lock.Unlock()
	}()

	existing, err := s.readDocument()
	if err != nil {
		return err
	}
	doc := ai.CredentialState{
		Current:   state.Current,
		Providers: make(map[ai.ProviderID]ai.Credential, len(state.Providers)),
	}
	for id, cred := range state.Providers {
		if cred.Locked {
			if stored, ok := existing.Providers[id]; ok {
				stored.Model = cred.Model
				doc.Providers[id] = stored
			}
			continue
		}
		sealed, err := s.sealer.seal(cred.APIKey)
		if err != nil {
			return fmt.Errorf("seal %s key: %w", id, err)
		}
		cred.APIKey = sealed
		if cred.UpdatedAt.IsZero() {
			cred.UpdatedAt = now()
		}
		cred.UpdatedAt = cred.UpdatedAt.UTC()
		doc.Providers[id] = cred
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, append(data, '\n'), fileMode); err != nil {
		return fmt.Errorf("write credentials file: %w", err)
	}
	return nil
}

func (s *FileStore) read() (ai.CredentialState, error) {
	doc, err := s.readDocument()
	if err != nil {
		return doc, err
	}
	state := ai.CredentialState{
		Current:   doc.Current,
		Providers: make(map[ai.ProviderID]ai.Credential, len(doc.Providers)),
	}
	for id, cred := range doc.Providers {
		cred.APIKey, cred.Locked = openKey(s.sealer, s.logger, id, cred.APIKey)
		if cred.APIKey == "" {
			cred.Enabled = false
		}
		state.Providers[id] = cred
	}
	return state, nil
}

// readDocument returns the document as stored, keys still sealed.
func (s *FileStore) readDocument() (ai.CredentialState, error) {
	doc := ai.CredentialState{Providers: map[ai.ProviderID]ai.Credential{}}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read credentials file: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse credentials file %s: %w", s.path, err)
	}
	if doc.Providers == nil {
		doc.Providers = map[ai.ProviderID]ai.Credential{}
	}
	return doc, nil
}
