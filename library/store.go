package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigFastest

// Store persists the two circulation records. Implementations overwrite the
// complete collections on every save, so durable state never reflects a
// half-applied multi-entity mutation.
type Store interface {
	LoadBooks() ([]*Book, error)
	LoadUsers() ([]*User, error)
	SaveAll(books []*Book, users []*User) error
}

// JSONStore keeps the catalog and the user roster in two JSON files, each an
// array of flat records. An absent file means an empty collection, not an
// error; first run starts from nothing.
type JSONStore struct {
	bookPath string
	userPath string
	log      *zap.Logger
}

// NewJSONStore creates a store over the two snapshot files. A nil logger
// disables warnings.
func NewJSONStore(bookPath, userPath string, log *zap.Logger) *JSONStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &JSONStore{bookPath: bookPath, userPath: userPath, log: log}
}

// LoadBooks reads the catalog snapshot.
func (s *JSONStore) LoadBooks() ([]*Book, error) {
	var records []BookRecord
	ok, err := s.loadRecords(s.bookPath, "catalog", &records)
	if err != nil || !ok {
		return nil, err
	}
	books := make([]*Book, 0, len(records))
	for _, r := range records {
		books = append(books, bookFromRecord(r))
	}
	return books, nil
}

// LoadUsers reads the roster snapshot.
func (s *JSONStore) LoadUsers() ([]*User, error) {
	var records []UserRecord
	ok, err := s.loadRecords(s.userPath, "user roster", &records)
	if err != nil || !ok {
		return nil, err
	}
	users := make([]*User, 0, len(records))
	for _, r := range records {
		users = append(users, userFromRecord(r))
	}
	return users, nil
}

func (s *JSONStore) loadRecords(path, what string, out interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Warn("snapshot file not found, starting empty",
			zap.String("what", what), zap.String("path", path))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// SaveAll rewrites both snapshot files from the full collections.
func (s *JSONStore) SaveAll(books []*Book, users []*User) error {
	bookRecords := make([]BookRecord, 0, len(books))
	for _, b := range books {
		bookRecords = append(bookRecords, b.Record())
	}
	if err := s.saveRecords(s.bookPath, bookRecords); err != nil {
		return fmt.Errorf("save books: %w", err)
	}

	userRecords := make([]UserRecord, 0, len(users))
	for _, u := range users {
		userRecords = append(userRecords, u.Record())
	}
	if err := s.saveRecords(s.userPath, userRecords); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}

func (s *JSONStore) saveRecords(path string, records interface{}) error {
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return err
	}
	return replaceFile(path, data)
}

// replaceFile writes data to a temp file in the target directory and renames
// it over path, so a crash mid-write cannot truncate the previous snapshot.
// The temp file is cleaned up on every exit path.
func replaceFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
