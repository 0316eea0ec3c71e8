// Package config is a small file-backed option store: remote
// definitions are sections of key/value pairs persisted to an ini
// file on disk, the same shape rclone's own config store uses for its
// remotes, grounded on fs/config's Storage interface and backed here
// by the same go-ini/ini library the teacher vendors.
package config

import (
	"bytes"
	"os"
	"sync"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"

	"github.com/yagamy4680/ocsync/config/obscure"
)

// Storage is the persistence contract a Store needs; the default
// implementation is ini-file backed, matching the teacher's own
// configfile.Storage split between in-memory sections and on-disk
// serialization.
type Storage interface {
	GetSectionList() []string
	HasSection(name string) bool
	GetKeyList(section string) []string
	GetValue(section, key string) (value string, found bool)
	SetValue(section, key, value string)
	DeleteKey(section, key string) bool
	DeleteSection(section string)
	Serialize() ([]byte, error)
}

// Store owns a Storage and the path it is persisted to; every mutating
// method saves immediately, since this library has no notion of a
// batched transaction.
type Store struct {
	mu      sync.Mutex
	path    string
	storage Storage
}

// New loads path if it exists, or starts from an empty store otherwise
// (a fresh install has no config file yet).
func New(path string) (*Store, error) {
	s := &Store{path: path, storage: newIniStorage()}
	if path == "" {
		return s, nil
	}
	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	cfg, err := ini.Load(s.path)
	if err != nil {
		return errors.Wrap(err, "config: failed to load config file")
	}
	s.storage = &iniStorage{file: cfg}
	return nil
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	data, err := s.storage.Serialize()
	if err != nil {
		return errors.Wrap(err, "config: failed to serialize")
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return errors.Wrap(err, "config: failed to write config file")
	}
	return nil
}

// Sections lists every remote defined in the store.
func (s *Store) Sections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.GetSectionList()
}

// FileGet reads key from section, returning def if it is unset.
func (s *Store) FileGet(section, key, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.storage.GetValue(section, key); ok {
		return v
	}
	return def
}

// FileGetObscured reads key from section and reveals it, for values
// written with FileSetObscured (passwords).
func (s *Store) FileGetObscured(section, key string) (string, error) {
	s.mu.Lock()
	raw, ok := s.storage.GetValue(section, key)
	s.mu.Unlock()
	if !ok {
		return "", nil
	}
	revealed, err := obscure.Reveal(raw)
	if err != nil {
		return "", errors.Wrapf(err, "config: %s.%s is not a valid obscured value", section, key)
	}
	return revealed, nil
}

// FileSet writes key=value into section and persists immediately.
func (s *Store) FileSet(section, key, value string) error {
	s.mu.Lock()
	s.storage.SetValue(section, key, value)
	s.mu.Unlock()
	return s.save()
}

// FileSetObscured obscures value before writing it, for fields like
// passwords that shouldn't sit in the config file in the clear.
func (s *Store) FileSetObscured(section, key, value string) error {
	obscured, err := obscure.Obscure(value)
	if err != nil {
		return errors.Wrap(err, "config: failed to obscure value")
	}
	return s.FileSet(section, key, obscured)
}

// FileDeleteKey removes key from section, reporting whether it existed.
func (s *Store) FileDeleteKey(section, key string) (bool, error) {
	s.mu.Lock()
	existed := s.storage.DeleteKey(section, key)
	s.mu.Unlock()
	if !existed {
		return false, nil
	}
	return true, s.save()
}

// DeleteSection removes an entire remote definition.
func (s *Store) DeleteSection(section string) error {
	s.mu.Lock()
	s.storage.DeleteSection(section)
	s.mu.Unlock()
	return s.save()
}

// iniStorage is the go-ini-backed Storage implementation.
type iniStorage struct {
	file *ini.File
}

func newIniStorage() Storage {
	return &iniStorage{file: ini.Empty()}
}

func (i *iniStorage) GetSectionList() []string {
	var names []string
	for _, sec := range i.file.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		names = append(names, sec.Name())
	}
	return names
}

func (i *iniStorage) HasSection(name string) bool {
	return i.file.HasSection(name)
}

func (i *iniStorage) GetKeyList(section string) []string {
	sec, err := i.file.GetSection(section)
	if err != nil {
		return nil
	}
	return sec.KeyStrings()
}

func (i *iniStorage) GetValue(section, key string) (string, bool) {
	sec, err := i.file.GetSection(section)
	if err != nil {
		return "", false
	}
	if !sec.HasKey(key) {
		return "", false
	}
	return sec.Key(key).String(), true
}

func (i *iniStorage) SetValue(section, key, value string) {
	i.file.Section(section).Key(key).SetValue(value)
}

func (i *iniStorage) DeleteKey(section, key string) bool {
	sec, err := i.file.GetSection(section)
	if err != nil || !sec.HasKey(key) {
		return false
	}
	sec.DeleteKey(key)
	return true
}

func (i *iniStorage) DeleteSection(section string) {
	i.file.DeleteSection(section)
}

func (i *iniStorage) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := i.file.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
