package emulation

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// PropertiesFileName is the sidecar record file kept at the emulator root.
// Its name contains a dot, which the container naming policy forbids, so it
// can never collide with a container directory.
const PropertiesFileName = "properties.json"

// recordTimeFormat is the RFC 1123 GMT form the service reports in Date and
// Last-Modified values, used for the sidecar file as well.
const recordTimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// Timestamp is a time.Time that serializes in the service's header form.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(recordTimeFormat))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(recordTimeFormat, s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

func now() Timestamp {
	return Timestamp{time.Now().UTC().Truncate(time.Second)}
}

// FilesystemProperties is the persisted record for one container.
type FilesystemProperties struct {
	Date         Timestamp         `json:"date"`
	LastModified Timestamp         `json:"last_modified"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type propertiesDocument struct {
	Properties map[string]FilesystemProperties `json:"properties"`
}

// propertiesStore persists the container records as a single JSON document,
// read and rewritten wholesale on every mutation. A store-wide mutex keeps
// the read-modify-write cycles of concurrent requests from interleaving.
type propertiesStore struct {
	path string
	mu   sync.Mutex
}

func newPropertiesStore(path string) *propertiesStore {
	return &propertiesStore{path: path}
}

// init creates an empty record document if none exists yet.
func (s *propertiesStore) init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat properties file: %w", err)
	}
	return s.write(propertiesDocument{Properties: map[string]FilesystemProperties{}})
}

func (s *propertiesStore) read() (propertiesDocument, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return propertiesDocument{}, fmt.Errorf("read properties file: %w", err)
	}

	var doc propertiesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return propertiesDocument{}, fmt.Errorf("parse properties file: %w", err)
	}
	if doc.Properties == nil {
		doc.Properties = map[string]FilesystemProperties{}
	}
	return doc, nil
}

// write serializes the document to a temp file and renames it into place so
// a crash mid-write never leaves a truncated record file behind.
func (s *propertiesStore) write(doc propertiesDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode properties: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write properties temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace properties file: %w", err)
	}
	return nil
}

// get returns the record for name and whether one exists.
func (s *propertiesStore) get(name string) (FilesystemProperties, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return FilesystemProperties{}, false, err
	}
	rec, ok := doc.Properties[name]
	return rec, ok, nil
}

// create inserts a fresh record with both dates set to the current time.
func (s *propertiesStore) create(name string) (FilesystemProperties, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return FilesystemProperties{}, err
	}

	created := now()
	rec := FilesystemProperties{Date: created, LastModified: created}
	doc.Properties[name] = rec
	if err := s.write(doc); err != nil {
		return FilesystemProperties{}, err
	}
	return rec, nil
}

// remove deletes the record for name. Removing an absent record is not an
// error; the caller has already established the container's existence.
func (s *propertiesStore) remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	delete(doc.Properties, name)
	return s.write(doc)
}

// merge folds metadata into the record for name, keeping existing keys that
// are not overwritten, and bumps the last-modified time.
func (s *propertiesStore) merge(name string, metadata map[string]string) (FilesystemProperties, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return FilesystemProperties{}, err
	}

	rec, ok := doc.Properties[name]
	if !ok {
		return FilesystemProperties{}, errFilesystemNotFound(name)
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]string{}
	}
	for k, v := range metadata {
		rec.Metadata[k] = v
	}
	rec.LastModified = now()
	doc.Properties[name] = rec

	if err := s.write(doc); err != nil {
		return FilesystemProperties{}, err
	}
	return rec, nil
}
