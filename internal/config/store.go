package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arthrod/briefer/internal/ownership"
	"github.com/arthrod/briefer/internal/secrets"
)

// secretFileMode keeps config documents readable by the owning user
// only. Files are created with this mode from the first byte so a
// partially written document is never visible to other users.
const secretFileMode = os.FileMode(0700)

// Store reads and writes configuration documents in consumer
// directories, applying environment-variable override precedence.
type Store struct {
	applier ownership.Applier
}

func NewStore(applier ownership.Applier) *Store {
	return &Store{applier: applier}
}

// Path returns the document location inside a consumer directory.
func (s *Store) Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Exists reports whether the directory already holds a document. This
// is the sole first-run signal: presence means a previous provisioning
// run got far enough to persist configuration.
func (s *Store) Exists(dir string) bool {
	_, err := os.Stat(s.Path(dir))
	return err == nil
}

// CreateAndPersist generates a full default document, overlays any
// environment overrides, and writes it owned by id with mode 0700.
func (s *Store) CreateAndPersist(dir string, id ownership.Identity) (Document, error) {
	doc, err := GenerateDefaults()
	if err != nil {
		return nil, err
	}
	for _, key := range Keys() {
		if value, ok := os.LookupEnv(key); ok {
			doc[key] = value
		}
	}
	if err := s.write(dir, doc, id); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadMerged reads the persisted document and merges it under the
// precedence environment > persisted > default. Keys outside the
// canonical set are carried through untouched. It never rewrites the
// file; two calls with unchanged environment return equal documents
// (modulo freshly generated defaults for keys absent from the file).
func (s *Store) LoadMerged(dir string) (Document, error) {
	path := s.Path(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	persisted := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&persisted); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	doc := make(Document, len(persisted)+len(schema))
	for key, raw := range persisted {
		doc[key] = stringify(raw)
	}
	for _, spec := range schema {
		if value, ok := os.LookupEnv(spec.name); ok {
			doc[spec.name] = value
			continue
		}
		if _, ok := persisted[spec.name]; ok {
			continue
		}
		if spec.secretBytes > 0 {
			value, err := secrets.Token(spec.secretBytes)
			if err != nil {
				return nil, err
			}
			doc[spec.name] = value
			continue
		}
		doc[spec.name] = spec.literal
	}
	return doc, nil
}

// WriteDerived writes a derived document (the secondary consumer's
// projection) unconditionally, with the same restrictive-write
// discipline as CreateAndPersist.
func (s *Store) WriteDerived(dir string, doc Document, id ownership.Identity) error {
	return s.write(dir, doc, id)
}

func (s *Store) write(dir string, doc Document, id ownership.Identity) error {
	path := s.Path(dir)
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, secretFileMode)
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write config %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close config %s: %w", path, err)
	}

	// The umask may have stripped bits at creation; Apply restores the
	// exact mode along with ownership.
	if err := s.applier.Apply(path, id, secretFileMode); err != nil {
		return err
	}
	return nil
}

// stringify tolerates hand-edited documents holding bare numbers or
// booleans where a string is expected.
func stringify(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case json.Number:
		return value.String()
	default:
		return fmt.Sprint(value)
	}
}
