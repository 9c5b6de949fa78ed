package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// KeySet is the full collection of key records, keyed by key string. It
// keeps insertion order so that a document read from disk is written back in
// the same order and "first record" lookups are deterministic.
type KeySet struct {
	order   []string
	records map[string]*KeyRecord
}

// NewKeySet returns an empty set.
func NewKeySet() *KeySet {
	return &KeySet{records: make(map[string]*KeyRecord)}
}

// Len returns the number of records.
func (s *KeySet) Len() int {
	return len(s.order)
}

// Get returns the record stored under key.
func (s *KeySet) Get(key string) (*KeyRecord, bool) {
	rec, ok := s.records[key]
	return rec, ok
}

// Insert adds rec under rec.Key. It never overwrites: it returns false if
// the key is empty or already present.
func (s *KeySet) Insert(rec *KeyRecord) bool {
	if rec.Key == "" {
		return false
	}
	if _, exists := s.records[rec.Key]; exists {
		return false
	}
	s.records[rec.Key] = rec
	s.order = append(s.order, rec.Key)
	return true
}

// Delete removes key and reports whether it was present.
func (s *KeySet) Delete(key string) bool {
	if _, ok := s.records[key]; !ok {
		return false
	}
	delete(s.records, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// All returns the records in insertion order. The pointers alias the set.
func (s *KeySet) All() []*KeyRecord {
	out := make([]*KeyRecord, len(s.order))
	for i, k := range s.order {
		out[i] = s.records[k]
	}
	return out
}

// MarshalJSON writes the set as a JSON object in insertion order. HTML
// characters are not escaped so usernames stay readable.
func (s *KeySet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, k := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(k); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1) // Encode appends a newline
		buf.WriteByte(':')
		if err := enc.Encode(s.records[k]); err != nil {
			return nil, fmt.Errorf("encode record %q: %w", k, err)
		}
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of records, preserving document order.
// Anything other than an object (including null) is rejected, as are
// duplicate keys.
func (s *KeySet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("key set must be a JSON object, got %v", tok)
	}

	set := NewKeySet()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		rec := &KeyRecord{Key: key}
		if err := dec.Decode(rec); err != nil {
			return fmt.Errorf("record %q: %w", key, err)
		}
		rec.Key = key
		if !set.Insert(rec) {
			return fmt.Errorf("duplicate or empty key %q", key)
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after key set")
	}
	*s = *set
	return nil
}
