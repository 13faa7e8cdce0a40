package cache

import (
	"encoding/json"
	"fmt"

	"github.com/sensorwatch/livesync/pkg/event"
)

// Key identifies one cached query result.
type Key struct {
	Domain event.Domain
	SubKey string

	// Filter is the canonical JSON of the query filter, "" for none.
	Filter string
}

// NewKey builds a key whose Filter is the canonical JSON of filter. Two
// filters with the same fields produce equal keys regardless of field
// order. A nil filter yields an empty Filter.
func NewKey(domain event.Domain, subKey string, filter any) (Key, error) {
	k := Key{Domain: domain, SubKey: subKey}
	if filter == nil {
		return k, nil
	}
	canon, err := canonical(filter)
	if err != nil {
		return Key{}, fmt.Errorf("cache key %s/%s: %w", domain, subKey, err)
	}
	if canon != "{}" && canon != "null" {
		k.Filter = canon
	}
	return k, nil
}

// MustKey is NewKey for filters known to encode.
func MustKey(domain event.Domain, subKey string, filter any) Key {
	k, err := NewKey(domain, subKey, filter)
	if err != nil {
		panic(err)
	}
	return k
}

// DecodeFilter unmarshals the key's filter into v. An empty filter
// leaves v untouched.
func (k Key) DecodeFilter(v any) error {
	if k.Filter == "" {
		return nil
	}
	return json.Unmarshal([]byte(k.Filter), v)
}

// String returns "domain/sub" or "domain/sub?{filter}".
func (k Key) String() string {
	s := string(k.Domain) + "/" + k.SubKey
	if k.Filter != "" {
		s += "?" + k.Filter
	}
	return s
}

// canonical re-encodes v through a generic value so object keys are sorted.
func canonical(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
