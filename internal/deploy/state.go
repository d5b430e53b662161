package deploy

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// State maps step keys to their recorded state. Unlike a Go map it
// keeps insertion order, which is also the order keys appear in the
// serialized record; traversal relies on that order being stable.
type State struct {
	keys  []string
	steps map[string]StepState
}

// Set adds or replaces a step. Replacing keeps the original position.
func (s *State) Set(key string, st StepState) {
	if s.steps == nil {
		s.steps = make(map[string]StepState)
	}
	if _, ok := s.steps[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.steps[key] = st
}

// Get returns the state recorded for key.
func (s State) Get(key string) (StepState, bool) {
	st, ok := s.steps[key]
	return st, ok
}

// Keys returns step keys in insertion order.
func (s State) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

func (s State) Len() int { return len(s.keys) }

func (s State) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(s.steps[key])
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *State) UnmarshalJSON(data []byte) error {
	*s = State{}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("state: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("state: expected string key, got %v", tok)
		}
		var st StepState
		if err := dec.Decode(&st); err != nil {
			return fmt.Errorf("state: step %q: %w", key, err)
		}
		s.Set(key, st)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
