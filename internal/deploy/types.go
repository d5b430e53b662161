// Package deploy defines the persisted shape of a built package: the
// build definition, the ordered step state and the nested artifacts
// through which packages import other packages.
package deploy

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/containerd/errdefs"
)

// Status records whether every step of a build completed.
type Status string

const (
	StatusComplete Status = "complete"
	StatusPartial  Status = "partial"
)

// Info is the persisted record of one built package.
type Info struct {
	Def     Definition        `json:"def"`
	State   State             `json:"state"`
	Meta    json.RawMessage   `json:"meta"`
	MiscURL string            `json:"miscUrl"`
	Options map[string]string `json:"options"`
	ChainID int64             `json:"chainId"`
	Status  Status            `json:"status"`
}

type infoAlias Info

// MarshalJSON always writes every field; absent values are written as
// empty objects rather than omitted.
func (i Info) MarshalJSON() ([]byte, error) {
	a := infoAlias(i)
	if len(a.Meta) == 0 {
		a.Meta = json.RawMessage("{}")
	}
	if a.Options == nil {
		a.Options = map[string]string{}
	}
	if a.Status == "" {
		a.Status = StatusComplete
	}
	return json.Marshal(a)
}

// UnmarshalJSON treats a missing status as complete.
func (i *Info) UnmarshalJSON(data []byte) error {
	var a infoAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Status == "" {
		a.Status = StatusComplete
	}
	*i = Info(a)
	return nil
}

// Validate checks the record before it is written.
func (i *Info) Validate() error {
	if i == nil {
		return fmt.Errorf("deployment info is nil: %w", errdefs.ErrInvalidArgument)
	}
	if i.Def.IsZero() {
		return fmt.Errorf("deployment info has no definition: %w", errdefs.ErrInvalidArgument)
	}
	switch i.Status {
	case "", StatusComplete, StatusPartial:
	default:
		return fmt.Errorf("invalid deployment status %q: %w", i.Status, errdefs.ErrInvalidArgument)
	}
	return nil
}

// Imports returns every import artifact in the state: steps in state
// order, then import names in sorted order within each step. The
// returned pointers alias the record, so patching one patches the
// record.
func (i *Info) Imports() []*ChainArtifacts {
	if i == nil {
		return nil
	}
	var out []*ChainArtifacts
	for _, key := range i.State.Keys() {
		st, _ := i.State.Get(key)
		out = append(out, st.Artifacts.sortedImports()...)
	}
	return out
}

// Artifacts merges the artifacts of every step, later steps winning on
// name collisions.
func (i *Info) Artifacts() ChainArtifacts {
	var merged ChainArtifacts
	if i == nil {
		return merged
	}
	for _, key := range i.State.Keys() {
		st, _ := i.State.Get(key)
		merged.merge(st.Artifacts)
	}
	return merged
}

// Clone returns a deep copy via a JSON round trip.
func (i *Info) Clone() (*Info, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return nil, err
	}
	var out Info
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StepState is the recorded output of one build-graph node.
type StepState struct {
	Artifacts ChainArtifacts `json:"artifacts"`
	Hash      string         `json:"hash"`
	Version   int            `json:"version"`
}

// ChainArtifacts is the output of a step or a whole package. When it
// appears under Imports it describes a nested package; URL points to
// its independently stored record and Tags mark it provisioned.
type ChainArtifacts struct {
	Contracts map[string]json.RawMessage `json:"contracts,omitempty"`
	Txns      map[string]json.RawMessage `json:"txns,omitempty"`
	Extras    map[string]json.RawMessage `json:"extras,omitempty"`
	Imports   map[string]*ChainArtifacts `json:"imports,omitempty"`
	Tags      []string                   `json:"tags,omitempty"`
	URL       string                     `json:"url,omitempty"`
	Preset    string                     `json:"preset,omitempty"`
}

// BundledOutput is the name used for a ChainArtifacts nested as an import.
type BundledOutput = ChainArtifacts

// Provisioned reports whether the import is independently registrable.
// Imports without tags are inline parts of their parent.
func (a *ChainArtifacts) Provisioned() bool {
	return a != nil && len(a.Tags) > 0
}

func (a *ChainArtifacts) sortedImports() []*ChainArtifacts {
	if len(a.Imports) == 0 {
		return nil
	}
	names := make([]string, 0, len(a.Imports))
	for name := range a.Imports {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*ChainArtifacts, 0, len(names))
	for _, name := range names {
		if imp := a.Imports[name]; imp != nil {
			out = append(out, imp)
		}
	}
	return out
}

func (a *ChainArtifacts) merge(other ChainArtifacts) {
	a.Contracts = mergeRaw(a.Contracts, other.Contracts)
	a.Txns = mergeRaw(a.Txns, other.Txns)
	a.Extras = mergeRaw(a.Extras, other.Extras)
	for name, imp := range other.Imports {
		if a.Imports == nil {
			a.Imports = make(map[string]*ChainArtifacts)
		}
		a.Imports[name] = imp
	}
}

func mergeRaw(dst, src map[string]json.RawMessage) map[string]json.RawMessage {
	for k, v := range src {
		if dst == nil {
			dst = make(map[string]json.RawMessage, len(src))
		}
		dst[k] = v
	}
	return dst
}
