package deploy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bianoble/pkgrelay/internal/transform"
)

// Definition is the build definition that produced a deployment. The
// raw document is kept verbatim so it survives a read/write cycle
// untouched; only the fields this module interprets are decoded.
type Definition struct {
	raw  json.RawMessage
	head definitionHead
}

type definitionHead struct {
	Name    string                    `json:"name"`
	Version string                    `json:"version"`
	Setting map[string]settingDefault `json:"setting"`
}

type settingDefault struct {
	DefaultValue any `json:"defaultValue"`
}

// NewDefinition builds a definition from a document. The document must
// be a JSON object carrying at least a name.
func NewDefinition(doc any) (Definition, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return Definition{}, err
	}
	var d Definition
	if err := d.UnmarshalJSON(data); err != nil {
		return Definition{}, err
	}
	return d, nil
}

// IsZero reports whether the definition is empty.
func (d Definition) IsZero() bool {
	return len(d.raw) == 0
}

// RawName returns the name exactly as written, before interpolation.
func (d Definition) RawName() string { return d.head.Name }

// RawVersion returns the version exactly as written, before interpolation.
func (d Definition) RawVersion() string { return d.head.Version }

// Name renders the package name against ctx.
func (d Definition) Name(ctx transform.Context) (string, error) {
	name, err := transform.Render(d.head.Name, ctx)
	if err != nil {
		return "", fmt.Errorf("rendering package name: %w", err)
	}
	return strings.TrimSpace(name), nil
}

// Version renders the package version against ctx. An empty result
// means the definition carries no version.
func (d Definition) Version(ctx transform.Context) (string, error) {
	version, err := transform.Render(d.head.Version, ctx)
	if err != nil {
		return "", fmt.Errorf("rendering package version: %w", err)
	}
	return strings.TrimSpace(version), nil
}

// Settings returns the declared setting defaults overlaid with opts.
func (d Definition) Settings(opts map[string]string) map[string]string {
	defaults := make(map[string]string, len(d.head.Setting))
	for k, v := range d.head.Setting {
		if v.DefaultValue != nil {
			defaults[k] = fmt.Sprint(v.DefaultValue)
		}
	}
	return transform.MergeVars(defaults, opts)
}

func (d Definition) MarshalJSON() ([]byte, error) {
	if len(d.raw) == 0 {
		return []byte("{}"), nil
	}
	return d.raw, nil
}

func (d *Definition) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*d = Definition{}
		return nil
	}
	var head definitionHead
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return fmt.Errorf("decoding definition: %w", err)
	}
	d.raw = append(json.RawMessage(nil), trimmed...)
	d.head = head
	return nil
}

// InitialContext returns the template context a definition's name and
// version are rendered against: resolved settings, chain id and the
// decoded publish metadata.
func InitialContext(info *Info) transform.Context {
	ctx := transform.Context{
		"settings": info.Def.Settings(info.Options),
		"chainId":  info.ChainID,
	}
	var meta map[string]any
	if len(info.Meta) > 0 && json.Unmarshal(info.Meta, &meta) == nil && meta != nil {
		ctx["meta"] = meta
	} else {
		ctx["meta"] = map[string]any{}
	}
	return ctx
}
