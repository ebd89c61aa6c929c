// Package sourcemeta persists the per-source build record that lets the
// filer skip rebuilding unchanged files across restarts.
package sourcemeta

import (
	"encoding/json"
	"errors"
	"fmt"

	"gro/builder"
	"gro/mime"
)

// ErrCorrupt is returned by Unmarshal for records that cannot be parsed.
var ErrCorrupt = errors.New("sourcemeta: corrupt record")

// Data is the logical record for one source file.
type Data struct {
	SourceID    string
	ContentHash string
	Builds      []Build
}

// Build describes one build file produced from the source.
type Build struct {
	ID           string
	BuildName    string
	Dependencies []builder.Dependency // nil when the build declared none
	Encoding     mime.Encoding
}

// Serialized is the compact wire form. Fields equal to their default are
// omitted.
type Serialized struct {
	SourceID    string            `json:"source_id"`
	ContentHash string            `json:"content_hash"`
	Builds      []SerializedBuild `json:"builds"`
}

type SerializedBuild struct {
	ID           string                 `json:"id"`
	BuildName    string                 `json:"build_name"`
	Dependencies []SerializedDependency `json:"dependencies,omitempty"`
	Encoding     mime.Encoding          `json:"encoding,omitempty"`
}

type SerializedDependency struct {
	Specifier         string `json:"specifier"`
	MappedSpecifier   string `json:"mapped_specifier,omitempty"`
	OriginalSpecifier string `json:"original_specifier,omitempty"`
	BuildID           string `json:"build_id,omitempty"`
	External          bool   `json:"external,omitempty"`
}

// Serialize drops every field equal to its default: derived specifiers
// equal to the specifier, external false, utf8 encoding and nil
// dependency lists.
func Serialize(d Data) Serialized {
	s := Serialized{
		SourceID:    d.SourceID,
		ContentHash: d.ContentHash,
		Builds:      make([]SerializedBuild, 0, len(d.Builds)),
	}
	for _, b := range d.Builds {
		sb := SerializedBuild{ID: b.ID, BuildName: b.BuildName}
		if b.Encoding != mime.UTF8 {
			sb.Encoding = b.Encoding
		}
		if b.Dependencies != nil {
			sb.Dependencies = make([]SerializedDependency, 0, len(b.Dependencies))
			for _, dep := range b.Dependencies {
				sb.Dependencies = append(sb.Dependencies, serializeDependency(dep))
			}
		}
		s.Builds = append(s.Builds, sb)
	}
	return s
}

func serializeDependency(dep builder.Dependency) SerializedDependency {
	sd := SerializedDependency{Specifier: dep.Specifier, External: dep.External}
	if dep.MappedSpecifier != dep.Specifier {
		sd.MappedSpecifier = dep.MappedSpecifier
	}
	if dep.OriginalSpecifier != dep.Specifier {
		sd.OriginalSpecifier = dep.OriginalSpecifier
	}
	if dep.BuildID != dep.Specifier {
		sd.BuildID = dep.BuildID
	}
	return sd
}

// Deserialize fills the defaults Serialize dropped back in.
func Deserialize(s Serialized) Data {
	d := Data{
		SourceID:    s.SourceID,
		ContentHash: s.ContentHash,
		Builds:      make([]Build, 0, len(s.Builds)),
	}
	for _, sb := range s.Builds {
		b := Build{ID: sb.ID, BuildName: sb.BuildName, Encoding: sb.Encoding}
		if b.Encoding == "" {
			b.Encoding = mime.UTF8
		}
		if len(sb.Dependencies) > 0 {
			b.Dependencies = make([]builder.Dependency, 0, len(sb.Dependencies))
			for _, sd := range sb.Dependencies {
				b.Dependencies = append(b.Dependencies, deserializeDependency(sd))
			}
		}
		d.Builds = append(d.Builds, b)
	}
	return d
}

func deserializeDependency(sd SerializedDependency) builder.Dependency {
	dep := builder.NewDependency(sd.Specifier)
	if sd.MappedSpecifier != "" {
		dep.MappedSpecifier = sd.MappedSpecifier
	}
	if sd.OriginalSpecifier != "" {
		dep.OriginalSpecifier = sd.OriginalSpecifier
	}
	if sd.BuildID != "" {
		dep.BuildID = sd.BuildID
	}
	dep.External = sd.External
	return dep
}

// Marshal encodes d in its compact form.
func Marshal(d Data) ([]byte, error) {
	return json.MarshalIndent(Serialize(d), "", "\t")
}

// Unmarshal decodes a compact record. Records that do not parse, or that
// lack a source id, wrap ErrCorrupt.
func Unmarshal(data []byte) (Data, error) {
	var s Serialized
	if err := json.Unmarshal(data, &s); err != nil {
		return Data{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if s.SourceID == "" {
		return Data{}, fmt.Errorf("%w: missing source_id", ErrCorrupt)
	}
	return Deserialize(s), nil
}

// BuildIDs lists the build file ids recorded in d.
func (d *Data) BuildIDs() []string {
	ids := make([]string, 0, len(d.Builds))
	for _, b := range d.Builds {
		ids = append(ids, b.ID)
	}
	return ids
}
