/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package templates is the library of frame and skeleton templates. The
// built-in catalog is embedded; a user catalog can add or override entries.
package templates

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	gojsonschema "github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"vidskel/internal/domain"
	applog "vidskel/internal/log"
)

//go:embed catalog.yaml
var builtinCatalog []byte

//go:embed catalog.schema.json
var catalogSchema []byte

// ErrNotFound is returned for unknown template ids.
var ErrNotFound = errors.New("template not found")

// Catalog is the on-disk shape of a template file.
type Catalog struct {
	Version   int                       `yaml:"version" json:"version"`
	Frames    []domain.FrameTemplate    `yaml:"frames,omitempty" json:"frames,omitempty"`
	Skeletons []domain.SkeletonTemplate `yaml:"skeletons,omitempty" json:"skeletons,omitempty"`
}

// Parse decodes a YAML catalog and validates it against the catalog schema.
func Parse(data []byte) (Catalog, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if raw == nil {
		return Catalog{}, errors.New("catalog is empty")
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return Catalog{}, fmt.Errorf("catalog to json: %w", err)
	}
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(catalogSchema), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return Catalog{}, fmt.Errorf("validate catalog: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Catalog{}, fmt.Errorf("catalog does not match schema: %s", strings.Join(msgs, "; "))
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	return c, nil
}

// Library is an immutable, merged set of templates.
type Library struct {
	frames    map[string]domain.FrameTemplate
	frameIDs  []string
	skeletons map[string]domain.SkeletonTemplate
	skelIDs   []string
}

// Builtin returns the embedded catalog.
func Builtin() (*Library, error) {
	c, err := Parse(builtinCatalog)
	if err != nil {
		return nil, fmt.Errorf("builtin catalog: %w", err)
	}
	return NewLibrary(c)
}

// Load returns the built-in catalog merged with the user catalog at path.
// A missing user file is not an error.
func Load(userPath string) (*Library, error) {
	l := applog.WithComponent("templates")
	base, err := Parse(builtinCatalog)
	if err != nil {
		return nil, fmt.Errorf("builtin catalog: %w", err)
	}
	if strings.TrimSpace(userPath) == "" {
		return NewLibrary(base)
	}
	data, err := os.ReadFile(userPath)
	if errors.Is(err, os.ErrNotExist) {
		return NewLibrary(base)
	}
	if err != nil {
		return nil, fmt.Errorf("read user catalog: %w", err)
	}
	user, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("user catalog %s: %w", userPath, err)
	}
	l.Info("user templates merged", slog.String("path", userPath),
		slog.Int("frames", len(user.Frames)), slog.Int("skeletons", len(user.Skeletons)))
	return NewLibrary(Merge(base, user))
}

// Merge overlays o onto c; entries with the same id are replaced in place and new ones appended.
func Merge(c, o Catalog) Catalog {
	out := Catalog{Version: c.Version}
	out.Frames = append(out.Frames, c.Frames...)
	out.Skeletons = append(out.Skeletons, c.Skeletons...)
	for _, f := range o.Frames {
		if i := indexOf(out.Frames, f.ID, func(t domain.FrameTemplate) string { return t.ID }); i >= 0 {
			out.Frames[i] = f
		} else {
			out.Frames = append(out.Frames, f)
		}
	}
	for _, s := range o.Skeletons {
		if i := indexOf(out.Skeletons, s.ID, func(t domain.SkeletonTemplate) string { return t.ID }); i >= 0 {
			out.Skeletons[i] = s
		} else {
			out.Skeletons = append(out.Skeletons, s)
		}
	}
	return out
}

func indexOf[T any](s []T, id string, key func(T) string) int {
	for i := range s {
		if key(s[i]) == id {
			return i
		}
	}
	return -1
}

// NewLibrary indexes c and checks that skeleton templates only reference
// known frame templates and their own units.
func NewLibrary(c Catalog) (*Library, error) {
	lib := &Library{
		frames:    make(map[string]domain.FrameTemplate, len(c.Frames)),
		skeletons: make(map[string]domain.SkeletonTemplate, len(c.Skeletons)),
	}
	for _, f := range c.Frames {
		if _, dup := lib.frames[f.ID]; dup {
			return nil, fmt.Errorf("duplicate frame template %q", f.ID)
		}
		lib.frames[f.ID] = f
		lib.frameIDs = append(lib.frameIDs, f.ID)
	}
	for _, s := range c.Skeletons {
		if _, dup := lib.skeletons[s.ID]; dup {
			return nil, fmt.Errorf("duplicate skeleton template %q", s.ID)
		}
		units := domain.Skeleton{Units: s.Units}
		for _, slot := range s.Frames {
			if _, ok := lib.frames[slot.Template]; !ok {
				return nil, fmt.Errorf("skeleton template %q: unknown frame template %q", s.ID, slot.Template)
			}
			if units.UnitIndex(slot.Unit, domain.UnitMatchExact) < 0 {
				return nil, fmt.Errorf("skeleton template %q: unit %q is not declared", s.ID, slot.Unit)
			}
		}
		lib.skeletons[s.ID] = s
		lib.skelIDs = append(lib.skelIDs, s.ID)
	}
	return lib, nil
}

// Frame looks up a frame template. It has the shape dnd.TemplateLookup expects.
func (l *Library) Frame(id string) (domain.FrameTemplate, bool) {
	f, ok := l.frames[id]
	return f, ok
}

// Frames returns frame templates in catalog order, optionally filtered by category.
func (l *Library) Frames(category string) []domain.FrameTemplate {
	out := make([]domain.FrameTemplate, 0, len(l.frameIDs))
	for _, id := range l.frameIDs {
		f := l.frames[id]
		if category == "" || strings.EqualFold(f.Category, category) {
			out = append(out, f)
		}
	}
	return out
}

// Categories lists the distinct frame categories, sorted.
func (l *Library) Categories() []string {
	seen := map[string]bool{}
	for _, f := range l.frames {
		seen[f.Category] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Skeleton looks up a skeleton template.
func (l *Library) Skeleton(id string) (domain.SkeletonTemplate, bool) {
	s, ok := l.skeletons[id]
	return s, ok
}

// Skeletons returns skeleton templates in catalog order.
func (l *Library) Skeletons() []domain.SkeletonTemplate {
	out := make([]domain.SkeletonTemplate, 0, len(l.skelIDs))
	for _, id := range l.skelIDs {
		out = append(out, l.skeletons[id])
	}
	return out
}

// NewFrame builds a frame from a template: fresh id, template name and type,
// example text as content, flagged as template example.
func NewFrame(t domain.FrameTemplate, unit string, newID func() string) domain.Frame {
	if newID == nil {
		newID = uuid.NewString
	}
	return domain.Frame{
		ID:                newID(),
		Name:              t.Name,
		Type:              t.Type,
		Content:           t.Example,
		UnitType:          unit,
		IsTemplateExample: true,
	}
}

// Instantiate creates a skeleton from template id. name defaults to the template name.
func (l *Library) Instantiate(id, name string, newID func() string) (domain.Skeleton, error) {
	t, ok := l.skeletons[id]
	if !ok {
		return domain.Skeleton{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if newID == nil {
		newID = uuid.NewString
	}
	if strings.TrimSpace(name) == "" {
		name = t.Name
	}
	sk := domain.Skeleton{
		ID:          newID(),
		Name:        name,
		Units:       append([]string(nil), t.Units...),
		Frames:      make([]domain.Frame, 0, len(t.Frames)),
		ContentType: t.ContentType,
	}
	for _, slot := range t.Frames {
		sk.Frames = append(sk.Frames, NewFrame(l.frames[slot.Template], slot.Unit, newID))
	}
	return sk, nil
}

// Custom creates an empty skeleton with the given units, for manual builds.
func Custom(name string, ct domain.ContentType, units []string, newID func() string) domain.Skeleton {
	if newID == nil {
		newID = uuid.NewString
	}
	if !ct.Valid() {
		ct = domain.ContentShort
	}
	return domain.Skeleton{
		ID:          newID(),
		Name:        name,
		Units:       append([]string(nil), units...),
		Frames:      []domain.Frame{},
		ContentType: ct,
	}
}
