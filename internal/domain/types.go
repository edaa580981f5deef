/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import (
	"fmt"
	"strings"
)

// This file defines the core data model for video skeleton planning.
// A skeleton keeps a single flat frame list; a frame's place inside its unit
// is its relative order among frames with the same UnitType.

// ContentType distinguishes short-form from long-form plans.
type ContentType string

const (
	ContentShort ContentType = "short"
	ContentLong  ContentType = "long"
)

// Valid reports whether c is one of the known content types.
func (c ContentType) Valid() bool { return c == ContentShort || c == ContentLong }

// Transition describes how a frame hands over to the next one.
type Transition string

const (
	TransitionNone             Transition = ""
	TransitionSmooth           Transition = "smooth"
	TransitionPatternInterrupt Transition = "pattern-interrupt"
	TransitionContentShift     Transition = "content-shift"
)

// ParseTransition accepts the wire names (case-insensitive). Empty input clears.
func ParseTransition(s string) (Transition, error) {
	switch t := Transition(strings.ToLower(strings.TrimSpace(s))); t {
	case TransitionNone, TransitionSmooth, TransitionPatternInterrupt, TransitionContentShift:
		return t, nil
	default:
		return TransitionNone, fmt.Errorf("unknown transition %q", s)
	}
}

// Skeleton is a named, ordered video-structure plan.
type Skeleton struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Units       []string    `json:"units"`
	Frames      []Frame     `json:"frames"`
	ContentType ContentType `json:"contentType"`
}

// Frame is a single content block assigned to a unit.
type Frame struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Type              string     `json:"type"`
	Content           string     `json:"content"`
	UnitType          string     `json:"unitType"`
	Tone              string     `json:"tone,omitempty"`
	Filter            string     `json:"filter,omitempty"`
	Transition        Transition `json:"transition,omitempty"`
	Script            string     `json:"script,omitempty"`
	IsTemplateExample bool       `json:"isTemplateExample,omitempty"`
}

// VideoContext is per-skeleton briefing data kept beside the skeleton.
type VideoContext struct {
	Topic           string `json:"topic,omitempty"`
	Audience        string `json:"audience,omitempty"`
	Goal            string `json:"goal,omitempty"`
	Platform        string `json:"platform,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// FrameTemplate is an immutable library record used to create new frames.
// Category is the unit family the template was written for (hook, content, outro).
type FrameTemplate struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Category    string `json:"category" yaml:"category"`
	Example     string `json:"example" yaml:"example"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// SkeletonTemplate seeds a whole skeleton. Frames reference frame templates by
// id and name the unit they start in.
type SkeletonTemplate struct {
	ID          string              `json:"id" yaml:"id"`
	Name        string              `json:"name" yaml:"name"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	ContentType ContentType         `json:"contentType" yaml:"contentType"`
	Units       []string            `json:"units" yaml:"units"`
	Frames      []TemplateFrameSlot `json:"frames" yaml:"frames"`
}

// TemplateFrameSlot places one frame template into a unit of a skeleton template.
type TemplateFrameSlot struct {
	Template string `json:"template" yaml:"template"`
	Unit     string `json:"unit" yaml:"unit"`
}

// Workspace is the persisted manifest: all skeletons plus their video contexts.
type Workspace struct {
	Version          int                     `json:"version"`
	ActiveSkeletonID string                  `json:"activeSkeletonId,omitempty"`
	Skeletons        []Skeleton              `json:"skeletons"`
	VideoContexts    map[string]VideoContext `json:"videoContexts,omitempty"`
}

// WorkspaceVersion is the manifest format version written by this build.
const WorkspaceVersion = 1
