/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package dnd turns drag-and-drop gestures into store mutations. A drop is a
// payload (what is dragged) plus a target (what it landed on); the pair of
// kinds picks exactly one mutation path, or none.
package dnd

import (
	"vidskel/internal/domain"
	"vidskel/internal/geometry"
)

// PayloadKind tags what is being dragged.
type PayloadKind string

const (
	PayloadFrame        PayloadKind = "frame"
	PayloadTemplate     PayloadKind = "template"
	PayloadSkeletonUnit PayloadKind = "skeleton-unit"
	PayloadTone         PayloadKind = "tone"
	PayloadFilter       PayloadKind = "filter"
)

// TargetKind tags what a drop can land on.
type TargetKind string

const (
	TargetUnit         TargetKind = "unit"
	TargetFrame        TargetKind = "frame"
	TargetSkeletonUnit TargetKind = "skeleton-unit"
	TargetTone         TargetKind = "tone-target"
	TargetFilter       TargetKind = "filter-target"
)

// Payload describes the dragged item.
type Payload struct {
	Kind PayloadKind `json:"kind"`
	// FrameID is set for frame payloads.
	FrameID string `json:"frameId,omitempty"`
	// UnitName is set for skeleton-unit payloads.
	UnitName string `json:"unitName,omitempty"`
	// TemplateID names a library template; Template may carry it inline.
	TemplateID string                `json:"templateId,omitempty"`
	Template   *domain.FrameTemplate `json:"template,omitempty"`
	// Value is the tone or filter being applied.
	Value string `json:"value,omitempty"`
}

// Target describes a drop zone as measured by the host.
type Target struct {
	ID   string     `json:"id"`
	Kind TargetKind `json:"kind"`
	// UnitName is the unit a unit container, unit header or frame belongs to.
	UnitName string `json:"unitName,omitempty"`
	// FrameID is the frame a frame, tone-target or filter-target belongs to.
	FrameID string        `json:"frameId,omitempty"`
	Rect    geometry.Rect `json:"rect,omitempty"`
}

// Drop is a completed gesture.
type Drop struct {
	SkeletonID string  `json:"skeletonId"`
	Payload    Payload `json:"payload"`
	// Over is nil when the pointer was released outside every target.
	Over *Target `json:"over,omitempty"`
	// Pointer is the release position; nil when the host could not read it.
	Pointer *geometry.Pt `json:"pointer,omitempty"`
}

// Path names the mutation a drop resolved to.
type Path string

const (
	PathNone         Path = "none"
	PathUnitReorder  Path = "unit-reorder"
	PathTone         Path = "tone"
	PathFilter       Path = "filter"
	PathFrameReorder Path = "frame-reorder"
	PathTemplateAdd  Path = "template-add"
	PathFrameToUnit  Path = "frame-to-unit"
)

// Outcome reports which path fired and whether the store changed.
type Outcome struct {
	Path    Path `json:"path"`
	Applied bool `json:"applied"`
	// FrameID is the created frame for template-add, otherwise the affected frame.
	FrameID string `json:"frameId,omitempty"`
}
