/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package script

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"vidskel/internal/domain"
	"vidskel/internal/store"
)

func plan() domain.Skeleton {
	return domain.Skeleton{
		ID:          "sk",
		Name:        "Launch teaser",
		Units:       []string{"Hook", "Content", "Outro"},
		ContentType: domain.ContentShort,
		Frames: []domain.Frame{
			{ID: "f1", Name: "Question", Type: "question", Content: "Ever wondered?", UnitType: "Hook", Tone: "playful", IsTemplateExample: true},
			{ID: "f2", Name: "Demo", Type: "demo", UnitType: "Content"},
			{ID: "f3", Name: "Follow", Content: "Follow for more", UnitType: "Outro"},
			{ID: "f4", Name: "Lost", UnitType: "Gone"},
		},
	}
}

func TestOutlineGenerator(t *testing.T) {
	doc, err := OutlineGenerator{}.Generate(context.Background(), plan(), domain.VideoContext{Topic: "gadgets"})
	if err != nil {
		t.Fatal(err)
	}
	beats := doc.Beats()
	if len(beats) != 3 {
		t.Fatalf("orphaned frames must be skipped, got %d beats", len(beats))
	}
	if beats[0].FrameID != "f1" || beats[0].Tone != "playful" || beats[0].Spoken() != "Ever wondered?" {
		t.Fatalf("unexpected first beat: %+v", beats[0])
	}
	if beats[1].Spoken() != "[Demo]" {
		t.Fatalf("empty content should produce a placeholder, got %q", beats[1].Spoken())
	}
	if !strings.Contains(doc.Render(), "; topic: gadgets") {
		t.Fatalf("topic note missing:\n%s", doc.Render())
	}
	if _, err := (OutlineGenerator{}).Generate(context.Background(), domain.Skeleton{Units: []string{"A"}}, domain.VideoContext{}); !errors.Is(err, ErrEmptySkeleton) {
		t.Fatalf("expected ErrEmptySkeleton, got %v", err)
	}
}

func TestAssignFramesByPosition(t *testing.T) {
	doc, _ := Parse("## Hook\n### Opener\nVO: hi\n## Outro\n### Bye [nope]\nVO: bye\n### Extra\nVO: more")
	AssignFrames(&doc, plan(), domain.UnitMatchExact)
	b := doc.Beats()
	if b[0].FrameID != "f1" || b[1].FrameID != "f3" || b[2].FrameID != "" {
		t.Fatalf("unexpected assignment: %q %q %q", b[0].FrameID, b[1].FrameID, b[2].FrameID)
	}
	if doc.SkeletonID != "sk" {
		t.Fatalf("skeleton id not set")
	}
}

func TestApplyToStore(t *testing.T) {
	st := store.New()
	st.AddSkeleton(plan())
	doc, err := OutlineGenerator{}.Generate(context.Background(), plan(), domain.VideoContext{})
	if err != nil {
		t.Fatal(err)
	}
	if n := ApplyToStore(st, doc); n != 3 {
		t.Fatalf("expected 3 frames updated, got %d", n)
	}
	sk, _ := st.Skeleton("sk")
	f, _ := sk.Frame("f3")
	if f.Script != "VO: Follow for more" {
		t.Fatalf("unexpected script %q", f.Script)
	}
	if ApplyToStore(st, Document{SkeletonID: "missing"}) != 0 {
		t.Fatalf("unknown skeleton must update nothing")
	}
}

type fakeModels struct {
	answer string
	err    error
	prompt string
	model  string
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	for _, c := range contents {
		for _, p := range c.Parts {
			f.prompt += p.Text
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: f.answer}}}}},
	}, nil
}

func TestGenAIGenerator(t *testing.T) {
	fake := &fakeModels{answer: "```\n## Hook\n### Question [f1]\nVO: Ever wondered why?\n## Content\n### Demo\nSHOT: hands on desk\nVO: Watch this.\n```"}
	g := newGenAIGenerator(fake, "", 0, domain.UnitMatchExact)
	doc, err := g.Generate(context.Background(), plan(), domain.VideoContext{Topic: "gadgets", DurationSeconds: 30})
	if err != nil {
		t.Fatal(err)
	}
	if fake.model != DefaultModel {
		t.Fatalf("model = %q", fake.model)
	}
	if !strings.Contains(fake.prompt, "Topic: gadgets") || !strings.Contains(fake.prompt, "### Question [f1]") {
		t.Fatalf("prompt missing context or outline:\n%s", fake.prompt)
	}
	b := doc.Beats()
	if len(b) != 2 || b[0].FrameID != "f1" || b[1].FrameID != "f2" || doc.Title != "Launch teaser" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if b[1].Spoken() != "Watch this." {
		t.Fatalf("spoken = %q", b[1].Spoken())
	}

	fake.err = errors.New("quota")
	if _, err := g.Generate(context.Background(), plan(), domain.VideoContext{}); err == nil {
		t.Fatalf("expected error to propagate")
	}
	fake.err, fake.answer = nil, "  "
	if _, err := g.Generate(context.Background(), plan(), domain.VideoContext{}); err == nil {
		t.Fatalf("expected error for empty answer")
	}
}
