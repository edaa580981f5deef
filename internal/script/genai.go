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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"vidskel/internal/domain"
	applog "vidskel/internal/log"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// contentGenerator is the part of *genai.Models the generator uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIGenerator asks a Gemini model to write the script. The outline is
// sent as the scaffold and the answer is parsed back into a Document.
type GenAIGenerator struct {
	models  contentGenerator
	model   string
	timeout time.Duration
	match   domain.UnitMatch
	log     *slog.Logger
}

// NewGenAIGenerator creates a client for the Gemini API with apiKey.
func NewGenAIGenerator(ctx context.Context, apiKey, model string, timeout time.Duration, m domain.UnitMatch) (*GenAIGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("genai: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai: create client: %w", err)
	}
	return newGenAIGenerator(client.Models, model, timeout, m), nil
}

func newGenAIGenerator(models contentGenerator, model string, timeout time.Duration, m domain.UnitMatch) *GenAIGenerator {
	if model == "" {
		model = DefaultModel
	}
	return &GenAIGenerator{models: models, model: model, timeout: timeout, match: m, log: applog.WithComponent("script.genai")}
}

func (g *GenAIGenerator) Generate(ctx context.Context, sk domain.Skeleton, vc domain.VideoContext) (Document, error) {
	outline := Outline(sk, g.match)
	if len(outline.Beats()) == 0 {
		return Document{}, ErrEmptySkeleton
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	start := time.Now()
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(Prompt(sk, vc, g.match)), cfg)
	if err != nil {
		return Document{}, fmt.Errorf("genai: generate: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return Document{}, errors.New("genai: empty response")
	}
	doc, perrs := Parse(stripFence(text))
	for _, e := range perrs {
		g.log.Warn("model output", slog.Int("line", e.Line), slog.String("problem", e.Message))
	}
	if doc.Title == "" {
		doc.Title = sk.Name
	}
	AssignFrames(&doc, sk, g.match)
	g.log.Info("script generated",
		slog.String("skeleton", sk.ID), slog.String("model", g.model),
		slog.Int("beats", len(doc.Beats())), slog.Duration("took", time.Since(start)))
	return doc, nil
}

const systemPrompt = `You write scripts for short and long form videos.
Answer only with the script in the exact text format you are given, keeping
every heading and every [frame id] unchanged. Under each ### heading write
VO: lines for narration and ON SCREEN: or SHOT: lines for visuals.`

// Prompt renders the request sent to the model.
func Prompt(sk domain.Skeleton, vc domain.VideoContext, m domain.UnitMatch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Format: %s video.\n", sk.ContentType)
	if vc.Topic != "" {
		fmt.Fprintf(&b, "Topic: %s\n", vc.Topic)
	}
	if vc.Audience != "" {
		fmt.Fprintf(&b, "Audience: %s\n", vc.Audience)
	}
	if vc.Goal != "" {
		fmt.Fprintf(&b, "Goal: %s\n", vc.Goal)
	}
	if vc.Platform != "" {
		fmt.Fprintf(&b, "Platform: %s\n", vc.Platform)
	}
	if vc.DurationSeconds > 0 {
		fmt.Fprintf(&b, "Target length: %d seconds\n", vc.DurationSeconds)
	}
	if vc.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", vc.Notes)
	}
	b.WriteString("\nFill in this script:\n\n")
	outline := Outline(sk, m)
	for si := range outline.Sections {
		for bi := range outline.Sections[si].Beats {
			bt := &outline.Sections[si].Beats[bi]
			if f, ok := sk.Frame(bt.FrameID); ok && strings.TrimSpace(f.Content) != "" {
				bt.Lines = []Line{{Type: LineNote, Text: "idea: " + strings.ReplaceAll(f.Content, "\n", " ")}}
			}
		}
	}
	b.WriteString(outline.Render())
	return b.String()
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
