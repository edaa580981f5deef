/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"vidskel/internal/domain"
	"vidskel/internal/script"
)

func sampleDoc() script.Document {
	return script.Document{
		Title: "Launch teaser – café edition",
		Sections: []script.Section{
			{Unit: "Hook", Beats: []script.Beat{{
				FrameID: "f1", Name: "Question", Tone: "playful", Transition: domain.TransitionSmooth,
				Lines: []script.Line{
					{Type: script.LineVoiceover, Label: "VO", Text: "What if your morning coffee could do more?\nWatch this."},
					{Type: script.LineDirection, Label: "SHOT", Text: "close-up on the cup"},
					{Type: script.LineNote, Text: "check licence"},
				},
			}}},
			{Unit: "Outro", Beats: []script.Beat{{FrameID: "f3", Name: "Follow", Lines: []script.Line{{Type: script.LineOnScreen, Label: "ON SCREEN", Text: "@vidskel"}}}}},
		},
	}
}

func TestScriptPDFCreatesFile(t *testing.T) {
	root := t.TempDir()
	opt := PDFOptions{IncludeNotes: true, ShowFrameIDs: true, Author: "Tester", BaseDir: root, Context: &domain.VideoContext{Topic: "coffee", DurationSeconds: 45}}
	if err := ScriptPDF(sampleDoc(), "teaser.pdf", opt); err != nil {
		t.Fatalf("export: %v", err)
	}
	out := filepath.Join(root, "exports", "teaser.pdf")
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("not a pdf: %q", data[:min(len(data), 8)])
	}
}

func TestWriteScriptPDFStreams(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteScriptPDF(&buf, script.Document{}, PDFOptions{PageSize: "letter"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("empty output")
	}
	if err := ScriptPDF(sampleDoc(), " ", PDFOptions{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
