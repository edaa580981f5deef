/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export renders scripts to shareable formats.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"vidskel/internal/domain"
	"vidskel/internal/script"
)

// PDFOptions controls PDF export behavior. Units are points.
// Built-in Helvetica keeps the text vector without embedding fonts.
type PDFOptions struct {
	// PageSize is "A4" (default) or "Letter".
	PageSize string
	// IncludeNotes prints author notes in grey.
	IncludeNotes bool
	// ShowFrameIDs appends the frame id to each beat heading.
	ShowFrameIDs bool
	Author       string
	// Context is printed under the title when set.
	Context *domain.VideoContext
	// BaseDir resolves relative output paths to <BaseDir>/exports.
	BaseDir string
}

const (
	margin     = 48.0
	bodySize   = 11.0
	lineHeight = 15.0
)

// ScriptPDF writes doc to outPath.
func ScriptPDF(doc script.Document, outPath string, opt PDFOptions) error {
	if strings.TrimSpace(outPath) == "" {
		return errors.New("output path is required")
	}
	if !filepath.IsAbs(outPath) && opt.BaseDir != "" {
		outPath = filepath.Join(opt.BaseDir, "exports", outPath)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	pdf := build(doc, opt)
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// WriteScriptPDF streams doc as PDF to w.
func WriteScriptPDF(w io.Writer, doc script.Document, opt PDFOptions) error {
	pdf := build(doc, opt)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func build(doc script.Document, opt PDFOptions) *gofpdf.Fpdf {
	size := "A4"
	if strings.EqualFold(opt.PageSize, "letter") {
		size = "Letter"
	}
	pdf := gofpdf.New("P", "pt", size, "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	title := doc.Title
	if title == "" {
		title = "Untitled script"
	}
	pdf.SetTitle(title, true)
	if opt.Author != "" {
		pdf.SetAuthor(opt.Author, true)
	}
	pdf.SetCreator("vidskel", false)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-margin + 12)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(140, 140, 140)
		pdf.CellFormat(0, 10, fmt.Sprintf("%s  |  %d/{nb}", tr(title), pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()
	width, _ := pdf.GetPageSize()
	textW := width - 2*margin

	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(textW, 24, tr(title), "", "L", false)
	if c := opt.Context; c != nil {
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(90, 90, 90)
		for _, kv := range contextLines(*c) {
			pdf.MultiCell(textW, 12, tr(kv), "", "L", false)
		}
	}
	pdf.Ln(8)

	for _, sec := range doc.Sections {
		if sec.Unit != "" {
			pdf.SetFillColor(235, 235, 245)
			pdf.SetFont("Helvetica", "B", 14)
			pdf.SetTextColor(30, 30, 80)
			pdf.CellFormat(textW, 22, tr(sec.Unit), "", 1, "L", true, 0, "")
			pdf.Ln(4)
		}
		for _, bt := range sec.Beats {
			heading := bt.Name
			if opt.ShowFrameIDs && bt.FrameID != "" {
				heading += "  [" + bt.FrameID + "]"
			}
			pdf.SetFont("Helvetica", "B", 12)
			pdf.SetTextColor(0, 0, 0)
			pdf.MultiCell(textW, 16, tr(heading), "", "L", false)
			if attrs := beatAttrs(bt); attrs != "" {
				pdf.SetFont("Helvetica", "I", 9)
				pdf.SetTextColor(100, 100, 100)
				pdf.MultiCell(textW, 12, tr(attrs), "", "L", false)
			}
			for _, l := range bt.Lines {
				writeLine(pdf, tr, textW, l, opt.IncludeNotes)
			}
			pdf.Ln(6)
		}
	}
	return pdf
}

func writeLine(pdf *gofpdf.Fpdf, tr func(string) string, textW float64, l script.Line, notes bool) {
	switch l.Type {
	case script.LineNote:
		if !notes {
			return
		}
		pdf.SetFont("Helvetica", "I", 9)
		pdf.SetTextColor(150, 150, 150)
		pdf.MultiCell(textW, 12, tr("Note: "+l.Text), "", "L", false)
		return
	case script.LineVoiceover:
		pdf.SetTextColor(0, 0, 0)
	default:
		pdf.SetTextColor(60, 60, 120)
	}
	label := l.Label
	if label == "" {
		label = "VO"
	}
	pdf.SetFont("Helvetica", "B", bodySize)
	labelW := pdf.GetStringWidth(label+": ") + 2
	pdf.CellFormat(labelW, lineHeight, tr(label+":"), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", bodySize)
	pdf.MultiCell(textW-labelW, lineHeight, tr(l.Text), "", "L", false)
}

func beatAttrs(bt script.Beat) string {
	var parts []string
	if bt.Tone != "" {
		parts = append(parts, "tone: "+bt.Tone)
	}
	if bt.Filter != "" {
		parts = append(parts, "filter: "+bt.Filter)
	}
	if bt.Transition != "" {
		parts = append(parts, "transition: "+string(bt.Transition))
	}
	return strings.Join(parts, "   ")
}

func contextLines(c domain.VideoContext) []string {
	var out []string
	add := func(k, v string) {
		if strings.TrimSpace(v) != "" {
			out = append(out, k+": "+v)
		}
	}
	add("Topic", c.Topic)
	add("Audience", c.Audience)
	add("Goal", c.Goal)
	add("Platform", c.Platform)
	if c.DurationSeconds > 0 {
		out = append(out, fmt.Sprintf("Length: %ds", c.DurationSeconds))
	}
	add("Notes", c.Notes)
	return out
}
