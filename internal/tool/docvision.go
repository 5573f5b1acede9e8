package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Analyzer answers a question about one document's content.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, content, question string) (string, error)
}

// DocumentAnalysis is the document/vision tool: it delegates a single
// document plus a question to the model provider.
type DocumentAnalysis struct {
	analyzer Analyzer
}

// NewDocumentAnalysis creates the document analysis tool.
func NewDocumentAnalysis(analyzer Analyzer) *DocumentAnalysis {
	return &DocumentAnalysis{analyzer: analyzer}
}

type documentAnalysisInput struct {
	Content  string `json:"content"`
	Question string `json:"question"`
}

// Name implements Tool.
func (d *DocumentAnalysis) Name() string { return "document_analysis" }

// Description implements Tool.
func (d *DocumentAnalysis) Description() string {
	return `Answer a question about a provided document. Input: {"content": "document text", "question": "..."}.`
}

// Validate implements Tool.
func (d *DocumentAnalysis) Validate(input json.RawMessage) error {
	var in documentAnalysisInput
	if err := json.Unmarshal(input, &in); err != nil {
		return fmt.Errorf("parse input: %w", err)
	}
	if strings.TrimSpace(in.Content) == "" {
		return errors.New("content is required")
	}
	if strings.TrimSpace(in.Question) == "" {
		return errors.New("question is required")
	}
	return nil
}

// Invoke implements Tool.
func (d *DocumentAnalysis) Invoke(ctx context.Context, input json.RawMessage) (Result, error) {
	var in documentAnalysisInput
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{}, fmt.Errorf("parse input: %w", err)
	}

	answer, err := d.analyzer.AnalyzeDocument(ctx, in.Content, in.Question)
	if err != nil {
		return Result{}, err
	}
	return Result{Content: answer}, nil
}
