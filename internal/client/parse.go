package client

import (
	"bytes"
	"encoding/json"
	"strconv"
)

type object map[string]json.RawMessage

func decodeObject(raw json.RawMessage, field string) (object, error) {
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, &SchemaMismatchError{Field: field, Reason: "expected an object"}
	}
	return obj, nil
}

// require checks that every field is present. null counts as present only
// when nullable is set.
func (o object) require(prefix string, nullable bool, fields ...string) error {
	for _, f := range fields {
		raw, ok := o[f]
		if !ok {
			return &SchemaMismatchError{Field: join(prefix, f), Reason: "missing"}
		}
		if !nullable && isNull(raw) {
			return &SchemaMismatchError{Field: join(prefix, f), Reason: "null"}
		}
	}
	return nil
}

func (o object) decode(prefix, field string, dst interface{}) error {
	if err := json.Unmarshal(o[field], dst); err != nil {
		return &SchemaMismatchError{Field: join(prefix, field), Reason: err.Error()}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func join(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}

// ParseAnalysis decodes the /api/v1/analyze response. Missing required
// fields are reported instead of being defaulted.
func ParseAnalysis(body []byte) (*AnalysisResult, error) {
	root, err := decodeObject(body, "$")
	if err != nil {
		return nil, err
	}

	if err := root.require("", false,
		"document_id", "filename", "analyzed_at", "is_scientific_paper",
		"text_analysis", "compliance",
	); err != nil {
		return nil, err
	}
	if err := root.require("", true, "classification_confidence"); err != nil {
		return nil, err
	}

	if raw, ok := root["paragraphs"]; ok && !isNull(raw) && !isArray(raw) {
		return nil, &SchemaMismatchError{Field: "paragraphs", Reason: "expected an array"}
	}

	compliance, err := decodeObject(root["compliance"], "compliance")
	if err != nil {
		return nil, err
	}
	if err := compliance.require("compliance", false,
		"is_compliant", "words_compliant", "paragraphs_compliant",
		"word_count", "paragraph_count", "word_difference", "paragraph_difference",
	); err != nil {
		return nil, err
	}

	textAnalysis, err := decodeObject(root["text_analysis"], "text_analysis")
	if err != nil {
		return nil, err
	}
	if err := textAnalysis.require("text_analysis", false, "total_words"); err != nil {
		return nil, err
	}

	var result AnalysisResult
	fields := []struct {
		name string
		dst  interface{}
	}{
		{"document_id", &result.DocumentID},
		{"filename", &result.Filename},
		{"analyzed_at", &result.AnalyzedAt},
		{"is_scientific_paper", &result.IsScientificPaper},
		{"text_analysis", &result.TextAnalysis},
		{"compliance", &result.Compliance},
	}
	for _, f := range fields {
		if err := root.decode("", f.name, f.dst); err != nil {
			return nil, err
		}
	}
	if err := root.decode("", "classification_confidence", &result.ClassificationConfidence); err != nil {
		return nil, err
	}
	if raw, ok := root["paragraphs"]; ok && !isNull(raw) {
		if err := root.decode("", "paragraphs", &result.Paragraphs); err != nil {
			return nil, err
		}
	}
	if raw, ok := root["processing_time_ms"]; ok && !isNull(raw) {
		if err := root.decode("", "processing_time_ms", &result.ProcessingTimeMs); err != nil {
			return nil, err
		}
	}
	if raw, ok := root["compliance_report_markdown"]; ok && !isNull(raw) {
		if err := root.decode("", "compliance_report_markdown", &result.ComplianceReportMarkdown); err != nil {
			return nil, err
		}
	}
	if result.Paragraphs == nil {
		result.Paragraphs = []Paragraph{}
	}

	return &result, nil
}

// ParseGeneration decodes the /api/generate response.
func ParseGeneration(body []byte) (*GenerateResponse, error) {
	root, err := decodeObject(body, "$")
	if err != nil {
		return nil, err
	}
	if err := root.require("", false, "success", "images"); err != nil {
		return nil, err
	}
	if !isArray(root["images"]) {
		return nil, &SchemaMismatchError{Field: "images", Reason: "expected an array"}
	}

	var rawImages []json.RawMessage
	if err := root.decode("", "images", &rawImages); err != nil {
		return nil, err
	}
	for i, raw := range rawImages {
		img, err := decodeObject(raw, imageField(i))
		if err != nil {
			return nil, err
		}
		if err := img.require(imageField(i), false, "image_data", "seed"); err != nil {
			return nil, err
		}
	}

	var resp GenerateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &SchemaMismatchError{Field: "$", Reason: err.Error()}
	}
	return &resp, nil
}

func imageField(i int) string {
	return "images[" + strconv.Itoa(i) + "]"
}
