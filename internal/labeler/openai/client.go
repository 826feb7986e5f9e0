package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"finspread/constants"
	"finspread/internal/common"
	"finspread/internal/entity"
	"finspread/internal/labeler"
)

// maxPromptChars caps how much page text reaches the model.
const maxPromptChars = 12000

func (c *Client) Name() string { return "openai" }

// Label implements labeler.Labeler over text-only chat/completions. The
// model proposes fields; its JSON is repaired, sanitized, and validated
// against the label schema before anything is trusted.
func (c *Client) Label(ctx context.Context, req labeler.LabelRequest) (labeler.LabelResult, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("labeler.openai.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"pages", len(req.Pages),
		"tables", len(req.Tables),
	)

	schema := labeler.BuildLabelJSONSchema()
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt(req)},
			{"role": "user", "content": userPrompt(req) + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Error("labeler.openai.http_error",
			"req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return labeler.LabelResult{}, fmt.Errorf("%w: %v", common.ErrStageUnavailable, err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("labeler.openai.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw))
		return labeler.LabelResult{}, fmt.Errorf("decode completion response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return labeler.LabelResult{}, fmt.Errorf("no choices in completion response")
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)

	// Repair, sanitize, then validate strictly.
	repaired, err := labeler.RepairJSON(content)
	if err != nil {
		c.log.Error("labeler.openai.repair_failed", "req_id", rid, "error", err)
		return labeler.LabelResult{}, fmt.Errorf("%w: model output unparseable: %v", common.ErrInvalidInput, err)
	}
	cleaned, droppedKeys, err := labeler.SanitizeLabelJSON([]byte(repaired), c.log)
	if err != nil {
		return labeler.LabelResult{}, fmt.Errorf("%w: sanitize model output: %v", common.ErrInvalidInput, err)
	}
	if err := labeler.ValidateJSONAgainstSchema(schema, cleaned); err != nil {
		c.log.Error("labeler.openai.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(cleaned))
		return labeler.LabelResult{}, fmt.Errorf("%w: schema validation: %v", common.ErrInvalidInput, err)
	}

	var wire struct {
		DocumentType string  `json:"document_type"`
		Confidence   float64 `json:"confidence"`
		Fields       []struct {
			RawLabel      string  `json:"raw_label"`
			RawValue      string  `json:"raw_value"`
			ProposedLabel string  `json:"proposed_label"`
			RawPeriod     string  `json:"raw_period"`
			RawCurrency   string  `json:"raw_currency"`
			Statement     string  `json:"statement"`
			Page          int     `json:"page"`
			Confidence    float64 `json:"confidence"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(cleaned, &wire); err != nil {
		return labeler.LabelResult{}, fmt.Errorf("unmarshal label payload: %w", err)
	}

	result := labeler.LabelResult{
		DocumentType: constants.StatementType(wire.DocumentType),
		Confidence:   wire.Confidence,
	}
	if result.Confidence == 0 {
		result.Confidence = 0.5
	}
	for _, f := range wire.Fields {
		result.Fields = append(result.Fields, entity.CandidateField{
			RawLabel:      f.RawLabel,
			RawValue:      f.RawValue,
			ProposedLabel: f.ProposedLabel,
			RawPeriod:     f.RawPeriod,
			RawCurrency:   f.RawCurrency,
			StatementHint: constants.StatementType(f.Statement),
			Source: entity.SourceRef{
				DocumentID: req.Document.ID,
				Coords:     entity.Coordinates{Page: f.Page},
			},
			Confidence: f.Confidence,
		})
	}
	for _, d := range droppedKeys {
		result.Warnings = append(result.Warnings, "sanitized: "+d)
	}

	c.log.Info("labeler.openai.ok",
		"req_id", rid,
		"document_type", result.DocumentType,
		"fields", len(result.Fields),
		"confidence", result.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion http error: %w", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.log.Warn("labeler.openai.body_close_error", "error", err)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("completion status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

func systemPrompt(req labeler.LabelRequest) string {
	currency := req.CurrencyHint
	if currency == "" {
		currency = "USD"
	}
	parts := []string{
		"You label financial statement line items. Return ONLY JSON matching the provided schema.",
		"For each line item emit raw_label and raw_value EXACTLY as they appear; never reformat numbers.",
		"Classify each field's statement: income_statement, balance_sheet, cash_flow_statement, or unknown.",
		"raw_period is the column header the value sits under, verbatim.",
		"Default currency is " + currency + " if none is printed.",
		"Never invent values. A field you cannot locate on the page is omitted, not guessed.",
		"Set confidence per field between 0 and 1 reflecting label certainty.",
	}
	return strings.Join(parts, " ")
}

func userPrompt(req labeler.LabelRequest) string {
	var b strings.Builder
	b.WriteString("Filename: ")
	b.WriteString(req.Document.Filename)
	b.WriteString("\n")

	for _, table := range req.Tables {
		fmt.Fprintf(&b, "\nTable %d (page %d):\n", table.TableID, table.Coords.Page)
		b.WriteString(strings.Join(table.Headers, " | "))
		b.WriteString("\n")
		for _, row := range table.Rows {
			b.WriteString(strings.Join(row, " | "))
			b.WriteString("\n")
		}
	}
	if len(req.Tables) == 0 {
		b.WriteString("\nPage text:\n")
		for _, page := range req.Pages {
			fmt.Fprintf(&b, "--- page %d ---\n%s\n", page.PageNumber, page.FullText())
		}
	}

	s := b.String()
	if len(s) > maxPromptChars {
		s = s[:maxPromptChars]
	}
	return s
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
