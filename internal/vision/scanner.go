// Package vision is the receipt recognition collaborator: it sends a receipt
// photo to Gemini and extracts the purchase total and an item summary. The
// ledger consumes only the total (to pre-fill the amount) and the item names
// (to pre-fill the note); the structured items are never trusted beyond
// display text.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"
)

var ErrNoReceiptData = errors.New("no usable receipt data in model response")

type Scanner struct {
	client *genai.Client
	model  string
}

// New creates a scanner. The genai client takes its API key from the
// GEMINI_API_KEY environment variable.
func New(ctx context.Context, model string) (*Scanner, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Scanner{client: client, model: model}, nil
}

type ReceiptItem struct {
	Name       string
	PriceCents int64
	Qty        int64
}

type Receipt struct {
	Items      []ReceiptItem
	TotalCents int64
}

// NoteSummary renders the item names as a pre-fill for the record note.
func (r Receipt) NoteSummary() string {
	if len(r.Items) == 0 {
		return ""
	}
	names := make([]string, len(r.Items))
	for i, it := range r.Items {
		names[i] = it.Name
	}
	return "小票识别: " + strings.Join(names, ", ")
}

const scanPrompt = "你是一个小票识别助手。请识别这张烘焙原材料采购小票中的商品条目、单价、数量和总金额。" +
	`请以JSON格式返回：{ "items": [{ "name": "string", "price": number, "qty": number }], "total": number }。` +
	"只返回JSON数据，不要有任何其他解释。"

// ScanReceipt sends the image to the model and parses the structured reply.
// Any failure here is a degraded-mode signal for the caller, never fatal.
func (s *Scanner) ScanReceipt(ctx context.Context, image []byte, mimeType string) (Receipt, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: scanPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     image,
					},
				},
			},
		},
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		return Receipt{}, fmt.Errorf("generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return Receipt{}, ErrNoReceiptData
	}
	return parseReceiptJSON(cleanModelJSON(rawText))
}

type receiptPayload struct {
	Items []struct {
		Name  string  `json:"name"`
		Price float64 `json:"price"`
		Qty   float64 `json:"qty"`
	} `json:"items"`
	Total float64 `json:"total"`
}

func parseReceiptJSON(s string) (Receipt, error) {
	var payload receiptPayload
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrNoReceiptData, err)
	}
	if payload.Total <= 0 || math.IsNaN(payload.Total) || math.IsInf(payload.Total, 0) {
		return Receipt{}, ErrNoReceiptData
	}

	receipt := Receipt{TotalCents: centsFromFloat(payload.Total)}
	for _, it := range payload.Items {
		if strings.TrimSpace(it.Name) == "" {
			continue
		}
		receipt.Items = append(receipt.Items, ReceiptItem{
			Name:       it.Name,
			PriceCents: centsFromFloat(it.Price),
			Qty:        int64(it.Qty),
		})
	}
	return receipt, nil
}

func centsFromFloat(v float64) int64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(math.Round(v * 100))
}

// cleanModelJSON strips Markdown fences and surrounding junk the model may
// emit despite the strict-JSON instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// Keep only the outermost JSON object if junk remains around it.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
