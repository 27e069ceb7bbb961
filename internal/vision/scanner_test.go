package vision

import (
	"errors"
	"testing"
)

func TestCleanModelJSON(t *testing.T) {
	cases := []struct {
		in  string
		out string
	}{
		{`{"total": 10}`, `{"total": 10}`},
		{"```json\n{\"total\": 10}\n```", `{"total": 10}`},
		{"```\n{\"total\": 10}\n```", `{"total": 10}`},
		{"Here is the data: {\"total\": 10} hope it helps", `{"total": 10}`},
		{"  {\"total\": 10}  ", `{"total": 10}`},
	}
	for _, tc := range cases {
		if got := cleanModelJSON(tc.in); got != tc.out {
			t.Fatalf("cleanModelJSON(%q) = %q, want %q", tc.in, got, tc.out)
		}
	}
}

func TestParseReceiptJSON(t *testing.T) {
	receipt, err := parseReceiptJSON(`{
		"items": [
			{"name": "面粉", "price": 12.5, "qty": 2},
			{"name": "黄油", "price": 30, "qty": 1},
			{"name": "", "price": 1, "qty": 1}
		],
		"total": 55.0
	}`)
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if receipt.TotalCents != 5500 {
		t.Fatalf("total = %d, want 5500", receipt.TotalCents)
	}
	if len(receipt.Items) != 2 {
		t.Fatalf("nameless items should be dropped, got %d items", len(receipt.Items))
	}
	if receipt.Items[0].PriceCents != 1250 || receipt.Items[0].Qty != 2 {
		t.Fatalf("item parse wrong: %+v", receipt.Items[0])
	}
	if got := receipt.NoteSummary(); got != "小票识别: 面粉, 黄油" {
		t.Fatalf("note summary = %q", got)
	}
}

func TestParseReceiptJSONRejectsBadPayloads(t *testing.T) {
	bads := []string{
		`not json`,
		`{"items": [], "total": 0}`,
		`{"items": [], "total": -5}`,
		`{"items": []}`,
	}
	for _, in := range bads {
		if _, err := parseReceiptJSON(in); !errors.Is(err, ErrNoReceiptData) {
			t.Fatalf("%q: got %v, want ErrNoReceiptData", in, err)
		}
	}
}

func TestEmptyReceiptNoteSummary(t *testing.T) {
	if got := (Receipt{}).NoteSummary(); got != "" {
		t.Fatalf("empty receipt should have empty summary, got %q", got)
	}
}
