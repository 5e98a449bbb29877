package shopify

import (
	"testing"
)

func TestOrderPayloadMetafields(t *testing.T) {
	payload := orderPayload(OrderRequest{
		CheckoutToken: "chk_1",
		Email:         "buyer@example.com",
		TotalCents:    12999,
		Currency:      "USD",
		TransactionID: "txn_1",
		CardCount:     3,
	})

	order, ok := payload["order"].(map[string]any)
	if !ok {
		t.Fatal("payload missing order object")
	}
	if got := order["financial_status"]; got != "paid" {
		t.Errorf("financial_status = %v, want paid", got)
	}

	metafields, ok := order["metafields"].([]map[string]any)
	if !ok {
		t.Fatal("order missing metafields")
	}
	want := map[string]string{
		"split_payment":  "true",
		"transaction_id": "txn_1",
		"payment_count":  "3",
	}
	for _, field := range metafields {
		key := field["key"].(string)
		wantValue, known := want[key]
		if !known {
			t.Errorf("unexpected metafield %q", key)
			continue
		}
		if field["namespace"] != "splitpay" {
			t.Errorf("metafield %s namespace = %v, want splitpay", key, field["namespace"])
		}
		if field["value"] != wantValue {
			t.Errorf("metafield %s value = %v, want %s", key, field["value"], wantValue)
		}
		delete(want, key)
	}
	for key := range want {
		t.Errorf("metafield %q not sent", key)
	}
}

func TestOrderPayloadAmounts(t *testing.T) {
	payload := orderPayload(OrderRequest{TotalCents: 12999, Currency: "USD", CardCount: 2})
	order := payload["order"].(map[string]any)

	transactions := order["transactions"].([]map[string]any)
	if len(transactions) != 1 {
		t.Fatalf("transactions = %d, want 1", len(transactions))
	}
	if got := transactions[0]["amount"]; got != "129.99" {
		t.Errorf("transaction amount = %v, want 129.99", got)
	}

	items := order["line_items"].([]map[string]any)
	if got := items[0]["price"]; got != "129.99" {
		t.Errorf("line item price = %v, want 129.99", got)
	}
}
