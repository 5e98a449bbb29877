package httpserver

import (
	"net/http"

	"github.com/splitpay/server/internal/apierrors"
	"github.com/splitpay/server/internal/checkout"
	"github.com/splitpay/server/pkg/responders"
)

type widgetInitRequest struct {
	ShopDomain    string `json:"shop_domain"`
	CheckoutToken string `json:"checkout_token"`
	Email         string `json:"email,omitempty"`
}

// widgetInit opens a split-checkout session. The total comes back from the
// platform, not from the widget.
func (h handlers) widgetInit(w http.ResponseWriter, r *http.Request) {
	var req widgetInitRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingParams, "invalid JSON body")
		return
	}

	res, err := h.checkout.Init(r.Context(), checkout.InitRequest{
		ShopDomain:    req.ShopDomain,
		CheckoutToken: req.CheckoutToken,
		Email:         req.Email,
		ClientIP:      r.RemoteAddr,
		UserAgent:     r.UserAgent(),
	})
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}

	responders.JSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"session_id":     res.SessionID,
		"transaction_id": res.TransactionID,
		"total_amount":   res.TotalCents,
		"currency":       res.Currency,
		"max_cards":      res.MaxCards,
		"min_amount":     res.MinAmountCents,
	})
}

type createPaymentIntentRequest struct {
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
}

// widgetCreatePaymentIntent adds one card's share: a manual-capture intent
// whose client secret the widget uses to collect card details.
func (h handlers) widgetCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req createPaymentIntentRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingParams, "invalid JSON body")
		return
	}

	res, err := h.checkout.AddCard(r.Context(), checkout.AddCardRequest{
		SessionID:   req.SessionID,
		AmountCents: req.Amount,
	})
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}

	responders.JSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"payment_intent_id": res.IntentID,
		"client_secret":     res.ClientSecret,
		"payment_id":        res.PaymentID,
		"amount":            res.AmountCents,
		"remaining_amount":  res.RemainingCents,
	})
}

type removePaymentRequest struct {
	SessionID       string `json:"session_id"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// widgetRemovePayment cancels one pending card and returns its amount to
// the remaining balance.
func (h handlers) widgetRemovePayment(w http.ResponseWriter, r *http.Request) {
	var req removePaymentRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingParams, "invalid JSON body")
		return
	}

	if err := h.checkout.RemoveCard(r.Context(), req.SessionID, req.PaymentIntentID); err != nil {
		writeCheckoutError(w, r, err)
		return
	}
	responders.JSON(w, http.StatusOK, map[string]any{"success": true})
}

type completeCheckoutRequest struct {
	SessionID string                `json:"session_id"`
	Payments  []paymentConfirmation `json:"payments"`
}

type paymentConfirmation struct {
	PaymentIntentID string `json:"payment_intent_id"`
	PaymentMethodID string `json:"payment_method_id"`
}

// widgetCompleteCheckout runs the all-or-nothing settlement across every
// card in the session.
func (h handlers) widgetCompleteCheckout(w http.ResponseWriter, r *http.Request) {
	var req completeCheckoutRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingParams, "invalid JSON body")
		return
	}

	cards := make([]checkout.CardConfirmation, len(req.Payments))
	for i, p := range req.Payments {
		cards[i] = checkout.CardConfirmation{IntentID: p.PaymentIntentID, MethodID: p.PaymentMethodID}
	}

	res, err := h.checkout.Complete(r.Context(), req.SessionID, cards)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}

	payload := map[string]any{
		"success":        true,
		"transaction_id": res.TransactionID,
		"card_count":     res.CardCount,
		"total_amount":   res.TotalCents,
	}
	if res.OrderID != nil {
		payload["order_id"] = *res.OrderID
	}
	if res.OrderNumber != nil {
		payload["order_number"] = *res.OrderNumber
	}
	responders.JSON(w, http.StatusOK, payload)
}
