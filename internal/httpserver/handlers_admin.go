package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/splitpay/server/internal/apierrors"
	"github.com/splitpay/server/internal/checkout"
	"github.com/splitpay/server/internal/logger"
	"github.com/splitpay/server/internal/storage"
	"github.com/splitpay/server/pkg/responders"
)

// authShop resolves the authenticated shop for an admin request.
func (h handlers) authShop(w http.ResponseWriter, r *http.Request) (storage.Shop, bool) {
	domain := shopFromContext(r.Context())
	shop, err := h.store.GetShopByDomain(r.Context(), domain)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			apierrors.WriteSimpleError(w, apierrors.ErrCodeStoreNotFound, "store is not installed")
		} else {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("admin.load_shop_failed")
			apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "internal error")
		}
		return storage.Shop{}, false
	}
	return shop, true
}

// adminStats returns aggregate volume for the dashboard.
func (h handlers) adminStats(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.authShop(w, r)
	if !ok {
		return
	}

	stats, err := h.store.GetShopStats(r.Context(), shop.ID)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("admin.stats_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "internal error")
		return
	}

	responders.JSON(w, http.StatusOK, map[string]any{
		"success":                true,
		"transactions_by_status": stats.TransactionsByStatus,
		"captured_volume":        stats.CapturedVolume,
		"refunded_volume":        stats.RefundedVolume,
	})
}

const listDateLayout = "2006-01-02"

// adminListTransactions pages through the shop's transactions, newest
// first, optionally filtered by status and creation date.
func (h handlers) adminListTransactions(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.authShop(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	filter := storage.TransactionFilter{
		ShopID:  shop.ID,
		Status:  storage.TransactionStatus(query.Get("status")),
		Page:    page,
		PerPage: limit,
	}
	if raw := query.Get("startDate"); raw != "" {
		start, err := time.Parse(listDateLayout, raw)
		if err != nil {
			apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeMissingParams, "startDate must be YYYY-MM-DD", "startDate", raw)
			return
		}
		filter.StartDate = &start
	}
	if raw := query.Get("endDate"); raw != "" {
		day, err := time.Parse(listDateLayout, raw)
		if err != nil {
			apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeMissingParams, "endDate must be YYYY-MM-DD", "endDate", raw)
			return
		}
		// Inclusive through the end of the named day.
		end := day.Add(24 * time.Hour)
		filter.EndDate = &end
	}

	transactions, total, err := h.store.ListTransactions(r.Context(), filter)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("admin.list_transactions_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "internal error")
		return
	}

	views := make([]map[string]any, len(transactions))
	for i := range transactions {
		views[i] = transactionView(transactions[i])
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"transactions": views,
		"total":        total,
		"page":         page,
		"pages":        (total + limit - 1) / limit,
		"limit":        limit,
	})
}

// adminGetTransaction returns one transaction with its payments and refund
// rows.
func (h handlers) adminGetTransaction(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.authShop(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	txn, err := h.store.GetTransaction(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			apierrors.WriteSimpleError(w, apierrors.ErrCodeTransactionNotFound, "transaction not found")
			return
		}
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("admin.get_transaction_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "internal error")
		return
	}
	// A transaction belongs to exactly one shop; other shops get a 404, not
	// a 403, so existence is not leaked.
	if txn.ShopID != shop.ID {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeTransactionNotFound, "transaction not found")
		return
	}

	payments, err := h.store.ListPayments(r.Context(), txn.ID)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("admin.list_payments_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "internal error")
		return
	}
	refunds, err := h.store.ListRefunds(r.Context(), txn.ID)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("admin.list_refunds_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "internal error")
		return
	}

	paymentViews := make([]map[string]any, len(payments))
	for i := range payments {
		paymentViews[i] = paymentView(payments[i])
	}
	refundViews := make([]map[string]any, len(refunds))
	for i := range refunds {
		refundViews[i] = refundView(refunds[i])
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"transaction": transactionView(txn),
		"payments":    paymentViews,
		"refunds":     refundViews,
	})
}

type adminRefundRequest struct {
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
}

// adminRefund distributes a refund across the transaction's captured cards.
func (h handlers) adminRefund(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.authShop(w, r)
	if !ok {
		return
	}

	var req adminRefundRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingParams, "invalid JSON body")
		return
	}

	txn, err := h.store.GetTransaction(r.Context(), req.TransactionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			apierrors.WriteSimpleError(w, apierrors.ErrCodeTransactionNotFound, "transaction not found")
			return
		}
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("admin.get_transaction_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "internal error")
		return
	}
	if txn.ShopID != shop.ID {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeTransactionNotFound, "transaction not found")
		return
	}

	summary, err := h.checkout.Refund(r.Context(), checkout.RefundRequest{
		TransactionID: req.TransactionID,
		AmountCents:   req.Amount,
		Reason:        req.Reason,
		InitiatedBy:   storage.RefundByAdmin,
	})
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}

	refundViews := make([]map[string]any, len(summary.Refunds))
	for i := range summary.Refunds {
		refundViews[i] = refundView(summary.Refunds[i])
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"refunded_amount": summary.RefundedCents,
		"failed_count":    summary.FailedCount,
		"status":          summary.TransactionStatus,
		"refunds":         refundViews,
	})
}

// adminStore returns the authenticated shop's installation record.
func (h handlers) adminStore(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.authShop(w, r)
	if !ok {
		return
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"store": map[string]any{
			"shop_domain":  shop.ShopDomain,
			"active":       shop.Active,
			"installed_at": shop.InstalledAt,
			"settings":     shop.Settings,
		},
	})
}

type adminSettingsRequest struct {
	MaxCards       int   `json:"max_cards"`
	MinAmountCents int64 `json:"min_amount_cents"`
}

// adminUpdateSettings changes the shop's split rules.
func (h handlers) adminUpdateSettings(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.authShop(w, r)
	if !ok {
		return
	}

	var req adminSettingsRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingParams, "invalid JSON body")
		return
	}
	if req.MaxCards < 2 || req.MaxCards > 5 {
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeMissingParams, "max_cards must be within [2, 5]", "max_cards", req.MaxCards)
		return
	}
	if req.MinAmountCents < 100 {
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeMissingParams, "min_amount_cents must be at least 100", "min_amount_cents", req.MinAmountCents)
		return
	}

	settings := storage.ShopSettings{MaxCards: req.MaxCards, MinAmountCents: req.MinAmountCents}
	if err := h.store.UpdateShopSettings(r.Context(), shop.ShopDomain, settings); err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("admin.update_settings_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "internal error")
		return
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"settings": settings,
	})
}

func transactionView(t storage.Transaction) map[string]any {
	view := map[string]any{
		"id":             t.ID,
		"checkout_token": t.CheckoutToken,
		"total_amount":   t.TotalAmount,
		"currency":       t.Currency,
		"status":         t.Status,
		"customer_email": t.CustomerEmail,
		"created_at":     t.CreatedAt,
	}
	if t.OrderID != nil {
		view["order_id"] = *t.OrderID
	}
	if t.OrderNumber != nil {
		view["order_number"] = *t.OrderNumber
	}
	if t.FailureReason != nil {
		view["failure_reason"] = *t.FailureReason
	}
	if t.CompletedAt != nil {
		view["completed_at"] = *t.CompletedAt
	}
	return view
}

func paymentView(p storage.Payment) map[string]any {
	view := map[string]any{
		"id":                p.ID,
		"payment_intent_id": p.ProviderIntentID,
		"amount":            p.Amount,
		"status":            p.Status,
	}
	if p.CardLast4 != "" {
		view["card_brand"] = p.CardBrand
		view["card_last4"] = p.CardLast4
	}
	if p.FailureCode != "" {
		view["failure_code"] = p.FailureCode
		view["failure_message"] = p.FailureMessage
	}
	return view
}

func refundView(r storage.Refund) map[string]any {
	view := map[string]any{
		"id":           r.ID,
		"payment_id":   r.PaymentID,
		"amount":       r.Amount,
		"status":       r.Status,
		"reason":       r.Reason,
		"initiated_by": r.InitiatedBy,
		"created_at":   r.CreatedAt,
	}
	if r.ProviderRefundID != "" {
		view["provider_refund_id"] = r.ProviderRefundID
	}
	return view
}
