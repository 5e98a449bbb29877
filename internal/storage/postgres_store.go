package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/splitpay/server/internal/config"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	ownsDB bool
}

// Open connects to Postgres and applies connection pool settings.
func Open(url string, pool config.PostgresPoolConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime.Duration)
	}
	return db, nil
}

// NewPostgresStore creates a PostgreSQL-backed store from a connection URL.
func NewPostgresStore(url string, pool config.PostgresPoolConfig) (*PostgresStore, error) {
	db, err := Open(url, pool)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db, ownsDB: true}, nil
}

// NewPostgresStoreWithDB wraps an existing connection pool. The caller
// keeps ownership of db.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// DB exposes the underlying pool for health checks.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies database connectivity for health checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close releases the connection pool if this store owns it.
func (s *PostgresStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// --- Shops ---

// UpsertShop inserts a shop on first install or reactivates it on
// reinstall, refreshing the access token and clearing uninstalled_at.
// Callers may leave ID and InstalledAt empty; they are filled here.
func (s *PostgresStore) UpsertShop(ctx context.Context, shop Shop) (Shop, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	if shop.ID == "" {
		shop.ID = uuid.NewString()
	}
	if shop.InstalledAt.IsZero() {
		shop.InstalledAt = time.Now().UTC()
	}

	settings, err := json.Marshal(shop.Settings)
	if err != nil {
		return Shop{}, fmt.Errorf("marshal settings: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO stores (id, shop_domain, access_token, settings, active, installed_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		ON CONFLICT (shop_domain) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			active = TRUE,
			uninstalled_at = NULL,
			installed_at = EXCLUDED.installed_at
		RETURNING id, shop_domain, access_token, settings, active,
			installed_at, uninstalled_at, created_at, updated_at`,
		shop.ID, shop.ShopDomain, shop.AccessToken, settings, shop.InstalledAt.UTC())

	return scanShop(row)
}

// GetShopByDomain fetches a shop by its myshopify domain.
func (s *PostgresStore) GetShopByDomain(ctx context.Context, domain string) (Shop, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, shop_domain, access_token, settings, active,
			installed_at, uninstalled_at, created_at, updated_at
		FROM stores WHERE shop_domain = $1`, domain)
	return scanShop(row)
}

// GetShopByID fetches a shop by primary key.
func (s *PostgresStore) GetShopByID(ctx context.Context, id string) (Shop, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, shop_domain, access_token, settings, active,
			installed_at, uninstalled_at, created_at, updated_at
		FROM stores WHERE id = $1`, id)
	return scanShop(row)
}

// UpdateShopSettings replaces the shop's split rules.
func (s *PostgresStore) UpdateShopSettings(ctx context.Context, domain string, settings ShopSettings) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE stores SET settings = $2 WHERE shop_domain = $1`, domain, data)
	if err != nil {
		return err
	}
	return requireRows(res)
}

// DeactivateShop marks a shop uninstalled and drops its access token.
func (s *PostgresStore) DeactivateShop(ctx context.Context, domain string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE stores
		SET active = FALSE, access_token = '', uninstalled_at = now()
		WHERE shop_domain = $1`, domain)
	if err != nil {
		return err
	}
	return requireRows(res)
}

type shopScanner interface {
	Scan(dest ...any) error
}

func scanShop(row shopScanner) (Shop, error) {
	var (
		shop     Shop
		settings []byte
	)
	err := row.Scan(&shop.ID, &shop.ShopDomain, &shop.AccessToken, &settings,
		&shop.Active, &shop.InstalledAt, &shop.UninstalledAt,
		&shop.CreatedAt, &shop.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Shop{}, ErrNotFound
	}
	if err != nil {
		return Shop{}, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &shop.Settings); err != nil {
			return Shop{}, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	return shop, nil
}

// --- Transactions ---

// CreateTransaction inserts a new pending transaction.
func (s *PostgresStore) CreateTransaction(ctx context.Context, tx Transaction) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
			(id, store_id, checkout_token, total_amount, currency, status,
			 customer_email, customer_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tx.ID, tx.ShopID, tx.CheckoutToken, tx.TotalAmount, tx.Currency,
		string(tx.Status), tx.CustomerEmail, tx.CustomerIP, tx.UserAgent)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

const transactionColumns = `id, store_id, checkout_token, order_id, order_number,
	total_amount, currency, status, customer_email, customer_ip, user_agent,
	failure_reason, completed_at, created_at, updated_at`

// GetTransaction fetches a transaction by id.
func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

// GetLatestTransactionByCheckout fetches the newest transaction for one
// shop's checkout token.
func (s *PostgresStore) GetLatestTransactionByCheckout(ctx context.Context, shopID, checkoutToken string) (Transaction, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE store_id = $1 AND checkout_token = $2
		 ORDER BY created_at DESC LIMIT 1`, shopID, checkoutToken)
	return scanTransaction(row)
}

// ListTransactions returns a page of transactions plus the unpaged total.
func (s *PostgresStore) ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > 100 {
		f.PerPage = 20
	}

	where := `WHERE store_id = $1`
	args := []any{f.ShopID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if f.StartDate != nil {
		args = append(args, f.StartDate.UTC())
		where += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if f.EndDate != nil {
		args = append(args, f.EndDate.UTC())
		where += fmt.Sprintf(` AND created_at < $%d`, len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)
	query := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, tx)
	}
	return out, total, rows.Err()
}

// ClaimTransaction is the pending -> processing compare-and-set.
func (s *PostgresStore) ClaimTransaction(ctx context.Context, id string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status = $2
		WHERE id = $1 AND status = $3`,
		id, string(TransactionProcessing), string(TransactionPending))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing row from a lost race.
		if _, err := s.GetTransaction(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// SetTransactionStatus updates the transaction status and failure reason.
func (s *PostgresStore) SetTransactionStatus(ctx context.Context, id string, status TransactionStatus, failureReason *string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status = $2, failure_reason = $3
		WHERE id = $1`, id, string(status), failureReason)
	if err != nil {
		return err
	}
	return requireRows(res)
}

// CompleteTransaction stamps completion time alongside the status change.
func (s *PostgresStore) CompleteTransaction(ctx context.Context, id string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status = $2, completed_at = now()
		WHERE id = $1 AND status = $3`,
		id, string(TransactionCompleted), string(TransactionProcessing))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// SetTransactionOrder records the submitted platform order.
func (s *PostgresStore) SetTransactionOrder(ctx context.Context, id string, orderID int64, orderNumber string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET order_id = $2, order_number = $3
		WHERE id = $1`, id, orderID, orderNumber)
	if err != nil {
		return err
	}
	return requireRows(res)
}

// ListCompletedWithoutOrder finds captured transactions whose order
// submission never landed, for the startup/periodic reconciler.
func (s *PostgresStore) ListCompletedWithoutOrder(ctx context.Context, limit int) ([]Transaction, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE status = $1 AND order_id IS NULL
		ORDER BY completed_at ASC LIMIT $2`,
		string(TransactionCompleted), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// RedactCustomerData clears buyer PII for GDPR redaction requests.
func (s *PostgresStore) RedactCustomerData(ctx context.Context, shopID string) (int64, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET customer_email = '', customer_ip = '', user_agent = ''
		WHERE store_id = $1`, shopID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanTransaction(row shopScanner) (Transaction, error) {
	var (
		tx     Transaction
		status string
	)
	err := row.Scan(&tx.ID, &tx.ShopID, &tx.CheckoutToken, &tx.OrderID,
		&tx.OrderNumber, &tx.TotalAmount, &tx.Currency, &status,
		&tx.CustomerEmail, &tx.CustomerIP, &tx.UserAgent,
		&tx.FailureReason, &tx.CompletedAt, &tx.CreatedAt, &tx.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, err
	}
	tx.Status = TransactionStatus(status)
	return tx, nil
}

// --- Payments ---

const paymentColumns = `id, transaction_id, provider_intent_id, provider_method_id,
	amount, status, card_brand, card_last4, card_exp_month, card_exp_year,
	failure_code, failure_message, authorized_at, captured_at, voided_at,
	created_at, updated_at`

// CreatePayment inserts a pending payment. A reused provider intent id
// yields ErrDuplicate.
func (s *PostgresStore) CreatePayment(ctx context.Context, p Payment) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments
			(id, transaction_id, provider_intent_id, provider_method_id, amount, status)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`,
		p.ID, p.TransactionID, p.ProviderIntentID, p.ProviderMethodID,
		p.Amount, string(p.Status))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetPayment fetches a payment by id.
func (s *PostgresStore) GetPayment(ctx context.Context, id string) (Payment, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

// GetPaymentByIntentID fetches a payment by its provider intent id.
func (s *PostgresStore) GetPaymentByIntentID(ctx context.Context, intentID string) (Payment, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider_intent_id = $1`, intentID)
	return scanPayment(row)
}

// ListPayments returns a transaction's payments in creation order.
func (s *PostgresStore) ListPayments(ctx context.Context, transactionID string) ([]Payment, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE transaction_id = $1 ORDER BY created_at ASC`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkPaymentAuthorized moves pending -> authorized and records the card
// presentation details.
func (s *PostgresStore) MarkPaymentAuthorized(ctx context.Context, id string, card CardDetails) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET
			status = $2, authorized_at = now(),
			card_brand = $3, card_last4 = $4,
			card_exp_month = $5, card_exp_year = $6,
			provider_method_id = NULLIF($7, '')
		WHERE id = $1 AND status = $8`,
		id, string(PaymentAuthorized),
		card.Brand, card.Last4, card.ExpMonth, card.ExpYear, card.MethodID,
		string(PaymentPending))
	if err != nil {
		return err
	}
	return requireTransition(res)
}

// MarkPaymentCaptured moves authorized -> captured.
func (s *PostgresStore) MarkPaymentCaptured(ctx context.Context, id string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = $2, captured_at = now()
		WHERE id = $1 AND status = $3`,
		id, string(PaymentCaptured), string(PaymentAuthorized))
	if err != nil {
		return err
	}
	return requireTransition(res)
}

// MarkPaymentVoided moves pending or authorized -> voided.
func (s *PostgresStore) MarkPaymentVoided(ctx context.Context, id string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = $2, voided_at = now()
		WHERE id = $1 AND status IN ($3, $4)`,
		id, string(PaymentVoided), string(PaymentPending), string(PaymentAuthorized))
	if err != nil {
		return err
	}
	return requireTransition(res)
}

// MarkPaymentFailed moves pending or authorized -> failed with the decline
// detail.
func (s *PostgresStore) MarkPaymentFailed(ctx context.Context, id string, code, message string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = $2, failure_code = $3, failure_message = $4
		WHERE id = $1 AND status IN ($5, $6)`,
		id, string(PaymentFailed), code, message,
		string(PaymentPending), string(PaymentAuthorized))
	if err != nil {
		return err
	}
	return requireTransition(res)
}

// MarkPaymentCapturedByIntent is the idempotent webhook variant: it reports
// whether anything changed and never regresses a terminal status.
func (s *PostgresStore) MarkPaymentCapturedByIntent(ctx context.Context, intentID string) (bool, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = $2, captured_at = COALESCE(captured_at, now())
		WHERE provider_intent_id = $1 AND status = $3`,
		intentID, string(PaymentCaptured), string(PaymentAuthorized))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkPaymentFailedByIntent is the idempotent webhook variant of
// MarkPaymentFailed.
func (s *PostgresStore) MarkPaymentFailedByIntent(ctx context.Context, intentID string, code, message string) (bool, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = $2, failure_code = $3, failure_message = $4
		WHERE provider_intent_id = $1 AND status IN ($5, $6)`,
		intentID, string(PaymentFailed), code, message,
		string(PaymentPending), string(PaymentAuthorized))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkPaymentRefunded moves captured -> refunded.
func (s *PostgresStore) MarkPaymentRefunded(ctx context.Context, id string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = $2
		WHERE id = $1 AND status = $3`,
		id, string(PaymentRefunded), string(PaymentCaptured))
	if err != nil {
		return err
	}
	return requireTransition(res)
}

func scanPayment(row shopScanner) (Payment, error) {
	var (
		p        Payment
		status   string
		methodID sql.NullString
		brand    sql.NullString
		last4    sql.NullString
		expMonth sql.NullInt64
		expYear  sql.NullInt64
		failCode sql.NullString
		failMsg  sql.NullString
	)
	err := row.Scan(&p.ID, &p.TransactionID, &p.ProviderIntentID, &methodID,
		&p.Amount, &status, &brand, &last4, &expMonth, &expYear,
		&failCode, &failMsg, &p.AuthorizedAt, &p.CapturedAt, &p.VoidedAt,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, err
	}
	p.Status = PaymentStatus(status)
	p.ProviderMethodID = methodID.String
	p.CardBrand = brand.String
	p.CardLast4 = last4.String
	p.CardExpMonth = int(expMonth.Int64)
	p.CardExpYear = int(expYear.Int64)
	p.FailureCode = failCode.String
	p.FailureMessage = failMsg.String
	return p, nil
}

// --- Refunds ---

// CreateRefunds inserts a refund row per payment share inside one database
// transaction.
func (s *PostgresStore) CreateRefunds(ctx context.Context, refunds []Refund) error {
	if len(refunds) == 0 {
		return nil
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = dbtx.Rollback() }()

	for _, r := range refunds {
		_, err := dbtx.ExecContext(ctx, `
			INSERT INTO refunds
				(id, transaction_id, payment_id, provider_refund_id, amount,
				 status, reason, initiated_by, failure_reason)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)`,
			r.ID, r.TransactionID, r.PaymentID, r.ProviderRefundID,
			r.Amount, string(r.Status), r.Reason, string(r.InitiatedBy),
			r.FailureReason)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if err != nil {
			return err
		}
	}
	return dbtx.Commit()
}

// ListRefunds returns a transaction's refund rows in creation order.
func (s *PostgresStore) ListRefunds(ctx context.Context, transactionID string) ([]Refund, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, payment_id, COALESCE(provider_refund_id, ''),
			amount, status, COALESCE(reason, ''), initiated_by, failure_reason,
			created_at, updated_at
		FROM refunds WHERE transaction_id = $1 ORDER BY created_at ASC`,
		transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Refund
	for rows.Next() {
		var (
			r         Refund
			status    string
			initiator string
		)
		if err := rows.Scan(&r.ID, &r.TransactionID, &r.PaymentID,
			&r.ProviderRefundID, &r.Amount, &status, &r.Reason, &initiator,
			&r.FailureReason, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Status = RefundStatus(status)
		r.InitiatedBy = RefundInitiator(initiator)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SumRefunded totals succeeded refunds for a transaction.
func (s *PostgresStore) SumRefunded(ctx context.Context, transactionID string) (int64, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var sum int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM refunds
		WHERE transaction_id = $1 AND status = $2`,
		transactionID, string(RefundSucceeded)).Scan(&sum)
	return sum, err
}

// SetRefundStatus finalizes a refund row after the provider call.
func (s *PostgresStore) SetRefundStatus(ctx context.Context, id string, status RefundStatus, providerRefundID string, failureReason *string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE refunds SET
			status = $2,
			provider_refund_id = COALESCE(NULLIF($3, ''), provider_refund_id),
			failure_reason = $4
		WHERE id = $1`, id, string(status), providerRefundID, failureReason)
	if err != nil {
		return err
	}
	return requireRows(res)
}

// SetRefundStatusByProviderID reconciles a refund from a webhook event.
// Unknown provider refund ids report false without error.
func (s *PostgresStore) SetRefundStatusByProviderID(ctx context.Context, providerRefundID string, status RefundStatus) (bool, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE refunds SET status = $2
		WHERE provider_refund_id = $1 AND status <> $2`,
		providerRefundID, string(status))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// --- Stats ---

// GetShopStats aggregates transaction counts and money volume for a shop.
func (s *PostgresStore) GetShopStats(ctx context.Context, shopID string) (Stats, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	stats := Stats{TransactionsByStatus: make(map[TransactionStatus]int64)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM transactions
		WHERE store_id = $1 GROUP BY status`, shopID)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.TransactionsByStatus[TransactionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(p.amount), 0)
		FROM payments p JOIN transactions t ON t.id = p.transaction_id
		WHERE t.store_id = $1 AND p.status IN ($2, $3)`,
		shopID, string(PaymentCaptured), string(PaymentRefunded)).Scan(&stats.CapturedVolume)
	if err != nil {
		return Stats{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(r.amount), 0)
		FROM refunds r JOIN transactions t ON t.id = r.transaction_id
		WHERE t.store_id = $1 AND r.status = $2`,
		shopID, string(RefundSucceeded)).Scan(&stats.RefundedVolume)
	if err != nil {
		return Stats{}, err
	}

	return stats, nil
}

func requireRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func requireTransition(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
