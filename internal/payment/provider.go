package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/igabaycare/platform/internal/shared/errors"
	"github.com/igabaycare/platform/internal/shared/metrics"
)

// Provider is a payment gateway. Implementations must respect the
// context deadline on every call.
type Provider interface {
	Name() string

	// Charge submits the transaction amount to the gateway and returns
	// the gateway's reference for the charge.
	Charge(ctx context.Context, tx *Transaction) (externalID string, err error)

	// Refund submits a compensating refund for a previously completed
	// charge. The refund transaction carries the negated amounts.
	Refund(ctx context.Context, original, refund *Transaction) error

	// VerifyCharge asks the gateway for the current status of a charge.
	// Used to reconcile ambiguous outcomes.
	VerifyCharge(ctx context.Context, externalID string) (TransactionStatus, error)
}

// Registry resolves providers by name. Charges and refunds for a
// transaction must go through the provider that recorded it; an unknown
// name is a hard error, never a silent no-op.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its own name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, errors.ProviderUnavailable(name, fmt.Sprintf("unsupported payment provider: %s", name))
	}
	return p, nil
}

// PayMongoProvider talks to the PayMongo REST API.
type PayMongoProvider struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewPayMongoProvider creates a PayMongo client. baseURL defaults to the
// production API when empty.
func NewPayMongoProvider(baseURL, secretKey string) *PayMongoProvider {
	if baseURL == "" {
		baseURL = "https://api.paymongo.com/v1"
	}
	return &PayMongoProvider{
		baseURL:   baseURL,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *PayMongoProvider) Name() string { return "paymongo" }

type paymongoPayment struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status string `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

// Charge creates a payment at the gateway. Amounts are sent in centavos.
func (p *PayMongoProvider) Charge(ctx context.Context, tx *Transaction) (string, error) {
	start := time.Now()
	defer func() { metrics.RecordProviderCall(p.Name(), "charge", time.Since(start)) }()

	body := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"amount":      int64(tx.TotalAmount * 100),
				"currency":    tx.Currency,
				"description": fmt.Sprintf("appointment %s", tx.AppointmentID),
				"metadata": map[string]any{
					"transaction_id": string(tx.ID),
				},
			},
		},
	}

	var resp paymongoPayment
	if err := p.do(ctx, http.MethodPost, "/payments", body, &resp); err != nil {
		return "", err
	}
	return resp.Data.ID, nil
}

// Refund creates a refund for the original charge.
func (p *PayMongoProvider) Refund(ctx context.Context, original, refund *Transaction) error {
	start := time.Now()
	defer func() { metrics.RecordProviderCall(p.Name(), "refund", time.Since(start)) }()

	body := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"payment_id": original.ExternalPaymentID,
				"amount":     int64(-refund.TotalAmount * 100),
				"reason":     "requested_by_customer",
			},
		},
	}

	var resp paymongoPayment
	return p.do(ctx, http.MethodPost, "/refunds", body, &resp)
}

// VerifyCharge fetches the current gateway status of a charge.
func (p *PayMongoProvider) VerifyCharge(ctx context.Context, externalID string) (TransactionStatus, error) {
	start := time.Now()
	defer func() { metrics.RecordProviderCall(p.Name(), "verify", time.Since(start)) }()

	var resp paymongoPayment
	if err := p.do(ctx, http.MethodGet, "/payments/"+externalID, nil, &resp); err != nil {
		return "", err
	}

	switch resp.Data.Attributes.Status {
	case "paid":
		return TransactionCompleted, nil
	case "failed":
		return TransactionFailed, nil
	case "refunded":
		return TransactionRefunded, nil
	default:
		return TransactionPending, nil
	}
}

func (p *PayMongoProvider) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(p.secretKey, "")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return errors.ProviderUnavailable(p.Name(), fmt.Sprintf("provider request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return errors.ProviderUnavailable(p.Name(), fmt.Sprintf("provider returned %d: %s", resp.StatusCode, string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// MockProvider is an in-memory gateway used in tests and local runs.
type MockProvider struct {
	name string

	mu           sync.Mutex
	charges      map[string]TransactionStatus
	failCharge   bool
	failRefund   bool
	failVerify   bool
	chargeCalls  int
	refundCalls  int
	verifyCalls  int
}

// NewMockProvider creates a mock gateway with the given name.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name:    name,
		charges: make(map[string]TransactionStatus),
	}
}

func (m *MockProvider) Name() string { return m.name }

// Charge records the charge as pending and returns a generated reference.
func (m *MockProvider) Charge(ctx context.Context, tx *Transaction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chargeCalls++
	if m.failCharge {
		return "", errors.ProviderUnavailable(m.name, "charge failed")
	}

	externalID := "ch_" + uuid.New().String()
	m.charges[externalID] = TransactionPending
	return externalID, nil
}

// Refund marks the original charge refunded.
func (m *MockProvider) Refund(ctx context.Context, original, refund *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refundCalls++
	if m.failRefund {
		return errors.ProviderUnavailable(m.name, "refund failed")
	}

	m.charges[original.ExternalPaymentID] = TransactionRefunded
	return nil
}

// VerifyCharge returns the recorded status for a charge.
func (m *MockProvider) VerifyCharge(ctx context.Context, externalID string) (TransactionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.verifyCalls++
	if m.failVerify {
		return "", errors.ProviderUnavailable(m.name, "verify failed")
	}

	status, ok := m.charges[externalID]
	if !ok {
		return "", errors.NotFound("charge", externalID)
	}
	return status, nil
}

// SetChargeStatus overrides the recorded status of a charge.
func (m *MockProvider) SetChargeStatus(externalID string, status TransactionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charges[externalID] = status
}

// FailCharge makes subsequent Charge calls fail.
func (m *MockProvider) FailCharge(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCharge = fail
}

// FailRefund makes subsequent Refund calls fail.
func (m *MockProvider) FailRefund(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRefund = fail
}

// FailVerify makes subsequent VerifyCharge calls fail.
func (m *MockProvider) FailVerify(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failVerify = fail
}

// RefundCalls reports how many refund calls the gateway received.
func (m *MockProvider) RefundCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refundCalls
}

var (
	_ Provider = (*PayMongoProvider)(nil)
	_ Provider = (*MockProvider)(nil)
)
