// Package paypal содержит HTTP-клиент платёжного шлюза: создание и
// capture ордеров, возвраты и батчевые выплаты. Клиент не знает про
// леджер — только про провод шлюза.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/homemaster-backend/internal/logger"
	"github.com/ignatzorin/homemaster-backend/internal/pkg/apperror"
)

// Client клиент REST API PayPal с кэшированием OAuth токена.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient создаёт клиент шлюза. timeout ограничивает каждый сетевой
// вызов; зависший шлюз не должен останавливать выплатной свип.
func NewClient(baseURL, clientID, clientSecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// ClientID возвращает публичный идентификатор для бутстрапа SDK на клиенте.
func (c *Client) ClientID() string {
	return c.clientID
}

// Amount денежная сумма в формате шлюза.
type Amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// OrderResult результат создания или capture ордера.
type OrderResult struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	CaptureID string          `json:"-"`
	Raw       json.RawMessage `json:"-"`
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// token возвращает действующий OAuth токен, при необходимости обновляя его.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token", bytes.NewBufferString("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperror.Wrap(err, apperror.ErrCodeGateway, "шлюз недоступен")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", gatewayError("oauth", resp.StatusCode, body)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", apperror.Wrap(err, apperror.ErrCodeGateway, "не удалось разобрать ответ шлюза")
	}

	c.accessToken = tokenResp.AccessToken
	// Обновляем токен с запасом, чтобы не ловить 401 на границе срока.
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return c.accessToken, nil
}

// CreateOrder создаёт ордер шлюза на заданную сумму.
func (c *Client) CreateOrder(ctx context.Context, amount float64, currency string) (*OrderResult, error) {
	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{"amount": Amount{CurrencyCode: currency, Value: fmt.Sprintf("%.2f", amount)}},
		},
	}
	body, err := c.post(ctx, "/v2/checkout/orders", payload, "")
	if err != nil {
		return nil, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeGateway, "не удалось разобрать ответ шлюза")
	}
	return &OrderResult{ID: resp.ID, Status: resp.Status, Raw: body}, nil
}

// CaptureOrder захватывает средства по ордеру. Возвращает capture id из
// первого purchase unit; успешный ответ без capture id — нарушение
// контракта, отвечаем 500, а не 502.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*OrderResult, error) {
	body, err := c.post(ctx, "/v2/checkout/orders/"+orderID+"/capture", struct{}{}, "")
	if err != nil {
		return nil, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeGateway, "не удалось разобрать ответ шлюза")
	}

	result := &OrderResult{ID: resp.ID, Status: resp.Status, Raw: body}
	for _, pu := range resp.PurchaseUnits {
		for _, capture := range pu.Payments.Captures {
			if capture.ID != "" {
				result.CaptureID = capture.ID
				return result, nil
			}
		}
	}
	return nil, apperror.New(apperror.ErrCodeInternal, "в ответе шлюза нет capture id")
}

// RefundCapture возвращает средства по capture. amount == nil означает
// полный возврат.
func (c *Client) RefundCapture(ctx context.Context, captureID string, amount *float64, currency, reason string) error {
	payload := map[string]interface{}{}
	if amount != nil {
		payload["amount"] = Amount{CurrencyCode: currency, Value: fmt.Sprintf("%.2f", *amount)}
	}
	if reason != "" {
		payload["note_to_payer"] = reason
	}
	_, err := c.post(ctx, "/v2/payments/captures/"+captureID+"/refund", payload, "")
	return err
}

// CreatePayout отправляет единичную батчевую выплату на счёт мастера.
// batchID служит идемпотентным ключом: повтор после падения процесса не
// приводит к двойной выплате.
func (c *Client) CreatePayout(ctx context.Context, batchID, receiverEmail string, amount float64, currency string) (string, error) {
	payload := map[string]interface{}{
		"sender_batch_header": map[string]string{
			"sender_batch_id": batchID,
			"email_subject":   "Выплата за выполненную заявку",
		},
		"items": []map[string]interface{}{
			{
				"recipient_type": "EMAIL",
				"receiver":       receiverEmail,
				"amount":         map[string]string{"value": fmt.Sprintf("%.2f", amount), "currency": currency},
				"sender_item_id": batchID,
			},
		},
	}
	body, err := c.post(ctx, "/v1/payments/payouts", payload, batchID)
	if err != nil {
		return "", err
	}

	var resp struct {
		BatchHeader struct {
			PayoutBatchID string `json:"payout_batch_id"`
		} `json:"batch_header"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperror.Wrap(err, apperror.ErrCodeGateway, "не удалось разобрать ответ шлюза")
	}
	if resp.BatchHeader.PayoutBatchID == "" {
		return "", apperror.New(apperror.ErrCodeGateway, "в ответе шлюза нет payout batch id")
	}
	return resp.BatchHeader.PayoutBatchID, nil
}

// GetOrder возвращает сырой ордер со стороны шлюза.
func (c *Client) GetOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	return c.get(ctx, "/v2/checkout/orders/"+orderID)
}

// GetPayoutStatus возвращает сырой статус батча выплат со стороны шлюза.
func (c *Client) GetPayoutStatus(ctx context.Context, payoutBatchID string) (json.RawMessage, error) {
	return c.get(ctx, "/v1/payments/payouts/"+payoutBatchID)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, requestID string) (json.RawMessage, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeGateway, "шлюз недоступен")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, gatewayError(path, resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeGateway, "шлюз недоступен")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, gatewayError(path, resp.StatusCode, body)
	}
	return body, nil
}

// gatewayError логирует сырой ответ шлюза и возвращает типизированную
// ошибку без учётных данных.
func gatewayError(op string, status int, body []byte) error {
	if logger.Log != nil {
		logger.Log.WithFields(logrus.Fields{
			"op":     op,
			"status": status,
			"body":   string(body),
		}).Error("Gateway call failed")
	}
	return apperror.New(apperror.ErrCodeGateway, fmt.Sprintf("шлюз вернул ошибку (HTTP %d)", status))
}
