package payment

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultRequestURL = "https://www.liqpay.ua/api/request"
	apiVersion        = "3"
)

// ErrSignatureMismatch marks a callback whose signature does not verify; the
// payload must not be processed.
var ErrSignatureMismatch = errors.New("signature mismatch")

// Client talks to the LiqPay API. It is constructed once in main and injected;
// credentials never live in package state.
type Client struct {
	PublicKey   string
	PrivateKey  string
	RequestURL  string
	CallbackURL string
	HTTPClient  *http.Client
}

func NewClient(publicKey, privateKey, callbackURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		PublicKey:   publicKey,
		PrivateKey:  privateKey,
		RequestURL:  defaultRequestURL,
		CallbackURL: callbackURL,
		HTTPClient:  httpClient,
	}
}

// Sign computes base64(sha1(private_key + data + private_key)), the gateway's
// documented signing scheme.
func (c *Client) Sign(data string) string {
	sum := sha1.Sum([]byte(c.PrivateKey + data + c.PrivateKey))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func (c *Client) encode(params map[string]any) (data, signature string, err error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", "", fmt.Errorf("encode params: %w", err)
	}
	data = base64.StdEncoding.EncodeToString(raw)
	return data, c.Sign(data), nil
}

// CardRequest carries everything needed to authorize a card charge for an
// order.
type CardRequest struct {
	OrderID     uint
	Amount      float64
	Phone       string
	Number      string
	ExpMonth    string
	ExpYear     string
	CVV         string
	Description string
}

// AuthorizeCard asks the gateway to charge the card. The outcome arrives
// asynchronously through the callback; the synchronous response is returned
// for logging only.
func (c *Client) AuthorizeCard(ctx context.Context, req CardRequest) (map[string]any, error) {
	desc := req.Description
	if desc == "" {
		desc = " "
	}
	params := map[string]any{
		"action":         "pay",
		"version":        apiVersion,
		"public_key":     c.PublicKey,
		"order_id":       strconv.FormatUint(uint64(req.OrderID), 10),
		"amount":         fmt.Sprintf("%.2f", req.Amount),
		"phone":          req.Phone,
		"card":           req.Number,
		"card_exp_month": req.ExpMonth,
		"card_exp_year":  req.ExpYear,
		"card_cvv":       req.CVV,
		"currency":       "UAH",
		"description":    desc,
		"server_url":     c.CallbackURL,
	}
	return c.api(ctx, params)
}

func (c *Client) api(ctx context.Context, params map[string]any) (map[string]any, error) {
	data, signature, err := c.encode(params)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("data", data)
	form.Set("signature", signature)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RequestURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payment request: %w", err)
	}
	defer res.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	return body, nil
}

// CallbackPayload is the decoded body of a verified gateway callback.
type CallbackPayload struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Raw     []byte `json:"-"`
}

// VerifyCallback recomputes the signature over data and compares it byte for
// byte before decoding anything. A mismatch returns ErrSignatureMismatch and
// the payload stays unread.
func (c *Client) VerifyCallback(data, signature string) (*CallbackPayload, error) {
	if c.Sign(data) != signature {
		return nil, ErrSignatureMismatch
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode callback data: %w", err)
	}

	var payload CallbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal callback data: %w", err)
	}
	payload.Raw = raw
	return &payload, nil
}
