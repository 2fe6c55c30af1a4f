package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/oggyb/wetogether/internal/config"
)

const defaultTimeout = 10 * time.Second

// CryptoPay talks to the Crypto Pay API (createInvoice / getInvoices).
type CryptoPay struct {
	baseURL  string
	token    string
	asset    string
	currency string
	expires  time.Duration
}

func NewCryptoPay(cfg *config.Config) *CryptoPay {
	return &CryptoPay{
		baseURL:  strings.TrimRight(cfg.Payment.APIURL, "/"),
		token:    cfg.Payment.Token,
		asset:    cfg.Payment.Asset,
		currency: cfg.Payment.Currency,
		expires:  cfg.Payment.MaxAge,
	}
}

type apiError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

func (e *apiError) String() string {
	if e == nil {
		return "provider returned ok=false"
	}
	return fmt.Sprintf("provider error %d %s", e.Code, e.Name)
}

type apiEnvelope[T any] struct {
	OK     bool      `json:"ok"`
	Result T         `json:"result"`
	Error  *apiError `json:"error,omitempty"`
}

type invoice struct {
	InvoiceID     int64  `json:"invoice_id"`
	Status        string `json:"status"`
	BotInvoiceURL string `json:"bot_invoice_url"`
	PayURL        string `json:"pay_url"`
}

type createInvoiceRequest struct {
	CurrencyType  string `json:"currency_type"`
	Fiat          string `json:"fiat"`
	AcceptedAsset string `json:"accepted_assets,omitempty"`
	Amount        string `json:"amount"`
	Description   string `json:"description,omitempty"`
	Payload       string `json:"payload"`
	ExpiresIn     int    `json:"expires_in,omitempty"`
}

func (c *CryptoPay) CreateIntent(ctx context.Context, amount decimal.Decimal, userID uint64, memo string) (Intent, error) {
	req := createInvoiceRequest{
		CurrencyType:  "fiat",
		Fiat:          c.currency,
		AcceptedAsset: c.asset,
		Amount:        amount.StringFixed(2),
		Description:   memo,
		Payload:       fmt.Sprintf("user_%d_amount_%s", userID, amount.StringFixed(2)),
		ExpiresIn:     int(c.expires.Seconds()),
	}

	agent := fiber.Post(c.baseURL + "/createInvoice").
		Set("Crypto-Pay-API-Token", c.token).
		Timeout(timeoutFor(ctx)).
		JSON(req)

	var resp apiEnvelope[invoice]
	if err := c.do(agent, &resp); err != nil {
		return Intent{}, fmt.Errorf("createInvoice: %w", err)
	}
	if !resp.OK {
		return Intent{}, fmt.Errorf("createInvoice: %s", resp.Error)
	}

	payURL := resp.Result.BotInvoiceURL
	if payURL == "" {
		payURL = resp.Result.PayURL
	}
	return Intent{ID: fmt.Sprintf("%d", resp.Result.InvoiceID), PayURL: payURL}, nil
}

func (c *CryptoPay) PollStatus(ctx context.Context, intentID string) (Status, error) {
	agent := fiber.Get(c.baseURL + "/getInvoices?invoice_ids=" + url.QueryEscape(intentID)).
		Set("Crypto-Pay-API-Token", c.token).
		Timeout(timeoutFor(ctx))

	var resp apiEnvelope[struct {
		Items []invoice `json:"items"`
	}]
	if err := c.do(agent, &resp); err != nil {
		return "", fmt.Errorf("getInvoices: %w", err)
	}
	if !resp.OK {
		return "", fmt.Errorf("getInvoices: %s", resp.Error)
	}
	if len(resp.Result.Items) == 0 {
		return "", ErrUnknownIntent
	}

	switch resp.Result.Items[0].Status {
	case "paid":
		return StatusPaid, nil
	case "expired":
		return StatusExpired, nil
	default:
		// "active" and anything new the provider adds
		return StatusPending, nil
	}
}

func (c *CryptoPay) do(agent *fiber.Agent, out any) error {
	if err := agent.Parse(); err != nil {
		return err
	}
	code, body, errs := agent.Struct(out)
	if code != 0 && code != fiber.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", code, truncate(body, 200))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func timeoutFor(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
	}
	return defaultTimeout
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
