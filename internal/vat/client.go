package vat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

// ErrUnavailable is returned when the registry could not answer. It is never
// a statement about validity.
var ErrUnavailable = errors.New("vat validation service unavailable")

var vatIDRe = regexp.MustCompile(`^([A-Z]{2})([0-9A-Z+*.]{2,13})$`)

// unavailableUserErrors are VIES "userError" values meaning "ask again later".
var unavailableUserErrors = map[string]struct{}{
	"SERVICE_UNAVAILABLE":            {},
	"MS_UNAVAILABLE":                 {},
	"TIMEOUT":                        {},
	"MS_MAX_CONCURRENT_REQ":          {},
	"GLOBAL_MAX_CONCURRENT_REQ":      {},
	"MS_MAX_CONCURRENT_REQ_TIME":     {},
	"GLOBAL_MAX_CONCURRENT_REQ_TIME": {},
}

// Result is an explicit answer from the registry.
type Result struct {
	Valid   bool
	Name    string
	Address string
}

// Validator checks tax identifiers.
type Validator interface {
	Validate(ctx context.Context, countryCode, number string) (*Result, error)
}

// Client talks to the EU VIES REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("vat base url is required")
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	c := &Client{baseURL: trimmed, httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type viesResponse struct {
	IsValid   bool   `json:"isValid"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	UserError string `json:"userError"`
}

func (c *Client) Validate(ctx context.Context, countryCode, number string) (*Result, error) {
	country := strings.ToUpper(strings.TrimSpace(countryCode))
	number = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(number), " ", ""))
	number = strings.TrimPrefix(number, country)
	if len(country) != 2 || number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "country code and vat number are required")
	}

	endpoint := fmt.Sprintf("%s/ms/%s/vat/%s", c.baseURL, url.PathEscape(country), url.PathEscape(number))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build vies request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnavailable, fmt.Errorf("%w: %v", ErrUnavailable, err), "vies request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnavailable, ErrUnavailable, fmt.Sprintf("vies status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 300 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("vies status %d", resp.StatusCode))
	}

	var payload viesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnavailable, fmt.Errorf("%w: %v", ErrUnavailable, err), "decode vies response")
	}
	if _, ok := unavailableUserErrors[strings.ToUpper(payload.UserError)]; ok {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnavailable, ErrUnavailable, payload.UserError)
	}

	return &Result{
		Valid:   payload.IsValid,
		Name:    strings.TrimSpace(payload.Name),
		Address: strings.TrimSpace(payload.Address),
	}, nil
}

// SplitID splits "SK2020000000" into ("SK", "2020000000").
func SplitID(vatID string) (string, string, bool) {
	cleaned := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(vatID), " ", ""))
	m := vatIDRe.FindStringSubmatch(cleaned)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
