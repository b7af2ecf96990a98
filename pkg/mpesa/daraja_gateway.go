package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DarajaConfig holds credentials for the Safaricom Daraja API
type DarajaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

// DarajaGateway implements Gateway via Lipa Na M-Pesa Online (STK push)
type DarajaGateway struct {
	config DarajaConfig
	client *http.Client
	now    func() time.Time

	// Token management
	token       string
	tokenMutex  sync.RWMutex
	tokenExpiry time.Time
}

// NewDarajaGateway creates a new Daraja client
func NewDarajaGateway(config DarajaConfig) *DarajaGateway {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DarajaGateway{
		config: config,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

// getAccessToken fetches an OAuth token with the consumer credentials
func (g *DarajaGateway) getAccessToken(ctx context.Context) error {
	url := fmt.Sprintf("%s/oauth/v1/generate?grant_type=client_credentials", g.config.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(g.config.ConsumerKey, g.config.ConsumerSecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("failed to parse token response: %w", err)
	}

	expiresIn, err := strconv.Atoi(tokenResp.ExpiresIn)
	if err != nil || expiresIn <= 0 {
		expiresIn = 3599
	}

	g.tokenMutex.Lock()
	g.token = tokenResp.AccessToken
	g.tokenExpiry = g.now().Add(time.Duration(expiresIn) * time.Second)
	g.tokenMutex.Unlock()

	return nil
}

// isTokenValid checks if the current token is still valid
func (g *DarajaGateway) isTokenValid() bool {
	g.tokenMutex.RLock()
	defer g.tokenMutex.RUnlock()

	if g.token == "" {
		return false
	}

	// Refresh a minute early so in-flight requests don't race expiry
	return g.now().Before(g.tokenExpiry.Add(-time.Minute))
}

func (g *DarajaGateway) ensureValidToken(ctx context.Context) error {
	if g.isTokenValid() {
		return nil
	}
	return g.getAccessToken(ctx)
}

// password is base64(shortcode + passkey + timestamp) as Daraja requires
func (g *DarajaGateway) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(g.config.Shortcode + g.config.Passkey + timestamp))
}

// InitiatePayment sends an STK push to the subscriber's phone
func (g *DarajaGateway) InitiatePayment(ctx context.Context, msisdn string, amount int64, reference string) (*Result, error) {
	if err := g.ensureValidToken(ctx); err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	timestamp := g.now().Format("20060102150405")
	pushReq := stkPushRequest{
		BusinessShortCode: g.config.Shortcode,
		Password:          g.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            msisdn,
		PartyB:            g.config.Shortcode,
		PhoneNumber:       msisdn,
		CallBackURL:       g.config.CallbackURL,
		AccountReference:  reference,
		TransactionDesc:   "SkulBus seat",
	}

	jsonData, err := json.Marshal(pushReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal STK push request: %w", err)
	}

	url := fmt.Sprintf("%s/mpesa/stkpush/v1/processrequest", g.config.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create STK push request: %w", err)
	}

	g.tokenMutex.RLock()
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", g.token))
	g.tokenMutex.RUnlock()
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send STK push request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read STK push response: %w", err)
	}

	var pushResp stkPushResponse
	if err := json.Unmarshal(body, &pushResp); err != nil {
		return nil, fmt.Errorf("failed to parse STK push response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("payment gateway unavailable: %s", pushResp.ErrorMessage)
	}

	if resp.StatusCode != http.StatusOK || pushResp.ResponseCode != "0" {
		message := pushResp.ResponseDescription
		if message == "" {
			message = pushResp.ErrorMessage
		}
		return &Result{Success: false, Message: message}, nil
	}

	return &Result{
		Success:        true,
		TransactionRef: pushResp.CheckoutRequestID,
		Message:        pushResp.CustomerMessage,
	}, nil
}
