// Package client is a typed client for the dashboard HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harrylevesque/makerdash/internal/auth"
	"github.com/harrylevesque/makerdash/internal/files"
	"github.com/harrylevesque/makerdash/internal/models"
	"github.com/harrylevesque/makerdash/internal/wallet"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New returns a client for baseURL, e.g. "http://localhost:3000". An empty
// token sends no Authorization header.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// SetToken replaces the bearer token, e.g. after Login.
func (c *Client) SetToken(token string) { c.token = token }

// do sends body as JSON and decodes the response into out when out is not nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func makerPath(id, suffix string) string {
	p := "/api/makers/" + url.PathEscape(id)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func withLimit(path string, limit int) string {
	if limit <= 0 {
		return path
	}
	return path + "?limit=" + strconv.Itoa(limit)
}

// Health returns nil when the server answers /api/health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (auth.LoginResponse, error) {
	var out auth.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", auth.LoginRequest{Username: username, Password: password}, &out)
	if err == nil {
		c.token = out.Token
	}
	return out, err
}

func (c *Client) Dashboard(ctx context.Context) (models.DashboardSummary, error) {
	var out models.DashboardSummary
	err := c.do(ctx, http.MethodGet, "/api/dashboard", nil, &out)
	return out, err
}

func (c *Client) System(ctx context.Context) (models.SystemInfo, error) {
	var out models.SystemInfo
	err := c.do(ctx, http.MethodGet, "/api/system", nil, &out)
	return out, err
}

func (c *Client) Activity(ctx context.Context, limit int) ([]models.Activity, error) {
	var out []models.Activity
	err := c.do(ctx, http.MethodGet, withLimit("/api/activity", limit), nil, &out)
	return out, err
}

func (c *Client) ListMakers(ctx context.Context) ([]models.MakerSummary, error) {
	var out []models.MakerSummary
	err := c.do(ctx, http.MethodGet, "/api/makers", nil, &out)
	return out, err
}

func (c *Client) GetMaker(ctx context.Context, id string) (models.MakerDetail, error) {
	var out models.MakerDetail
	err := c.do(ctx, http.MethodGet, makerPath(id, ""), nil, &out)
	return out, err
}

func (c *Client) AddMaker(ctx context.Context, req models.AddMakerRequest) (models.MakerSummary, error) {
	var out models.MakerSummary
	err := c.do(ctx, http.MethodPost, "/api/makers", req, &out)
	return out, err
}

func (c *Client) RemoveMaker(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, makerPath(id, ""), nil, nil)
}

func (c *Client) StartMaker(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, makerPath(id, "start"), nil, nil)
}

func (c *Client) StopMaker(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, makerPath(id, "stop"), nil, nil)
}

func (c *Client) RestartMaker(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, makerPath(id, "restart"), nil, nil)
}

func (c *Client) Ping(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, makerPath(id, "ping"), nil, nil)
}

func (c *Client) SyncWallet(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, makerPath(id, "sync"), nil, nil)
}

func (c *Client) NewAddress(ctx context.Context, id string) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	err := c.do(ctx, http.MethodPost, makerPath(id, "address"), nil, &out)
	return out.Address, err
}

// Send pays amount sats to address at feeRate sat/vB and returns the txid. A
// zero feeRate lets the server pick its default.
func (c *Client) Send(ctx context.Context, id, address string, amount int64, feeRate float64) (string, error) {
	var out struct {
		TxID string `json:"txid"`
	}
	req := models.SendRequest{Address: address, Amount: amount, FeeRate: feeRate}
	err := c.do(ctx, http.MethodPost, makerPath(id, "send"), req, &out)
	return out.TxID, err
}

func (c *Client) Balances(ctx context.Context, id string) (models.BalanceBreakdown, error) {
	var out models.BalanceBreakdown
	err := c.do(ctx, http.MethodGet, makerPath(id, "balances"), nil, &out)
	return out, err
}

// UTXOs lists the maker's coins; kind is "", "all", "swap", "contract" or
// "fidelity".
func (c *Client) UTXOs(ctx context.Context, id, kind string) ([]wallet.UTXO, error) {
	path := makerPath(id, "utxos")
	if kind != "" {
		path += "?kind=" + url.QueryEscape(kind)
	}
	var out []wallet.UTXO
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Fidelity(ctx context.Context, id string) ([]wallet.FidelityBond, error) {
	var out []wallet.FidelityBond
	err := c.do(ctx, http.MethodGet, makerPath(id, "fidelity"), nil, &out)
	return out, err
}

func (c *Client) TorAddress(ctx context.Context, id string) (string, error) {
	var out struct {
		TorAddress string `json:"torAddress"`
	}
	err := c.do(ctx, http.MethodGet, makerPath(id, "tor-address"), nil, &out)
	return out.TorAddress, err
}

func (c *Client) DataDir(ctx context.Context, id string) (string, error) {
	var out struct {
		DataDir string `json:"dataDir"`
	}
	err := c.do(ctx, http.MethodGet, makerPath(id, "data-dir"), nil, &out)
	return out.DataDir, err
}

func (c *Client) Swaps(ctx context.Context, id string, limit int) ([]models.Swap, error) {
	var out []models.Swap
	err := c.do(ctx, http.MethodGet, withLimit(makerPath(id, "swaps"), limit), nil, &out)
	return out, err
}

func (c *Client) Logs(ctx context.Context, id string, limit int) ([]models.Activity, error) {
	var out []models.Activity
	err := c.do(ctx, http.MethodGet, withLimit(makerPath(id, "logs"), limit), nil, &out)
	return out, err
}

func (c *Client) MakerConfig(ctx context.Context, id string) (files.MakerFileConfig, error) {
	var out files.MakerFileConfig
	err := c.do(ctx, http.MethodGet, makerPath(id, "config"), nil, &out)
	return out, err
}

func (c *Client) SaveMakerConfig(ctx context.Context, id string, cfg files.MakerFileConfig) (files.MakerFileConfig, error) {
	var out files.MakerFileConfig
	err := c.do(ctx, http.MethodPut, makerPath(id, "config"), cfg, &out)
	return out, err
}

func (c *Client) Settings(ctx context.Context) (models.SettingsView, error) {
	var out models.SettingsView
	err := c.do(ctx, http.MethodGet, "/api/settings", nil, &out)
	return out, err
}

func (c *Client) SaveSettings(ctx context.Context, s models.Settings) (models.SettingsView, error) {
	var out models.SettingsView
	err := c.do(ctx, http.MethodPut, "/api/settings", s, &out)
	return out, err
}

// TestConnection tests s against Bitcoin Core, or the stored settings when s
// is nil.
func (c *Client) TestConnection(ctx context.Context, s *models.Settings) (models.BitcoinStatus, error) {
	var body any
	if s != nil {
		body = s
	}
	var out models.BitcoinStatus
	err := c.do(ctx, http.MethodPost, "/api/settings/test-connection", body, &out)
	return out, err
}

func (c *Client) ZMQConfig(ctx context.Context) (string, error) {
	var out struct {
		Config string `json:"config"`
	}
	err := c.do(ctx, http.MethodGet, "/api/settings/zmq-config", nil, &out)
	return out.Config, err
}
