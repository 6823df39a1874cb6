// Package tuya implements a client for the Tuya IoT cloud: device status,
// smart-plug switch commands and IR air-conditioner commands through an IR
// gateway. Authentication uses the vendor's signed-request scheme with a
// cached project access token.
package tuya

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const tokenPath = "/v1.0/token?grant_type=1"

// tokenEarlyRefresh renews the cached token this long before the vendor's
// stated expiry.
const tokenEarlyRefresh = time.Minute

// Config holds the Tuya cloud project credentials.
type Config struct {
	AccessID  string `mapstructure:"access_id" yaml:"access_id"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
}

// Client calls the Tuya cloud API. The zero HTTPClient defaults to
// http.DefaultClient. Client is safe for concurrent use.
type Client struct {
	HTTPClient *http.Client
	Config     Config
	IR         IRConfig
	Logger     *slog.Logger

	now      func() time.Time
	lock     sync.Mutex
	token    string
	tokenExp time.Time
}

func NewClient(cfg Config, ir IRConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		HTTPClient: httpClient,
		Config:     cfg,
		IR:         ir,
		Logger:     logger,
		now:        time.Now,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Result  json.RawMessage `json:"result"`
}

type tokenResult struct {
	AccessToken string `json:"access_token"`
	ExpireTime  int64  `json:"expire_time"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.token != "" && c.now().Before(c.tokenExp) {
		return c.token, nil
	}

	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Config.BaseURL+tokenPath, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("client_id", c.Config.AccessID)
	req.Header.Set("t", timestamp)
	req.Header.Set("sign_method", "HMAC-SHA256")
	req.Header.Set("sign", tokenSignature(c.Config.AccessID, c.Config.AccessKey, timestamp, nil))

	var response envelope
	if err = c.do(req, &response); err != nil {
		return "", err
	}
	if !response.Success {
		return "", fmt.Errorf("%w: %s (code %d)", ErrAuthentication, response.Msg, response.Code)
	}
	var result tokenResult
	if err = json.Unmarshal(response.Result, &result); err != nil {
		return "", fmt.Errorf("tuya: invalid token response: %w", err)
	}
	c.token = result.AccessToken
	c.tokenExp = c.now().Add(time.Duration(result.ExpireTime)*time.Second - tokenEarlyRefresh)
	c.Logger.Debug("access token refreshed", "expires", c.tokenExp)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.token = ""
}

// call performs one signed business request. An expired-token rejection gets
// a single token refresh and retry.
func (c *Client) call(ctx context.Context, method, path string, body any, result any) error {
	response, err := c.signedCall(ctx, method, path, body)
	if err != nil {
		return err
	}
	if !response.Success && isTokenError(response.Code) {
		c.Logger.Debug("access token rejected, refreshing", "code", response.Code)
		c.invalidateToken()
		if response, err = c.signedCall(ctx, method, path, body); err != nil {
			return err
		}
	}
	if !response.Success {
		if isTokenError(response.Code) {
			return fmt.Errorf("%w: %s (code %d)", ErrAuthentication, response.Msg, response.Code)
		}
		return &APIError{Code: response.Code, Msg: response.Msg}
	}
	if result != nil {
		if err = json.Unmarshal(response.Result, result); err != nil {
			return fmt.Errorf("tuya: invalid response: %w", err)
		}
	}
	return nil
}

func (c *Client) signedCall(ctx context.Context, method, path string, body any) (envelope, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return envelope{}, err
	}

	var payload []byte
	if body != nil {
		if payload, err = json.Marshal(body); err != nil {
			return envelope{}, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return envelope{}, err
	}
	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	req.Header.Set("client_id", c.Config.AccessID)
	req.Header.Set("access_token", token)
	req.Header.Set("t", timestamp)
	req.Header.Set("sign_method", "HMAC-SHA256")
	req.Header.Set("sign", businessSignature(c.Config.AccessID, c.Config.AccessKey, token, timestamp, method, path, payload))
	req.Header.Set("Content-Type", "application/json")

	var response envelope
	if err = c.do(req, &response); err != nil {
		return envelope{}, err
	}
	return response, nil
}

func (c *Client) do(req *http.Request, response *envelope) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tuya: unexpected http status %d", resp.StatusCode)
	}
	if err = json.Unmarshal(body, response); err != nil {
		return fmt.Errorf("tuya: invalid response: %w", err)
	}
	return nil
}

type statusValue struct {
	Code  string          `json:"code"`
	Value json.RawMessage `json:"value"`
}

type deviceResult struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Online bool          `json:"online"`
	Status []statusValue `json:"status"`
}

// DeviceState is the live state of one device as reported by the cloud.
type DeviceState struct {
	Online bool
	On     bool
}

// GetStatus fetches the device and reads its power state from the status
// code the device reports it under (e.g. switch_1).
func (c *Client) GetStatus(ctx context.Context, deviceID string, statusCode string) (DeviceState, error) {
	var result deviceResult
	if err := c.call(ctx, http.MethodGet, "/v1.0/devices/"+deviceID, nil, &result); err != nil {
		return DeviceState{}, err
	}
	state := DeviceState{Online: result.Online}
	for _, status := range result.Status {
		if status.Code == statusCode {
			_ = json.Unmarshal(status.Value, &state.On)
			break
		}
	}
	return state, nil
}

type deviceCommand struct {
	Code  string `json:"code"`
	Value bool   `json:"value"`
}

type commandsRequest struct {
	Commands []deviceCommand `json:"commands"`
}

// SendCommand turns a device on or off. IR-controlled devices (control code
// ir_power) go through the IR gateway; everything else gets a standard
// switch command. Some devices register the generic "switch" code instead of
// switch_1, so a rejected switch_1 command is retried once as "switch".
func (c *Client) SendCommand(ctx context.Context, deviceID string, code string, on bool) error {
	if code == ControlCodeIR {
		return c.sendIR(ctx, on)
	}
	err := c.sendSwitch(ctx, deviceID, code, on)
	var apiErr *APIError
	if err != nil && code == "switch_1" && errors.As(err, &apiErr) {
		c.Logger.Debug("switch_1 rejected, retrying with generic switch code", "device", deviceID)
		err = c.sendSwitch(ctx, deviceID, "switch", on)
	}
	return err
}

func (c *Client) sendSwitch(ctx context.Context, deviceID string, code string, on bool) error {
	request := commandsRequest{Commands: []deviceCommand{{Code: code, Value: on}}}
	return c.call(ctx, http.MethodPost, "/v1.0/devices/"+deviceID+"/commands", request, nil)
}
