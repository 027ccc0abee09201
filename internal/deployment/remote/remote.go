package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slok/wdeploy/internal/log"
	"github.com/slok/wdeploy/internal/model"
)

const maxErrorBody = 4 << 10

// ServiceConfig is the configuration for the remote deployment service.
type ServiceConfig struct {
	// BaseURL is the dashboard API root (e.g. https://api.example.com/v1).
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// Timeout is the per request timeout.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL scheme must be http or https")
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")

	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "deployment.Remote"})
	return nil
}

// Service is a deployment.Service backed by the dashboard HTTP API.
type Service struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *http.Client
	logger  log.Logger
}

// NewService creates a new remote deployment service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		client:  cfg.HTTPClient,
		logger:  cfg.Logger,
	}, nil
}

type workerJSON struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	Organization string `json:"organization"`
	Region       string `json:"region"`
	Status       string `json:"status"`
}

type errorJSON struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// ListDeployable lists the deployable workers from the API.
func (s *Service) ListDeployable(ctx context.Context, filter model.WorkerFilter) ([]model.Worker, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Organization != "" {
		q.Set("organization", filter.Organization)
	}
	if filter.Region != "" {
		q.Set("region", filter.Region)
	}
	path := "/workers"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := s.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("could not list workers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("could not list workers: unexpected status %d: %s", resp.StatusCode, readErrorMessage(resp.Body))
	}

	var ws []workerJSON
	if err := json.NewDecoder(resp.Body).Decode(&ws); err != nil {
		return nil, fmt.Errorf("could not decode workers: %w", err)
	}

	workers := make([]model.Worker, 0, len(ws))
	for _, w := range ws {
		workers = append(workers, model.Worker{
			ID:           w.ID,
			Name:         w.Name,
			Address:      w.Address,
			Organization: w.Organization,
			Region:       w.Region,
			Status:       model.WorkerStatus(w.Status),
		})
	}

	s.logger.Debugf("Listed %d deployable workers", len(workers))
	return workers, nil
}

// DeployOne requests the deployment of one worker.
func (s *Service) DeployOne(ctx context.Context, id string) error {
	resp, err := s.do(ctx, http.MethodPost, "/workers/"+url.PathEscape(id)+"/deploy", bytes.NewReader([]byte("{}")))
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg := readErrorMessage(resp.Body)
	statusErr := fmt.Errorf("status %d", resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusGatewayTimeout:
		return model.NewDeployError(model.DeployErrorKindTimeout, msg, statusErr)
	case resp.StatusCode == http.StatusBadGateway, resp.StatusCode == http.StatusServiceUnavailable:
		return model.NewDeployError(model.DeployErrorKindCannotConnect, msg, statusErr)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return model.NewDeployError(model.DeployErrorKindRejected, msg, statusErr)
	}
	return model.NewDeployError(model.DeployErrorKindOther, msg, statusErr)
}

func (s *Service) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

func classifyTransportError(parent context.Context, err error) error {
	// Caller cancellation is not a worker problem.
	if errors.Is(parent.Err(), context.Canceled) {
		return model.NewDeployError(model.DeployErrorKindOther, "canceled", err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return model.NewDeployError(model.DeployErrorKindTimeout, "", err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return model.NewDeployError(model.DeployErrorKindCannotConnect, "", err)
	}

	return model.NewDeployError(model.DeployErrorKindOther, "", err)
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}

	var e errorJSON
	if err := json.Unmarshal(data, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}

	return strings.TrimSpace(string(data))
}
