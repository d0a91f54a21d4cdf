package http

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"extsys/internal/auth"
	"extsys/internal/common/errors"
	"extsys/internal/common/logging"
	"extsys/internal/crypto"
	"extsys/internal/models"
	"extsys/internal/protocols"
)

// Dependencies are the shared services a Client is built with.
type Dependencies struct {
	Executor   *protocols.Executor
	Strategies *auth.Registry
	Decrypter  crypto.Decrypter
	Logger     logging.Logger
	// Transport replaces the default round tripper when set
	Transport http.RoundTripper
	// Limiter throttles attempts per external system when set
	Limiter Limiter
}

// Limiter blocks until a request for key may proceed.
type Limiter interface {
	WaitForKey(ctx context.Context, key string) error
}

// Client is the HTTP transport of one external system. It is safe for concurrent use
// once configured.
type Client struct {
	protocols.Base

	deps       Dependencies
	config     *Config
	strategy   auth.Strategy
	httpClient *http.Client
	logger     logging.Logger
}

func NewClient(deps Dependencies) *Client {
	if deps.Executor == nil {
		deps.Executor = protocols.DefaultExecutor()
	}
	if deps.Strategies == nil {
		deps.Strategies = auth.DefaultRegistry
	}
	if deps.Decrypter == nil {
		deps.Decrypter = crypto.PlainText{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.GetGlobalLogger()
	}
	return &Client{deps: deps, logger: deps.Logger}
}

// Configure reads the first active HTTP configuration of system and builds
// its authorization strategy.
func (c *Client) Configure(system *models.ExternalSystem) error {
	record, ok := system.ActiveHTTPConfig()
	if !ok {
		return errors.ConfigErrorf("No HTTP configuration found for external system with ID %s", system.ID)
	}

	config, err := NewConfig(record)
	if err != nil {
		return err
	}

	settings := auth.SettingsFromHTTPConfig(record, c.deps.Decrypter)
	settings.Logger = c.deps.Logger
	strategy, err := c.deps.Strategies.Build(record.AuthorizationType, settings)
	if err != nil {
		return err
	}

	if err := c.Base.Configure(system); err != nil {
		return err
	}
	c.config = config
	c.strategy = strategy
	c.httpClient = newHTTPClient(config, c.deps.Transport)
	c.logger = c.deps.Logger.WithFields(
		logging.String("external_system_id", system.ID),
		logging.String("external_system", system.Name),
	)
	return nil
}

func newHTTPClient(config *Config, transport http.RoundTripper) *http.Client {
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   config.Timeout,
				KeepAlive: config.KeepAlive,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          config.MaxConnections,
			MaxIdleConnsPerHost:   config.MaxConnections / 10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   config.Timeout,
			ResponseHeaderTimeout: config.Timeout,
		}
	}

	client := &http.Client{Transport: transport}
	if !config.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

// DefaultOperation is derived from the configured request method.
func (c *Client) DefaultOperation() protocols.Operation {
	if c.config == nil {
		return c.Base.DefaultOperation()
	}
	return c.config.DefaultOperation
}

// Timeout is the effective per-call timeout.
func (c *Client) Timeout() time.Duration {
	if c.config == nil {
		return 0
	}
	return c.config.Timeout
}

// Strategy returns the authorization strategy built at configure time.
func (c *Client) Strategy() auth.Strategy {
	return c.strategy
}

// Send dispatches req on the shared executor. Contract violations fail the
// returned future before any request is started.
func (c *Client) Send(ctx context.Context, req protocols.SendRequest) *protocols.Future {
	future, err := c.SendChecked(ctx, req)
	if err != nil {
		return protocols.FailedFuture(err)
	}
	return future
}

// SendChecked is Send with contract violations returned directly.
func (c *Client) SendChecked(ctx context.Context, req protocols.SendRequest) (*protocols.Future, error) {
	if c.config == nil {
		return nil, errors.UsageError("HTTP client is not configured")
	}
	if req.Operation == "" {
		req.Operation = c.DefaultOperation()
	}
	if err := checkPayload(req); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	ctx = logging.ContextWithRequestID(ctx, requestID)
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)

	return c.deps.Executor.Submit(ctx, func(ctx context.Context) (protocols.Response, error) {
		defer cancel()
		return c.execute(ctx, req)
	}), nil
}

func checkPayload(req protocols.SendRequest) error {
	method, err := MethodFor(req.Operation)
	if err != nil {
		return err
	}
	switch req.Operation {
	case protocols.OperationDelete, protocols.OperationRead:
		if req.Payload != nil {
			return errors.UsageError(method + " requests do not accept a payload")
		}
	default:
		if req.Payload == nil {
			return errors.UsageError(method + " requests require a payload")
		}
	}
	return nil
}

// execute runs one logical call: attempt, classify, maybe retry, finalize.
func (c *Client) execute(ctx context.Context, req protocols.SendRequest) (protocols.Response, error) {
	logger := c.logger.WithContext(ctx)
	if ctx.Err() != nil {
		return c.interrupted(ctx), nil
	}

	target, err := c.buildURL(req)
	if err != nil {
		return protocols.Response{}, err
	}
	method, _ := MethodFor(req.Operation)

	remaining := MaxRetries
	for {
		if c.deps.Limiter != nil {
			if err := c.deps.Limiter.WaitForKey(ctx, c.ID()); err != nil {
				logger.Debug("Request throttled until deadline", logging.Err(err))
				return c.interrupted(ctx), nil
			}
		}

		start := time.Now()
		logger.Debug("Sending request",
			logging.String("method", method),
			logging.String("url", target),
		)

		resp, err := c.roundTrip(ctx, method, target, req)
		if err != nil {
			if remaining == MaxRetries {
				return protocols.Response{}, err
			}
			// a retry that cannot be sent is reported as a response
			logger.Warn("Retry could not be sent", logging.Err(err))
			return protocols.ErrorResponse(errors.Message(err), err), nil
		}

		logger.Debug("Request completed",
			logging.Int("status", resp.StatusCode),
			logging.Bool("success", resp.IsSuccess()),
			logging.Duration("duration", time.Since(start)),
		)

		if resp.IsSuccess() || resp.StatusCode == 0 || remaining == 0 || !c.strategy.HandleRetry(resp.StatusCode) {
			if ctx.Err() != nil {
				return c.interrupted(ctx), nil
			}
			return resp, nil
		}

		remaining--
		logger.Info("Retrying request after authorization failure", logging.Int("status", resp.StatusCode))
	}
}

// roundTrip sends one attempt. A Basic challenge is answered once within
// the attempt when the strategy responds to challenges.
func (c *Client) roundTrip(ctx context.Context, method, target string, req protocols.SendRequest) (protocols.Response, error) {
	answered := false
	for {
		httpReq, err := c.newRequest(ctx, method, target, req, answered)
		if err != nil {
			return protocols.Response{}, err
		}

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return c.transportFailure(ctx, err), nil
		}

		if !answered && c.challenged(httpResp) {
			io.Copy(io.Discard, httpResp.Body)
			httpResp.Body.Close()
			answered = true
			continue
		}

		return c.readResponse(ctx, httpResp), nil
	}
}

func (c *Client) newRequest(ctx context.Context, method, target string, req protocols.SendRequest, withCredentials bool) (*http.Request, error) {
	var body io.Reader
	if req.Payload != nil {
		r, err := req.Payload()
		if err != nil {
			return nil, errors.InternalError("Could not read request payload", err)
		}
		body = r
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.InternalError("Could not build request", err)
	}
	httpReq.Header.Set("Content-Type", contentType(req.Config))

	if hs, ok := c.strategy.(auth.HeaderStrategy); ok {
		headers, err := hs.Headers(ctx)
		if err != nil {
			return nil, err
		}
		for key, value := range headers {
			httpReq.Header.Set(key, value)
		}
	}

	if withCredentials {
		if cs, ok := c.strategy.(auth.ChallengeStrategy); ok {
			httpReq.SetBasicAuth(cs.Credentials())
		}
	}
	return httpReq, nil
}

func (c *Client) challenged(resp *http.Response) bool {
	if resp.StatusCode != http.StatusUnauthorized {
		return false
	}
	if _, ok := c.strategy.(auth.ChallengeStrategy); !ok {
		return false
	}
	for _, challenge := range resp.Header.Values("WWW-Authenticate") {
		if len(challenge) >= 5 && strings.EqualFold(challenge[:5], "basic") {
			return true
		}
	}
	return false
}

func (c *Client) buildURL(req protocols.SendRequest) (string, error) {
	target := c.config.URL
	if path := strings.TrimSpace(req.Path); path != "" {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		target = strings.TrimRight(target, "/") + path
	}

	if req.Operation != protocols.OperationRead {
		return target, nil
	}
	params := queryParameters(req.Config)
	if len(params) == 0 {
		return target, nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", errors.InternalError("Could not build request", err)
	}
	query := u.Query()
	for key, value := range params {
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (c *Client) readResponse(ctx context.Context, resp *http.Response) protocols.Response {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportFailure(ctx, err)
	}

	body := parseBody(raw)
	builder := protocols.NewResponseBuilder().WithStatusCode(resp.StatusCode)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return builder.WithData(body).Build()
	}
	if body == nil {
		body = fmt.Sprintf("Response Status Code: %d", resp.StatusCode)
	}
	return builder.WithError(body).Build()
}

// parseBody decodes JSON bodies and passes anything else through as text.
func parseBody(raw []byte) interface{} {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	var parsed interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return string(raw)
	}
	return parsed
}

func (c *Client) transportFailure(ctx context.Context, err error) protocols.Response {
	var netErr net.Error
	if ctx.Err() != nil || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return c.interrupted(ctx)
	}
	c.logger.WithContext(ctx).Warn("Request failed", logging.Err(err))
	return protocols.ErrorResponse(err.Error(), errors.ConnectionError(err.Error(), err))
}

// interrupted reports a call whose deadline elapsed or whose context was cancelled.
func (c *Client) interrupted(ctx context.Context) protocols.Response {
	if stderrors.Is(ctx.Err(), context.Canceled) {
		return protocols.ErrorResponse("Request cancelled", errors.ConnectionError("Request cancelled", ctx.Err()))
	}
	message := fmt.Sprintf("Operation exceeded the maximum %d seconds allowed", int(c.config.Timeout/time.Second))
	c.logger.WithContext(ctx).Warn(message)
	return protocols.ErrorResponse(message, errors.TimeoutError(message))
}

// Close releases idle connections.
func (c *Client) Close() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}

func contentType(config map[string]interface{}) string {
	if v, ok := config[protocols.ConfigContentType].(string); ok && v != "" {
		return v
	}
	return DefaultContentType
}

func queryParameters(config map[string]interface{}) map[string]string {
	switch params := config[protocols.ConfigQueryParameters].(type) {
	case map[string]string:
		return params
	case map[string]interface{}:
		out := make(map[string]string, len(params))
		for key, value := range params {
			out[key] = fmt.Sprint(value)
		}
		return out
	default:
		return nil
	}
}
