package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	taskdesk "github.com/sirnukesalot/taskdesk-go"
	"github.com/sirnukesalot/taskdesk-go/audit"
	"github.com/sirnukesalot/taskdesk-go/metrics"
)

// Gateway performs the session network calls against the token endpoints
// and drives the Store. The HTTP client must carry a cookie jar: the server
// sets the durable refresh cookie out of band on login, and Refresh relies
// on that ambient cookie alone.
//
// The session state machine is Anonymous → Authenticated → Anonymous. The
// only transition into Authenticated is a successful SetCredential; the only
// transitions out are Logout and a failed refresh escalated by the transport
// layer.
type Gateway struct {
	*Store

	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	navigator  taskdesk.Navigator
	audit      *audit.Logger
	metrics    *metrics.Metrics

	sf singleflight.Group
}

// compile-time check
var _ taskdesk.SessionService = (*Gateway)(nil)

// GatewayOption configures the Gateway.
type GatewayOption func(*Gateway)

// WithHTTPClient sets the HTTP client for auth calls. It should share its
// cookie jar with the client used for resource calls.
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *Gateway) { g.httpClient = c }
}

// WithLogger sets a structured logger for the gateway.
func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l.With("component", "session") }
}

// WithNavigator sets the redirect sink; logout navigates it to /login.
func WithNavigator(n taskdesk.Navigator) GatewayOption {
	return func(g *Gateway) { g.navigator = n }
}

// WithAudit sets the audit logger for session transitions.
func WithAudit(a *audit.Logger) GatewayOption {
	return func(g *Gateway) { g.audit = a }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// NewGateway creates a session gateway over the given store.
func NewGateway(store *Store, baseURL string, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		Store:      store,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
		metrics:    metrics.New(false),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// tokenResponse is the body returned by the token endpoints.
type tokenResponse struct {
	Access string `json:"access"`
}

// Login exchanges credentials for an access credential. Errors propagate
// unmodified so the login form can show them; nothing here redirects.
func (g *Gateway) Login(ctx context.Context, email, password string) error {
	access, err := g.postToken(ctx, "/auth/token/", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		g.metrics.RecordLogin("failure")
		g.audit.Log(audit.Event{Action: audit.ActionLogin, Result: audit.ResultFailure, Error: err.Error(), RequestID: taskdesk.RequestIDFromContext(ctx)})
		return err
	}
	if err := g.SetCredential(access); err != nil {
		g.metrics.RecordLogin("failure")
		return fmt.Errorf("taskdesk/session: login: %w", err)
	}
	g.metrics.RecordLogin("success")
	g.logAudit(ctx, audit.ActionLogin, nil)
	return nil
}

// Refresh mints a new access credential from the ambient refresh cookie.
// Concurrent callers share one in-flight refresh.
func (g *Gateway) Refresh(ctx context.Context) error {
	_, err, _ := g.sf.Do("refresh", func() (interface{}, error) {
		access, err := g.postToken(ctx, "/auth/token/refresh/", struct{}{})
		if err != nil {
			return nil, err
		}
		if err := g.SetCredential(access); err != nil {
			return nil, fmt.Errorf("taskdesk/session: refresh: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		g.metrics.RecordRefresh("failure")
		g.audit.Log(audit.Event{Action: audit.ActionRefresh, Result: audit.ResultFailure, Error: err.Error(), RequestID: taskdesk.RequestIDFromContext(ctx)})
		return err
	}
	g.metrics.RecordRefresh("success")
	g.logAudit(ctx, audit.ActionRefresh, nil)
	return nil
}

// TryRestoreSession attempts one refresh when no credential is in memory,
// e.g. at guard time after a process restart. Returns true iff it succeeded.
func (g *Gateway) TryRestoreSession(ctx context.Context) bool {
	err := g.Refresh(ctx)
	if err != nil {
		g.logger.Debug("session restore failed", "err", err)
	}
	g.logAudit(ctx, audit.ActionRestore, err)
	return err == nil
}

// Logout fires the logout endpoint best-effort, then unconditionally clears
// local session state and navigates to the login view. Local state must
// never stay authenticated because the logout request failed.
func (g *Gateway) Logout(ctx context.Context) error {
	id := g.Current()
	if _, err := g.post(ctx, "/auth/logout/", struct{}{}); err != nil {
		g.logger.Debug("logout request failed, clearing local state anyway", "err", err)
		g.metrics.RecordLogout("failure")
	} else {
		g.metrics.RecordLogout("success")
	}

	g.Clear()
	if g.navigator != nil {
		g.navigator.NavigateTo("/login")
	}

	ev := audit.Event{Action: audit.ActionLogout, Result: audit.ResultSuccess, RequestID: taskdesk.RequestIDFromContext(ctx)}
	if id != nil {
		ev.UserID = id.ID
		ev.Role = string(id.Role)
	}
	g.audit.Log(ev)
	return nil
}

// postToken posts to an auth endpoint and extracts the access credential.
func (g *Gateway) postToken(ctx context.Context, path string, payload any) (string, error) {
	body, err := g.post(ctx, path, payload)
	if err != nil {
		return "", err
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("taskdesk/session: decode token response: %w", err)
	}
	if tr.Access == "" {
		return "", fmt.Errorf("taskdesk/session: empty access credential in response")
	}
	return tr.Access, nil
}

// post sends a JSON POST and returns the response body, mapping non-2xx
// responses to *taskdesk.APIError.
func (g *Gateway) post(ctx context.Context, path string, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("taskdesk/session: encode request: %w", err)
	}

	url := g.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("taskdesk/session: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("taskdesk/session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("taskdesk/session: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, taskdesk.ParseAPIError(resp.StatusCode, url, body)
	}
	return body, nil
}

// logAudit records a successful or failed session action with the current
// identity attached.
func (g *Gateway) logAudit(ctx context.Context, action string, err error) {
	ev := audit.Event{
		Action:    action,
		Result:    audit.ResultSuccess,
		RequestID: taskdesk.RequestIDFromContext(ctx),
	}
	if err != nil {
		ev.Result = audit.ResultFailure
		ev.Error = err.Error()
	}
	if id := g.Current(); id != nil {
		ev.UserID = id.ID
		ev.Role = string(id.Role)
	}
	g.audit.Log(ev)
}
