// Package jmap reads inbound mail from a JMAP server's inbox.
package jmap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mailtriage/internal/triage"
)

const (
	coreCapability = "urn:ietf:params:jmap:core"
	mailCapability = "urn:ietf:params:jmap:mail"
	defaultLimit   = 50
)

var ErrNotConfigured = errors.New("jmap client not configured")

type Config struct {
	// URL is the server base or the session resource itself.
	URL      string
	Username string
	Password string
	Limit    int
	Timeout  time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	apiURL     string
	accountID  string
	inboxID    string
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}, nil
}

type address struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type bodyPart struct {
	PartID string `json:"partId"`
}

type email struct {
	ID         string                     `json:"id"`
	Subject    string                     `json:"subject"`
	From       []address                  `json:"from"`
	ReceivedAt string                     `json:"receivedAt"`
	TextBody   []bodyPart                 `json:"textBody"`
	BodyValues map[string]json.RawMessage `json:"bodyValues"`
}

// Inbox returns up to Limit inbox messages, oldest first.
func (c *Client) Inbox(ctx context.Context) ([]triage.Message, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	if err := c.ensureInbox(ctx); err != nil {
		return nil, err
	}

	var query struct {
		IDs []string `json:"ids"`
	}
	err := c.call(ctx, "Email/query", map[string]any{
		"accountId": c.accountID,
		"filter":    map[string]any{"inMailbox": c.inboxID},
		"sort":      []map[string]any{{"property": "receivedAt", "isAscending": true}},
		"limit":     c.cfg.Limit,
	}, &query)
	if err != nil {
		return nil, err
	}
	if len(query.IDs) == 0 {
		return nil, nil
	}

	var got struct {
		List []email `json:"list"`
	}
	err = c.call(ctx, "Email/get", map[string]any{
		"accountId":           c.accountID,
		"ids":                 query.IDs,
		"properties":          []string{"id", "subject", "from", "receivedAt", "textBody", "bodyValues"},
		"fetchTextBodyValues": true,
	}, &got)
	if err != nil {
		return nil, err
	}

	out := make([]triage.Message, 0, len(got.List))
	for _, e := range got.List {
		msg := triage.Message{ID: e.ID, Subject: e.Subject, Body: e.text()}
		if len(e.From) > 0 {
			msg.From = e.From[0].Email
		}
		out = append(out, msg)
	}
	return out, nil
}

func (e email) text() string {
	var parts []string
	for _, part := range e.TextBody {
		raw, ok := e.BodyValues[part.PartID]
		if !ok {
			continue
		}
		var value struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(raw, &value); err == nil && value.Value != "" {
			parts = append(parts, value.Value)
		}
	}
	return strings.Join(parts, "\n")
}

func (c *Client) ensureSession(ctx context.Context) error {
	if c.apiURL != "" && c.accountID != "" {
		return nil
	}
	sessionURL := c.cfg.URL
	if !strings.Contains(sessionURL, "/.well-known/jmap") && !strings.HasSuffix(sessionURL, "/session") {
		parsed, err := url.Parse(sessionURL)
		if err != nil {
			return err
		}
		sessionURL = fmt.Sprintf("%s://%s/.well-known/jmap", parsed.Scheme, parsed.Host)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sessionURL, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("jmap session error: %d", resp.StatusCode)
	}

	var session struct {
		APIURL          string            `json:"apiUrl"`
		PrimaryAccounts map[string]string `json:"primaryAccounts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return err
	}
	if session.APIURL == "" {
		return errors.New("missing apiUrl in session")
	}
	accountID := session.PrimaryAccounts[mailCapability]
	if accountID == "" {
		return errors.New("missing mail account id")
	}
	c.apiURL = resolveURL(sessionURL, session.APIURL)
	c.accountID = accountID
	return nil
}

func (c *Client) ensureInbox(ctx context.Context) error {
	if c.inboxID != "" {
		return nil
	}
	var mailboxes struct {
		List []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Role string `json:"role"`
		} `json:"list"`
	}
	err := c.call(ctx, "Mailbox/get", map[string]any{
		"accountId":  c.accountID,
		"properties": []string{"id", "name", "role"},
	}, &mailboxes)
	if err != nil {
		return err
	}
	for _, mbox := range mailboxes.List {
		if mbox.Role == "inbox" || strings.EqualFold(mbox.Name, "inbox") {
			c.inboxID = mbox.ID
			return nil
		}
	}
	return errors.New("inbox mailbox not found")
}

// call runs a single method invocation and decodes its arguments into out.
func (c *Client) call(ctx context.Context, method string, args map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{
		"using":       []string{coreCapability, mailCapability},
		"methodCalls": []any{[]any{method, args, "c1"}},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("jmap call %s failed: %d", method, resp.StatusCode)
	}

	var decoded struct {
		MethodResponses [][]json.RawMessage `json:"methodResponses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return err
	}
	for _, invocation := range decoded.MethodResponses {
		if len(invocation) < 2 {
			continue
		}
		var name string
		if err := json.Unmarshal(invocation[0], &name); err != nil {
			continue
		}
		if name == "error" {
			var jerr struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal(invocation[1], &jerr)
			return fmt.Errorf("jmap %s error: %s", method, jerr.Type)
		}
		if name == method {
			return json.Unmarshal(invocation[1], out)
		}
	}
	return fmt.Errorf("missing jmap response for %s", method)
}

func resolveURL(base string, target string) string {
	if strings.HasPrefix(target, "http") {
		return target
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return target
	}
	ref, err := url.Parse(target)
	if err != nil {
		return target
	}
	return baseURL.ResolveReference(ref).String()
}
