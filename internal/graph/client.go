package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nhle/mailsync/internal/model"
)

// selectFields is the fixed header projection requested for message
// listings and delta queries. Bodies are fetched lazily, never here.
const selectFields = "id,conversationId,subject,from,toRecipients," +
	"ccRecipients,receivedDateTime,importance,isRead,hasAttachments," +
	"bodyPreview,parentFolderId,categories"

// Client is a thin, typed client over the Microsoft Graph mail surface.
// Every request obtains a valid token first; a single 401 is retried
// once with a fresh token, and 429/5xx responses are retried with
// exponential backoff.
type Client struct {
	baseURL    string
	tokens     *TokenManager
	httpClient *http.Client

	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
}

// NewClient creates a Graph mail client using tokens for authentication.
func NewClient(tokens *TokenManager) *Client {
	return &Client{
		baseURL: "https://graph.microsoft.com/v1.0",
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxAttempts: 5,
		backoffBase: 500 * time.Millisecond,
		backoffCap:  30 * time.Second,
	}
}

// do issues one authenticated request against a full URL, handling the
// 401-once retry, 429/5xx backoff, and JSON (de)serialization. Other
// 4xx responses become terminal ProviderErrors.
func (c *Client) do(
	ctx context.Context,
	method string,
	fullURL string,
	body interface{},
	result interface{},
) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	retried401 := false
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		token, err := c.tokens.GetValidToken(ctx)
		if err != nil {
			return err
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing %s %s: %w", method, fullURL, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			if retried401 {
				return &AuthError{Message: "request rejected twice with 401"}
			}
			// The cached token may have been revoked early; retry once
			// with a freshly exchanged one.
			retried401 = true
			c.tokens.Invalidate()
			attempt--
			continue

		case resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode >= 500:
			lastErr = fmt.Errorf(
				"transient status %d on %s %s",
				resp.StatusCode, method, fullURL,
			)
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return err
			}
			continue

		case resp.StatusCode >= 400:
			return providerError(resp.StatusCode, respBody)
		}

		if result == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf(
				"unmarshaling response from %s %s: %w", method, fullURL, err,
			)
		}
		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxAttempts, lastErr)
}

// sleepBackoff waits for the attempt's backoff duration with +-20%
// jitter, or returns early if ctx is cancelled.
func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	backoff := c.backoffBase << uint(attempt)
	if backoff > c.backoffCap {
		backoff = c.backoffCap
	}
	jittered := time.Duration(float64(backoff) * (0.8 + 0.4*rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jittered):
		return nil
	}
}

// providerError builds a ProviderError from a Graph error envelope.
func providerError(status int, body []byte) error {
	var ge graphErrorBody
	if json.Unmarshal(body, &ge) == nil && ge.Error.Code != "" {
		return &ProviderError{
			StatusCode: status,
			Code:       ge.Error.Code,
			Message:    ge.Error.Message,
		}
	}
	return &ProviderError{
		StatusCode: status,
		Message:    strings.TrimSpace(string(body)),
	}
}

// ListFolders returns all mail folders in the mailbox.
func (c *Client) ListFolders(ctx context.Context) ([]model.Folder, error) {
	next := c.baseURL + "/me/mailFolders?$top=100"

	var folders []model.Folder
	for next != "" {
		var page folderPage
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("listing folders: %w", err)
		}
		for _, gf := range page.Value {
			folders = append(folders, toFolder(gf))
		}
		next = page.NextLink
	}

	return folders, nil
}

// FetchMessages pages through the mailbox, newest first, until maxCount
// headers have been collected or no next page remains. filter is an
// optional OData $filter expression.
func (c *Client) FetchMessages(
	ctx context.Context,
	maxCount int,
	filter string,
) ([]model.Message, error) {
	q := url.Values{}
	q.Set("$top", "50")
	q.Set("$select", selectFields)
	q.Set("$orderby", "receivedDateTime desc")
	if filter != "" {
		q.Set("$filter", filter)
	}
	next := c.baseURL + "/me/messages?" + q.Encode()

	var messages []model.Message
	for next != "" && (maxCount <= 0 || len(messages) < maxCount) {
		var page messagePage
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("fetching messages: %w", err)
		}
		for _, gm := range page.Value {
			messages = append(messages, toMessage(gm))
			if maxCount > 0 && len(messages) >= maxCount {
				break
			}
		}
		// Pagination links are opaque; follow them exactly as returned.
		next = page.NextLink
	}

	return messages, nil
}

// DeltaMessages fetches all changes since cursor. An empty cursor starts
// a fresh delta round. It follows every intermediate page link and
// returns the deltaLink from the final page as the new cursor. A 410
// from the provider surfaces as a CursorExpiredError.
func (c *Client) DeltaMessages(
	ctx context.Context,
	cursor string,
) ([]Change, string, error) {
	next := cursor
	if next == "" {
		q := url.Values{}
		q.Set("$select", selectFields)
		next = c.baseURL + "/me/messages/delta?" + q.Encode()
	}

	var changes []Change
	for {
		var page messagePage
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			var pe *ProviderError
			if errors.As(err, &pe) && pe.StatusCode == http.StatusGone {
				return nil, "", &CursorExpiredError{Cursor: cursor}
			}
			return nil, "", fmt.Errorf("fetching delta: %w", err)
		}

		for _, gm := range page.Value {
			if gm.Removed != nil {
				changes = append(changes, Change{
					Message: model.Message{ID: gm.ID},
					Removed: true,
				})
				continue
			}
			changes = append(changes, Change{Message: toMessage(gm)})
		}

		if page.NextLink != "" {
			next = page.NextLink
			continue
		}
		if page.DeltaLink != "" {
			return changes, page.DeltaLink, nil
		}
		return nil, "", fmt.Errorf("delta response missing continuation link")
	}
}

// FetchBody retrieves the full body of a single message. Bodies are
// fetched on demand and never persisted.
func (c *Client) FetchBody(
	ctx context.Context,
	messageID string,
) (*model.MessageBody, error) {
	u := c.baseURL + "/me/messages/" + url.PathEscape(messageID) + "?$select=body"

	var resp struct {
		Body graphBody `json:"body"`
	}
	if err := c.do(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching body for %s: %w", messageID, err)
	}

	return &model.MessageBody{
		ContentType: strings.ToLower(resp.Body.ContentType),
		Content:     resp.Body.Content,
	}, nil
}

// MarkAsRead marks a single message as read at the provider.
func (c *Client) MarkAsRead(ctx context.Context, messageID string) error {
	u := c.baseURL + "/me/messages/" + url.PathEscape(messageID)
	body := map[string]bool{"isRead": true}

	if err := c.do(ctx, http.MethodPatch, u, body, nil); err != nil {
		return fmt.Errorf("marking %s as read: %w", messageID, err)
	}
	return nil
}

// SendEmail sends a new HTML message through the provider.
func (c *Client) SendEmail(
	ctx context.Context,
	to []string,
	cc []string,
	subject string,
	htmlBody string,
) error {
	msg := map[string]interface{}{
		"subject": subject,
		"body": map[string]string{
			"contentType": "HTML",
			"content":     htmlBody,
		},
		"toRecipients": toGraphRecipients(to),
	}
	if len(cc) > 0 {
		msg["ccRecipients"] = toGraphRecipients(cc)
	}
	payload := map[string]interface{}{
		"message":         msg,
		"saveToSentItems": true,
	}

	if err := c.do(ctx, http.MethodPost, c.baseURL+"/me/sendMail", payload, nil); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

// Reply sends an HTML reply to an existing message.
func (c *Client) Reply(
	ctx context.Context,
	messageID string,
	commentHTML string,
) error {
	u := c.baseURL + "/me/messages/" + url.PathEscape(messageID) + "/reply"
	payload := map[string]string{"comment": commentHTML}

	if err := c.do(ctx, http.MethodPost, u, payload, nil); err != nil {
		return fmt.Errorf("replying to %s: %w", messageID, err)
	}
	return nil
}

// toGraphRecipients maps plain addresses to the Graph recipient shape.
func toGraphRecipients(addrs []string) []graphRecipient {
	out := make([]graphRecipient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, graphRecipient{
			EmailAddress: graphEmailAddress{Address: a},
		})
	}
	return out
}
