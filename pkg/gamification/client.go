package gamification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/ecosort/ecoscan/pkg/stats"
)

const (
	leaderboardPath = "/api/v1/leaderboard"
	userStatsPath   = "/api/v1/user/%s/stats"
	loginPath       = "/api/v1/auth/login"
)

// SyncError is a failed call to the leaderboard/stats service. It is never
// fatal: callers log it and keep their local state.
type SyncError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed: server error %d", e.Op, e.StatusCode)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Entry is one read-only cached leaderboard row, owned by the remote service.
type Entry struct {
	Username      string
	Score         int
	ItemsAnalyzed int
	Rank          int
	StreakDays    int
}

// Session is the identity returned by a successful login.
type Session struct {
	UserID   string
	Username string
	Email    string
	Token    string
}

// Client talks to the gamification endpoints: leaderboard, user stats, auth.
//
// Reads (leaderboard, user stats) go through a retrying client since they are
// idempotent. Writes use a plain client: score pushes are deliberately
// at-most-once, so automatic retries are off.
type Client struct {
	baseURL string
	write   *http.Client
	read    *retryablehttp.Client
}

// NewClient returns a Client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	read := retryablehttp.NewClient()
	read.Logger = nil
	read.RetryMax = 3
	read.HTTPClient.Timeout = timeout

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		write:   &http.Client{Timeout: timeout},
		read:    read,
	}
}

// PushScore sends the cumulative score and item count for one user and
// returns the server's normalized stats snapshot. Satisfies stats.Syncer.
func (c *Client) PushScore(ctx context.Context, userID, token string, score, itemsAnalyzed int) (stats.Snapshot, error) {
	payload := map[string]interface{}{
		"user_id":        userIDValue(userID),
		"score":          score,
		"items_analyzed": itemsAnalyzed,
	}
	body, err := c.sendWrite(ctx, http.MethodPost, leaderboardPath, token, payload)
	if err != nil {
		return stats.Snapshot{}, err
	}
	return NormalizeSnapshot(body), nil
}

// UpdateStats is the PUT variant of PushScore, used to reconcile the full
// stats record rather than append a score event.
func (c *Client) UpdateStats(ctx context.Context, userID, token string, score, itemsAnalyzed int) (stats.Snapshot, error) {
	payload := map[string]interface{}{
		"user_id":        userIDValue(userID),
		"score":          score,
		"items_analyzed": itemsAnalyzed,
	}
	body, err := c.sendWrite(ctx, http.MethodPut, leaderboardPath, token, payload)
	if err != nil {
		return stats.Snapshot{}, err
	}
	return NormalizeSnapshot(body), nil
}

// FetchUserStats returns the authoritative stats snapshot for one user.
func (c *Client) FetchUserStats(ctx context.Context, userID, token string) (stats.Snapshot, error) {
	body, err := c.sendRead(ctx, fmt.Sprintf(userStatsPath, userID), token)
	if err != nil {
		return stats.Snapshot{}, err
	}
	return NormalizeSnapshot(body), nil
}

// FetchLeaderboard returns the current leaderboard rows in server order.
func (c *Client) FetchLeaderboard(ctx context.Context) ([]Entry, error) {
	body, err := c.sendRead(ctx, leaderboardPath, "")
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, row := range gjson.Get(body, "entries").Array() {
		entries = append(entries, Entry{
			Username:      gjson.Get(row.Raw, "username").String(),
			Score:         int(gjson.Get(row.Raw, "score").Int()),
			ItemsAnalyzed: int(pick(row.Raw, "items_analyzed", "itemsAnalyzed").Int()),
			Rank:          int(gjson.Get(row.Raw, "rank").Int()),
			StreakDays:    int(pick(row.Raw, "streak", "streak_days").Int()),
		})
	}
	return entries, nil
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	payload := map[string]interface{}{"email": email, "password": password}
	body, err := c.sendWrite(ctx, http.MethodPost, loginPath, "", payload)
	if err != nil {
		return Session{}, err
	}

	sess := Session{
		UserID:   pick(body, "id", "user_id").String(),
		Username: gjson.Get(body, "username").String(),
		Email:    gjson.Get(body, "email").String(),
		Token:    pick(body, "token", "access_token").String(),
	}
	if sess.Token == "" {
		return Session{}, &SyncError{Op: "login", Err: fmt.Errorf("no token in response")}
	}
	return sess, nil
}

func (c *Client) sendWrite(ctx context.Context, method, path, token string, payload interface{}) (string, error) {
	op := strings.ToLower(method) + " " + path

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", &SyncError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return "", &SyncError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.write.Do(req)
	if err != nil {
		return "", &SyncError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	return readBody(resp, op)
}

func (c *Client) sendRead(ctx context.Context, path, token string) (string, error) {
	op := "get " + path

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", &SyncError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.read.Do(req)
	if err != nil {
		return "", &SyncError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	return readBody(resp, op)
}

func readBody(resp *http.Response, op string) (string, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &SyncError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := &SyncError{Op: op, StatusCode: resp.StatusCode}
		if gjson.ValidBytes(raw) {
			if msg := pick(string(raw), "message", "detail"); msg.String() != "" {
				serr.Err = fmt.Errorf("%s", msg.String())
			}
		}
		return "", serr
	}
	if !gjson.ValidBytes(raw) {
		return "", &SyncError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("malformed response body")}
	}
	return string(raw), nil
}

// userIDValue keeps numeric user ids numeric on the wire; the backend stores
// integer ids but the client treats them as opaque strings.
func userIDValue(userID string) interface{} {
	if n, err := strconv.Atoi(userID); err == nil {
		return n
	}
	return userID
}
