// Package directory registers the room with the public lobby directory.
// Registration failure is never fatal: the room simply stays unlisted.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// MemberListing is one member entry in the registration payload. GameID
// is serialized as a decimal string, matching the directory schema.
type MemberListing struct {
	Nickname    string `json:"nickname"`
	GameName    string `json:"gameName"`
	GameID      string `json:"gameId"`
	GameVersion string `json:"gameVersion"`
}

// Listing is the registration payload for a room.
type Listing struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	MaxPlayers        uint32          `json:"maxPlayers"`
	Port              uint16          `json:"port"`
	PreferredGameName string          `json:"preferredGameName"`
	HostName          string          `json:"hostName"`
	Members           []MemberListing `json:"members"`
}

// FormatGameID renders a 64-bit game id for a MemberListing.
func FormatGameID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// Client talks to the lobby directory API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

// NewClient creates a directory client. baseURL may be empty, in which
// case Register reports the room as unlisted without any request.
//
// Precondition: httpClient and logger must be non-nil.
func NewClient(baseURL, token string, httpClient *http.Client, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    httpClient,
		log:     logger,
	}
}

// Register lists the room publicly and returns the directory-assigned
// room id. Transient failures are retried with capped backoff;
// exhaustion returns an error the caller logs and moves past — the room
// keeps running unlisted.
func (c *Client) Register(ctx context.Context, listing Listing) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("no directory configured")
	}

	body, err := json.Marshal(listing)
	if err != nil {
		return "", fmt.Errorf("encoding listing: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxElapsedTime = 30 * time.Second

	var id string
	operation := func() error {
		var opErr error
		id, opErr = c.post(ctx, body)
		return opErr
	}
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return "", err
	}

	c.log.Info("room registered with lobby directory",
		zap.String("room_id", id),
	)
	return id, nil
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/lobby", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("building registration request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting registration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("registration rejected: %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&result); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decoding registration response: %w", err))
	}
	return result.ID, nil
}
