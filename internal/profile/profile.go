// Package profile fetches customer profile snapshots from the externally
// owned CRM. The conversation only caches a bounded snapshot; the profile
// system remains the source of truth.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/conversation"
	rderrors "github.com/relaydesk/relaydesk/internal/errors"
)

type Provider interface {
	Fetch(ctx context.Context, customerID string) (*conversation.CustomerSnapshot, error)
}

// HTTP is the CRM-backed provider.
type HTTP struct {
	client  *http.Client
	baseURL string
}

func NewHTTP(cfg config.ProfileConfig) (*HTTP, error) {
	timeout, err := config.DurationOrDefault(cfg.Timeout, config.DefaultProfileTimeout)
	if err != nil {
		return nil, err
	}
	return &HTTP{
		client:  &http.Client{Timeout: timeout},
		baseURL: cfg.BaseURL,
	}, nil
}

func (h *HTTP) Fetch(ctx context.Context, customerID string) (*conversation.CustomerSnapshot, error) {
	if customerID == "" {
		return nil, rderrors.InvalidInput("empty customer id")
	}

	url := fmt.Sprintf("%s/customers/%s", h.baseURL, customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, rderrors.Transient(err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, rderrors.NotFound("customer " + customerID)
	case resp.StatusCode >= 300:
		return nil, rderrors.Transient(fmt.Sprintf("profile service returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, rderrors.Transient(err.Error())
	}

	var payload struct {
		CustomerID    string `json:"customer_id"`
		Tier          string `json:"tier"`
		AccountStatus string `json:"account_status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unparseable profile: %w", err)
	}

	return &conversation.CustomerSnapshot{
		CustomerID:    customerID,
		Tier:          parseTier(payload.Tier),
		AccountStatus: payload.AccountStatus,
		FetchedAt:     time.Now(),
	}, nil
}

func parseTier(s string) conversation.CustomerTier {
	switch conversation.CustomerTier(s) {
	case conversation.TierSilver, conversation.TierGold, conversation.TierPlatinum:
		return conversation.CustomerTier(s)
	default:
		return conversation.TierBronze
	}
}

// Refresh updates the state's snapshot when it is missing or stale. Fetch
// failures degrade: the existing snapshot, stale or absent, stays in place
// and routing falls back to the bronze tier. A profile outage never blocks
// a turn.
func Refresh(ctx context.Context, p Provider, state *conversation.State, customerID string, maxAge time.Duration) {
	if p == nil || customerID == "" {
		return
	}
	if !state.Customer.Stale(time.Now(), maxAge) {
		return
	}

	snap, err := p.Fetch(ctx, customerID)
	if err != nil {
		slog.Warn("Profile refresh failed, routing on cached snapshot",
			"customer_id", customerID,
			"category", rderrors.Category(err),
			"error", err)
		return
	}
	state.Customer = snap
}
