package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"rps-wager-system/models"
)

// RemoteProfile is one entry of the profile service's change feed.
type RemoteProfile struct {
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// ProfileSyncWorker keeps player display names in step with the profile
// service behind the Gateway. Only existing accounts are touched; balances
// never leave this service.
type ProfileSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client

	since time.Time
}

func NewProfileSyncWorker(db *gorm.DB, baseURL, serviceToken string, interval time.Duration) *ProfileSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ProfileSyncWorker{
		db:           db,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: "/api/v1/public/profiles",
		serviceToken: serviceToken,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	log.Info().Str("url", w.baseURL).Msg("🔁 [SYNC] starting profile sync worker")
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx); err != nil {
		log.Warn().Err(err).Msg("[SYNC] initial sync failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				log.Error().Err(err).Msg("[SYNC] sync batch failed")
			}
		case <-ctx.Done():
			log.Info().Msg("⏹️ [SYNC] profile sync worker stopped")
			return
		}
	}
}

// SyncOnce pulls profile changes since the last successful batch and renames
// matching accounts. It returns how many accounts changed.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return 0, fmt.Errorf("invalid profile service URL %q: %w", w.baseURL, err)
	}
	endpoint := base.JoinPath(w.endpointPath)
	q := endpoint.Query()
	q.Set("since", w.since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("profile service request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("profile service returned %d: %s", resp.StatusCode, string(body))
	}

	var out profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode profile changes: %w", err)
	}

	renamed := 0
	latest := w.since
	for _, p := range out.Users {
		if p.UpdatedAt.After(latest) {
			latest = p.UpdatedAt
		}
		name := strings.TrimSpace(p.Username)
		if p.ExternalID == "" || name == "" {
			continue
		}
		res := w.db.WithContext(ctx).Model(&models.User{}).
			Where("id = ? AND display_name <> ?", p.ExternalID, name).
			Update("display_name", name)
		if res.Error != nil {
			log.Warn().Err(res.Error).Str("user_id", p.ExternalID).Msg("[SYNC] rename failed")
			continue
		}
		renamed += int(res.RowsAffected)
	}
	w.since = latest

	log.Debug().Int("received", len(out.Users)).Int("renamed", renamed).Msg("[SYNC] batch applied")
	return renamed, nil
}
