package checkout

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/trialsignup/signup/internal/domain"
)

// AttributionKey is the only storage key attribution is written under.
const AttributionKey = "affiliate_id"

// legacyAttributionKeys are storage keys written by older checkout builds. They
// are read once, migrated to AttributionKey and removed.
var legacyAttributionKeys = []string{"am_id", "amId", "affiliateId"}

// attributionParams are the accepted query parameter aliases, highest priority first.
var attributionParams = []string{"am_id", "affiliate_id", "affiliateId", "amId", "aff_id"}

// AttributionStore persists the referral identifier across visits.
type AttributionStore struct {
	storage Storage
}

func NewAttributionStore(storage Storage) *AttributionStore {
	return &AttributionStore{storage: storage}
}

// Capture stores the identifier found in query, if any. An absent or blank
// parameter leaves the stored value untouched.
func (a *AttributionStore) Capture(query url.Values) (string, error) {
	for _, key := range attributionParams {
		if v := strings.TrimSpace(query.Get(key)); v != "" {
			if err := a.storage.Set(AttributionKey, v); err != nil {
				return "", err
			}
			slog.Debug("attribution captured", "param", key, "affiliate_id", v)
			return v, nil
		}
	}
	return a.Read(), nil
}

// Read returns the stored identifier, or domain.AttributionNone. It never returns "".
func (a *AttributionStore) Read() string {
	if v, ok := a.storage.Get(AttributionKey); ok && strings.TrimSpace(v) != "" {
		return v
	}
	for _, key := range legacyAttributionKeys {
		v, ok := a.storage.Get(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := a.storage.Set(AttributionKey, v); err != nil {
			slog.Warn("failed to migrate attribution key", "key", key, "err", err)
			return v
		}
		_ = a.storage.Delete(key)
		return v
	}
	return domain.AttributionNone
}

// Record returns the current attribution as a record.
func (a *AttributionStore) Record() domain.AttributionRecord {
	return domain.AttributionRecord{AffiliateID: a.Read()}
}
