package domain

import "time"

// CacheEntry is a stored lookup result.
type CacheEntry[V any] struct {
	Key         string    `json:"key"`
	Value       V         `json:"value"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	AccessCount int64     `json:"access_count"`
	LastAccess  time.Time `json:"last_access"`
}

// Expired reports whether the entry is past its expiry at now.
func (e *CacheEntry[V]) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
