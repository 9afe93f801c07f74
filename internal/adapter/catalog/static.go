// Package catalog provides ListingCatalog implementations. The real catalog
// is an external marketplace service; the static catalog here serves demos
// and tests with a fixed set of listings.
package catalog

import (
	"context"
	"sync"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
)

// StaticCatalog answers lookups from an in-memory listing set.
type StaticCatalog struct {
	mu       sync.RWMutex
	listings map[string]domain.Listing
}

// NewStaticCatalog builds a catalog from the given listings. Later entries
// with the same id win.
func NewStaticCatalog(listings []domain.Listing) *StaticCatalog {
	byID := make(map[string]domain.Listing, len(listings))
	for _, l := range listings {
		byID[l.ID] = l
	}
	return &StaticCatalog{listings: byID}
}

// Lookup returns a copy of the listing, or nil when the id is unknown.
func (c *StaticCatalog) Lookup(_ context.Context, listingID string) (*domain.Listing, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	l, ok := c.listings[listingID]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

// Put inserts or replaces a listing.
func (c *StaticCatalog) Put(listing domain.Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings[listing.ID] = listing
}

// SetAvailable flips a listing's availability. Returns false when the id is
// unknown.
func (c *StaticCatalog) SetAvailable(listingID string, available bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.listings[listingID]
	if !ok {
		return false
	}
	l.Available = available
	c.listings[listingID] = l
	return true
}
