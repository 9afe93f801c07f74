package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
)

// LoadFile reads listings from a JSON file: an array of listing objects in
// the domain.Listing wire shape.
func LoadFile(path string) ([]domain.Listing, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	var listings []domain.Listing
	if err := json.Unmarshal(raw, &listings); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}

	for i := range listings {
		if listings[i].ID == "" {
			return nil, fmt.Errorf("catalog entry %d has no id", i)
		}
	}
	return listings, nil
}
