package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// CartLineSnapshot freezes one cart line at the moment a request or purchase
// is recorded. Item name and unit price are denormalized on purpose: the
// snapshot stays meaningful after the catalog item is edited or removed.
type CartLineSnapshot struct {
	ItemID    uuid.UUID `json:"item_id"`
	Name      string    `json:"name"`
	UnitPrice int       `json:"unit_price"`
	Quantity  int       `json:"quantity"`
}

// Total returns the snapshot cost of the line set at capture time.
func Total(lines []CartLineSnapshot) int {
	sum := 0
	for _, line := range lines {
		sum += line.UnitPrice * line.Quantity
	}
	return sum
}

// MarshalLines encodes snapshots for a jsonb column.
func MarshalLines(lines []CartLineSnapshot) (json.RawMessage, error) {
	raw, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("marshal cart lines: %w", err)
	}
	return raw, nil
}

// UnmarshalLines decodes a jsonb column back into snapshots.
func UnmarshalLines(raw json.RawMessage) ([]CartLineSnapshot, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var lines []CartLineSnapshot
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart lines: %w", err)
	}
	return lines, nil
}
