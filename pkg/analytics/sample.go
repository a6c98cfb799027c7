package analytics

import (
	"math/rand"
	"time"
)

// Sample returns a random subset of at most n items using a partial
// Fisher-Yates shuffle. The input is not modified. A nil rng draws from a
// time-seeded source; pass a seeded one for reproducible output.
func Sample[T any](items []T, n int, rng *rand.Rand) []T {
	if n <= 0 || len(items) == 0 {
		return []T{}
	}
	if n > len(items) {
		n = len(items)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	shuffled := make([]T, len(items))
	copy(shuffled, items)
	for i := 0; i < n; i++ {
		j := i + rng.Intn(len(shuffled)-i)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n]
}

// PageResult is one page of a list view.
type PageResult[T any] struct {
	Items      []T  `json:"items"`
	Page       int  `json:"page"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
	Start      int  `json:"start"`
	End        int  `json:"end"`
}

// Page slices items into fixed-size pages. page is zero-based and clamped into
// the valid range; a non-positive size is treated as 1.
func Page[T any](items []T, page, size int) PageResult[T] {
	if size <= 0 {
		size = 1
	}

	total := len(items)
	totalPages := (total + size - 1) / size

	if page >= totalPages {
		page = totalPages - 1
	}
	if page < 0 {
		page = 0
	}

	start := page * size
	end := start + size
	if end > total {
		end = total
	}

	return PageResult[T]{
		Items:      items[start:end],
		Page:       page,
		TotalPages: totalPages,
		HasNext:    page < totalPages-1,
		HasPrev:    page > 0,
		Start:      start,
		End:        end,
	}
}
