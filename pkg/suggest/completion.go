package suggest

import (
	"sort"
	"strings"
	"time"

	"github.com/bastiangx/tagserve/internal/metrics"
	"github.com/bastiangx/tagserve/pkg/index"
	"github.com/charmbracelet/log"
)

// Hidden is a set of tag ids whose associated records must not be suggested.
type Hidden map[index.TagID]struct{}

// NewHidden builds a Hidden set out of ids.
func NewHidden(ids ...index.TagID) Hidden {
	h := make(Hidden, len(ids))
	for _, id := range ids {
		h[id] = struct{}{}
	}
	return h
}

func (h Hidden) intersects(ids []index.TagID) bool {
	if len(h) == 0 {
		return false
	}
	for _, id := range ids {
		if _, ok := h[id]; ok {
			return true
		}
	}
	return false
}

// TopK returns at most k records whose names start with prefix, ordered by
// image count descending. Records with equal counts keep index order.
// Matching is case-sensitive against the stored names. An empty prefix
// yields nothing.
func TopK(ci *index.CompiledIndex, prefix string, k int, hidden Hidden) []index.TagRecord {
	if ci == nil || prefix == "" || k <= 0 {
		return nil
	}
	start := time.Now()
	defer func() { metrics.SearchLatency.Observe(time.Since(start).Seconds()) }()

	from, ok := lowerBound(ci, prefix)
	if !ok {
		return nil
	}

	var matches []index.TagRecord
	for i := from; i < ci.RecordCount(); i++ {
		rec, err := ci.RecordAt(i)
		if err != nil {
			log.Errorf("Decoding record %d: %v", i, err)
			break
		}
		if !strings.HasPrefix(rec.Name, prefix) {
			break
		}
		if hidden.intersects(rec.Associations) {
			continue
		}
		matches = append(matches, rec)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].ImageCount > matches[j].ImageCount
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// lowerBound finds the first record whose name, cut to len(prefix) bytes,
// does not sort before prefix.
func lowerBound(ci *index.CompiledIndex, prefix string) (int, bool) {
	lo, hi := 0, ci.RecordCount()
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		name, err := ci.NameAt(mid)
		if err != nil {
			log.Errorf("Decoding name %d: %v", mid, err)
			return 0, false
		}
		if len(name) > len(prefix) {
			name = name[:len(prefix)]
		}
		if name < prefix {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, true
}

// Searcher answers prefix queries from one compiled index.
type Searcher struct {
	index *index.CompiledIndex
}

// NewSearcher wraps a decoded index.
func NewSearcher(ci *index.CompiledIndex) *Searcher {
	return &Searcher{index: ci}
}

// Complete returns suggestion items for prefix.
func (s *Searcher) Complete(prefix string, limit int, hidden Hidden) []Item {
	return FromRecords(TopK(s.index, prefix, limit, hidden), len(prefix))
}

// Stats returns basic information about the loaded index.
func (s *Searcher) Stats() map[string]int {
	return map[string]int{
		"totalTags": s.index.RecordCount(),
		"blobBytes": s.index.Size(),
	}
}
