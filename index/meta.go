package index

import (
	"sort"

	"github.com/nevindra/bookvision"
)

// metaStore is the ordered, append-only metadata side of the index. Records
// are addressed by the same ordinal position as their vector in the arena.
// All access goes through the Index lock, so metaStore itself holds none.
type metaStore struct {
	records []bookvision.Metadata
}

func (m *metaStore) len() int { return len(m.records) }

func (m *metaStore) at(i int) bookvision.Metadata { return m.records[i] }

func (m *metaStore) append(mds []bookvision.Metadata) {
	m.records = append(m.records, mds...)
}

// byBook returns the records for one book sorted by page; records on the
// same page keep insertion order.
func (m *metaStore) byBook(bookID string) []bookvision.Metadata {
	var out []bookvision.Metadata
	for _, md := range m.records {
		if md.BookID == bookID {
			out = append(out, md)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Page < out[j].Page
	})
	return out
}

func (m *metaStore) hasBook(bookID string) bool {
	for _, md := range m.records {
		if md.BookID == bookID {
			return true
		}
	}
	return false
}

// books aggregates records into per-book listings in first-seen order.
func (m *metaStore) books() []bookvision.BookInfo {
	var order []string
	agg := make(map[string]*bookvision.BookInfo)
	pages := make(map[string]map[int]bool)

	for _, md := range m.records {
		if md.BookID == "" {
			continue
		}
		info, ok := agg[md.BookID]
		if !ok {
			info = &bookvision.BookInfo{BookID: md.BookID, BookTitle: md.BookTitle}
			agg[md.BookID] = info
			pages[md.BookID] = make(map[int]bool)
			order = append(order, md.BookID)
		}
		info.ChunkCount++
		if md.Page > 0 {
			pages[md.BookID][md.Page] = true
		}
	}

	out := make([]bookvision.BookInfo, 0, len(order))
	for _, id := range order {
		info := agg[id]
		for p := range pages[id] {
			info.Pages = append(info.Pages, p)
		}
		sort.Ints(info.Pages)
		info.PageCount = len(info.Pages)
		out = append(out, *info)
	}
	return out
}

func (m *metaStore) uniqueBooks() int {
	seen := make(map[string]bool)
	for _, md := range m.records {
		if md.BookID != "" {
			seen[md.BookID] = true
		}
	}
	return len(seen)
}

// resize repairs a count mismatch against the vector arena: extra records
// are truncated, missing ones padded with empty records.
func (m *metaStore) resize(n int) {
	for len(m.records) < n {
		m.records = append(m.records, bookvision.Metadata{})
	}
	if len(m.records) > n {
		m.records = m.records[:n]
	}
}
