package engine

import (
	"sort"

	"github.com/lazypower/sounddrop/internal/drop"
)

// Dedupe unions hot and archived drops by id. When an id is in both, the hot
// copy wins. The result is ordered newest first, ties broken by id.
func Dedupe(hot []drop.SoundDrop, archived []drop.ArchivedDrop) []drop.Record {
	seen := make(map[int64]bool, len(hot)+len(archived))
	out := make([]drop.Record, 0, len(hot)+len(archived))

	for _, d := range hot {
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		out = append(out, drop.HotRecord(d))
	}
	for _, a := range archived {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, drop.ArchiveRecord(a))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].ID > out[j].ID
	})
	return out
}
