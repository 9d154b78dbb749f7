package drop

// ArchiveQuery filters and orders an archive store listing.
// Zero values mean "no constraint"; Limit <= 0 means unlimited.
type ArchiveQuery struct {
	Type      string
	Theme     string
	Since     int64 // inclusive, ms
	Until     int64 // exclusive, ms
	Ascending bool
	Limit     int
}

// Matches reports whether d satisfies the query's filters. Stores that cannot
// push a filter down use it to post-filter.
func (q ArchiveQuery) Matches(d *SoundDrop) bool {
	if q.Type != "" && d.Type != q.Type {
		return false
	}
	if q.Theme != "" && d.Theme != q.Theme {
		return false
	}
	if q.Since != 0 && d.Timestamp < q.Since {
		return false
	}
	if q.Until != 0 && d.Timestamp >= q.Until {
		return false
	}
	return true
}
