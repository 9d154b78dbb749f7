// Package drop holds the sound drop domain types shared by the stores, the
// retention engine and the HTTP server.
package drop

import "sort"

// Provenance of a drop's audio.
const (
	TypeRecorded = "recorded"
	TypeUploaded = "uploaded"
)

// DefaultAuthor is used for comments submitted without an author.
const DefaultAuthor = "Researcher"

// Record sources in the admin and export views.
const (
	SourceHot     = "hot"
	SourceArchive = "archive"
)

// SoundDrop is a single submitted audio clip with its metadata and comment thread.
type SoundDrop struct {
	ID          int64     `json:"id"`
	Timestamp   int64     `json:"timestamp"`
	Theme       string    `json:"theme"`
	AudioData   string    `json:"audioData"`
	Context     string    `json:"context"`
	Type        string    `json:"type"`
	Filename    string    `json:"filename"`
	Discussions []Comment `json:"discussions"`
}

// Comment is one entry in a drop's discussion thread.
type Comment struct {
	ID        int64  `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
	Author    string `json:"author"`
	Edited    bool   `json:"edited,omitempty"`
	EditedAt  int64  `json:"editedAt,omitempty"`
}

// ArchivedDrop is a drop moved to the archive store, with research metadata.
type ArchivedDrop struct {
	SoundDrop
	ArchivedAt     string `json:"archived_at"`
	ResearchStatus string `json:"research_status"`
	StudyPhase     string `json:"study_phase"`
}

// Record is a drop as seen by the admin and export views, tagged with the
// store it was read from. Archive fields are empty for hot records.
type Record struct {
	SoundDrop
	ArchivedAt     string `json:"archived_at,omitempty"`
	ResearchStatus string `json:"research_status,omitempty"`
	StudyPhase     string `json:"study_phase,omitempty"`
	Source         string `json:"source"`
}

// IsValidType reports whether t is a known provenance.
func IsValidType(t string) bool {
	return t == TypeRecorded || t == TypeUploaded
}

// Age returns how old the drop is at now, in milliseconds.
func (d *SoundDrop) Age(now int64) int64 {
	return now - d.Timestamp
}

// Clone returns a deep copy so callers can mutate without touching a snapshot.
func (d SoundDrop) Clone() SoundDrop {
	if d.Discussions != nil {
		d.Discussions = append([]Comment(nil), d.Discussions...)
	}
	return d
}

// FindComment returns the index of the comment with the given id, or -1.
func (d *SoundDrop) FindComment(id int64) int {
	for i := range d.Discussions {
		if d.Discussions[i].ID == id {
			return i
		}
	}
	return -1
}

// NextID returns candidate when it is greater than every id in ids, and
// max(ids)+1 otherwise. Ids double as creation-order keys, so they must stay
// strictly increasing even when two creates land in the same millisecond.
func NextID(candidate int64, ids ...int64) int64 {
	next := candidate
	for _, id := range ids {
		if id >= next {
			next = id + 1
		}
	}
	return next
}

// HotRecord wraps a hot-store drop for the admin and export views.
func HotRecord(d SoundDrop) Record {
	return Record{SoundDrop: d, Source: SourceHot}
}

// ArchiveRecord wraps an archived drop for the admin and export views.
func ArchiveRecord(a ArchivedDrop) Record {
	return Record{
		SoundDrop:      a.SoundDrop,
		ArchivedAt:     a.ArchivedAt,
		ResearchStatus: a.ResearchStatus,
		StudyPhase:     a.StudyPhase,
		Source:         SourceArchive,
	}
}

// SortNewestFirst orders drops by timestamp descending, breaking ties by id.
func SortNewestFirst(drops []SoundDrop) {
	sort.SliceStable(drops, func(i, j int) bool {
		if drops[i].Timestamp != drops[j].Timestamp {
			return drops[i].Timestamp > drops[j].Timestamp
		}
		return drops[i].ID > drops[j].ID
	})
}
