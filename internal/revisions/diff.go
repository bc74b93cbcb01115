package revisions

import "strings"

type ChangeType string

const (
	ChangeAdded     ChangeType = "added"
	ChangeRemoved   ChangeType = "removed"
	ChangeUnchanged ChangeType = "unchanged"
)

type LineChange struct {
	Type  ChangeType `json:"type"`
	Value string     `json:"value"`
}

// Diff compares the text fields of two revisions of the same post.
type Diff struct {
	PostID      string       `json:"postId"`
	From        int          `json:"fromRevision"`
	To          int          `json:"toRevision"`
	TitleDiff   []LineChange `json:"titleDiff"`
	ContentDiff []LineChange `json:"contentDiff"`
	ExcerptDiff []LineChange `json:"excerptDiff"`
}

// DiffLines compares left and right line by line at equal indexes. It does
// not look for moved or inserted lines: an insertion shifts every following
// line and shows up as a run of removed/added pairs. Clients rely on this
// exact output.
func DiffLines(left, right string) []LineChange {
	l := strings.Split(left, "\n")
	r := strings.Split(right, "\n")

	n := max(len(l), len(r))
	changes := make([]LineChange, 0, n)
	for i := 0; i < n; i++ {
		switch {
		case i >= len(l):
			changes = append(changes, LineChange{Type: ChangeAdded, Value: r[i]})
		case i >= len(r):
			changes = append(changes, LineChange{Type: ChangeRemoved, Value: l[i]})
		case l[i] != r[i]:
			changes = append(changes,
				LineChange{Type: ChangeRemoved, Value: l[i]},
				LineChange{Type: ChangeAdded, Value: r[i]},
			)
		default:
			changes = append(changes, LineChange{Type: ChangeUnchanged, Value: l[i]})
		}
	}
	return changes
}
