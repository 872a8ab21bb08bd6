package models

// QueueSource tags why an item appears in a session queue
type QueueSource string

const (
	SourceNew                 QueueSource = "NEW"
	SourceMiniReview          QueueSource = "MINI_REVIEW"
	SourceFinalReview         QueueSource = "FINAL_REVIEW"
	SourcePreviousRoundReview QueueSource = "PREVIOUS_ROUND_REVIEW"
	SourceRemedy              QueueSource = "REMEDY"
)

// QueueItem is one entry of a built session queue. The same item may appear
// several times in one queue under different sources.
type QueueItem struct {
	Item   LearningItemRef `json:"item"`
	Source QueueSource     `json:"source"`
	Round  int             `json:"round"`
}
