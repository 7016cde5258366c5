package model

import "time"

// JustificationRecord is the written explanation a person supplies to move
// an escalated task to ACKNOWLEDGED. At most one exists per task episode.
type JustificationRecord struct {
	ID          string    `json:"id" db:"id"`
	TaskID      string    `json:"task_id" db:"task_id"`
	Episode     int64     `json:"episode" db:"episode"`
	EscalatedAt time.Time `json:"escalated_at" db:"escalated_at"`
	Text        string    `json:"text" db:"text"`
	SubmittedAt time.Time `json:"submitted_at" db:"submitted_at"`
	SubmittedBy string    `json:"submitted_by" db:"submitted_by"`
}
