package storage

import "time"

// Feedback is a user rating of a generated answer.
type Feedback struct {
	ID        string
	AnswerID  string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// EntryVector is the stored embedding of a knowledge entry.
type EntryVector struct {
	EntryID   string
	Model     string
	Embedding []float32
}
