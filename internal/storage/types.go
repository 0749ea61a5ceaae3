package storage

import "time"

// Entry 一次查询提交的本地记录
// Entry is the local record of one query submission
type Entry struct {
	ID               string
	ProjectID        string
	ChatID           string
	Model            string
	Temperature      float64
	TopP             float64
	TopK             int
	FrequencyPenalty float64
	Prompt           string
	Response         string
	Error            string
	ElapsedMS        int64
	CreatedAt        time.Time
}

// Failed reports whether the submission ended in an error.
func (e Entry) Failed() bool {
	return e.Error != ""
}
