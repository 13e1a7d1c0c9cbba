package model

import "time"

// VideoStatus tracks how far a video has progressed through a collection run.
type VideoStatus string

// Video status constants.
const (
	VideoDiscovered  VideoStatus = "DISCOVERED"
	VideoTranscribed VideoStatus = "TRANSCRIBED"
	VideoExtracted   VideoStatus = "EXTRACTED"
	VideoFailed      VideoStatus = "FAILED"
)

// VideoRef is the minimal listing returned by a video source during discovery.
type VideoRef struct {
	ID              string
	Title           string
	Description     string
	ChannelName     string
	DurationSeconds int
	ViewCount       int64
}

// VideoRecord represents a discovered video and, once fetched, its transcript.
type VideoRecord struct {
	CollectedAt     time.Time
	Transcript      *string // nil until a transcript has been fetched
	ID              string
	Title           string
	Description     string
	ChannelName     string
	Status          VideoStatus
	ViewCount       int64
	DurationSeconds int
}

// NewVideoRecord creates a record for a freshly discovered video.
func NewVideoRecord(ref VideoRef, collectedAt time.Time) VideoRecord {
	return VideoRecord{
		ID:              ref.ID,
		Title:           ref.Title,
		Description:     ref.Description,
		ChannelName:     ref.ChannelName,
		DurationSeconds: ref.DurationSeconds,
		ViewCount:       ref.ViewCount,
		CollectedAt:     collectedAt,
		Status:          VideoDiscovered,
	}
}

// HasTranscript reports whether a non-empty transcript is attached.
func (v *VideoRecord) HasTranscript() bool {
	return v.Transcript != nil && *v.Transcript != ""
}

// Chapter is a titled section of a video as reported by chapter metadata.
type Chapter struct {
	Title        string
	StartSeconds int
}
