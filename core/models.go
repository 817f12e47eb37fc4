package core

import "time"

// VideoRecord ties a staged audio file to its optional transcription.
// Path is owned by the server process and never writable by clients.
type VideoRecord struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	Transcription *string   `json:"transcription"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Prompt is one entry of the reusable prompt catalog.
type Prompt struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Template string `json:"template"`
}

// SearchHit is one scored transcript match.
type SearchHit struct {
	VideoID string  `json:"videoId"`
	Name    string  `json:"name"`
	Score   float64 `json:"score"`
}
