package storage

import "clipscribe/core"

// DefaultPrompts is the static prompt catalog served by GET /prompts.
func DefaultPrompts() []core.Prompt {
	return []core.Prompt{
		{
			ID:    "youtube-title",
			Title: "YouTube title",
			Template: "Generate a short, catchy YouTube title for the video below. " +
				"Reply with the title only, no quotes.\n\nTranscription:\n{transcription}",
		},
		{
			ID:    "youtube-description",
			Title: "YouTube description",
			Template: "Generate a concise YouTube description for the video below, " +
				"written in the first person and highlighting the main topics.\n\n" +
				"Transcription:\n{transcription}",
		},
		{
			ID:    "summary",
			Title: "Summary",
			Template: "Summarize the video below in a handful of bullet points.\n\n" +
				"Transcription:\n{transcription}",
		},
	}
}
