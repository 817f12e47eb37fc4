package client

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"clipscribe/core"
)

// ErrNoFileSelected means submission was attempted without a video; the
// form stays interactive and no transition happens.
var ErrNoFileSelected = errors.New("no video file selected")

// ErrFormBusy means the machine is not in waiting: a submission is in
// flight or a terminal state has not been dismissed yet.
var ErrFormBusy = errors.New("form is not ready for a new submission")

// ConversionJob is one client-side audio extraction.
type ConversionJob interface {
	Run(ctx context.Context) (string, error)
}

// Backend is the server side of the pipeline.
type Backend interface {
	UploadAudio(ctx context.Context, path string) (core.VideoRecord, error)
	CreateTranscription(ctx context.Context, videoID, prompt string) error
}

// Pipeline drives one submission through convert, upload and transcribe.
// The stages are strictly sequential: conversion finishes (including its
// final progress reset) before upload starts, and upload finishes before
// transcription is triggered.
type Pipeline struct {
	Machine *Machine
	Backend Backend
	NewJob  func(input string, onProgress func(float64)) ConversionJob
	Logger  *zap.Logger
}

type stage struct {
	done Event
	run  func(ctx context.Context) error
}

// Run performs a single submission attempt and returns the created video
// id. Exactly one of success or error is reached before it returns; the
// terminal state stays visible until the caller dismisses it, and a new
// attempt before that dismissal fails with ErrFormBusy.
func (p *Pipeline) Run(ctx context.Context, videoPath, vocabularyHint string, onProgress func(float64)) (string, error) {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if videoPath == "" {
		return "", ErrNoFileSelected
	}

	var (
		audioPath string
		videoID   string
	)
	stages := []stage{
		{done: EventConverted, run: func(ctx context.Context) error {
			job := p.NewJob(videoPath, onProgress)
			path, err := job.Run(ctx)
			if err != nil {
				return err
			}
			audioPath = path
			return nil
		}},
		{done: EventUploaded, run: func(ctx context.Context) error {
			rec, err := p.Backend.UploadAudio(ctx, audioPath)
			if err != nil {
				return err
			}
			videoID = rec.ID
			return nil
		}},
		{done: EventTranscribed, run: func(ctx context.Context) error {
			return p.Backend.CreateTranscription(ctx, videoID, vocabularyHint)
		}},
	}

	if !p.Machine.TrySubmit() {
		return "", ErrFormBusy
	}
	for _, s := range stages {
		if err := s.run(ctx); err != nil {
			log.Error("upload pipeline failed",
				zap.String("status", string(p.Machine.Status())),
				zap.Error(err))
			p.Machine.Apply(EventFail)
			return "", err
		}
		p.Machine.Apply(s.done)
	}
	return videoID, nil
}

// Dismiss acknowledges a terminal state and returns the form to waiting.
func (p *Pipeline) Dismiss() {
	p.Machine.Apply(EventDismiss)
}
