package stt

import "context"

// Provider turns one chunk of spoken-answer audio into text. Implementations
// are opaque audio I/O services; the interview flow only needs the best
// transcript and its confidence.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, language string) (text string, confidence float64, err error)
	Close() error
}
