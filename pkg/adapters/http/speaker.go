package http

import (
	"context"
	"sync/atomic"

	"github.com/aretw0/callflow/pkg/domain"
)

// streamSpeaker forwards speak requests of a live call to its SSE subscribers.
// The voice client reports playback through POST /live/{id}/speech.
type streamSpeaker struct {
	topic    string
	streams  *StreamManager
	speaking atomic.Bool
}

func (s *streamSpeaker) Say(_ context.Context, req domain.SpeakRequest) error {
	s.streams.Broadcast(s.topic, Event{Type: "speak", Data: req})
	return nil
}

func (s *streamSpeaker) Speaking() bool {
	return s.speaking.Load()
}
