package ports

import (
	"context"

	"github.com/aretw0/callflow/pkg/domain"
)

// Speaker is the speech collaborator. The core never synthesizes audio itself.
type Speaker interface {
	// Say speaks a literal line, or requests a generated reply when req.Text is empty.
	Say(ctx context.Context, req domain.SpeakRequest) error

	// Speaking reports whether the agent is currently producing speech.
	Speaking() bool
}

// Reporter delivers the session-end report.
type Reporter interface {
	Report(ctx context.Context, report *domain.Report) error
}
