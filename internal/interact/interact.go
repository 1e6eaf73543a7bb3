// Package interact asks the user for input and tells them about outcomes.
package interact

import (
	"context"
)

type Prompt struct {
	// Key identifies the question independently of its wording.
	Key     string
	Message string
	Default string
	Secret  bool
	// Retry is set when the question is asked again after the previous answer failed.
	Retry bool
}

type Level int

const (
	LevelInfo Level = iota
	LevelError
)

type Notice struct {
	Level Level
	// Title names the kind of outcome, such as an error type.
	Title   string
	Message string
}

func (n Notice) String() string {
	if n.Title == "" {
		return n.Message
	}
	return n.Title + ": " + n.Message
}

// Interactor is the capability of asking the user for a string and showing them notices.
type Interactor interface {
	// Ask returns ok=false when the user cancelled the prompt.
	Ask(ctx context.Context, prompt Prompt) (value string, ok bool, err error)
	Notify(notice Notice)
}

// Preset answers prompts from fixed values and delegates everything else.
type Preset struct {
	Interactor
	Answers map[string]string
}

func NewPreset(next Interactor, answers map[string]string) *Preset {
	return &Preset{Interactor: next, Answers: answers}
}

func (p *Preset) Ask(ctx context.Context, prompt Prompt) (string, bool, error) {
	if !prompt.Retry {
		if v := p.Answers[prompt.Key]; v != "" {
			return v, true, nil
		}
	}
	return p.Interactor.Ask(ctx, prompt)
}
