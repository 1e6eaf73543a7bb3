package session

import (
	"label-printer/internal/interact"
	"label-printer/internal/printserver"
)

func statusNotice(err error) interact.Notice {
	if kind, message, ok := printserver.Describe(err); ok {
		return interact.Notice{Level: interact.LevelError, Title: kind, Message: message}
	}
	return interact.Notice{Level: interact.LevelError, Title: "Error", Message: err.Error()}
}
