package digest

import "mail-digest-go/internal/model"

var transitions = map[model.DigestStatus][]model.DigestStatus{
	model.StatusCreated:  {model.StatusPrepared, model.StatusFailed},
	model.StatusPrepared: {model.StatusSent, model.StatusFailed},
}

// CanTransition reports whether a digest may move from one status to another.
func CanTransition(from, to model.DigestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
