package fetch

import (
	"time"

	"github.com/mikestefanello/backlite"
)

const ResolveQueue = "Resolve"

// maxDepth bounds how many objects are followed to reach an actor: an object IRI resolves to its author, whose
// document must then be an actor.
const maxDepth = 1

// Delivery is a queue item waiting for its target inbox.
type Delivery struct {
	Actor    string
	Action   string
	Object   []byte
	Priority int
}

// ResolveJob dereferences IRI, signed as Signer, and queues Delivery to the inbox of the actor it leads to.
type ResolveJob struct {
	IRI      string
	Signer   string
	Delivery Delivery
	Depth    int
}

func (j ResolveJob) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        ResolveQueue,
		MaxAttempts: 5,
		Backoff:     5 * time.Second,
		Timeout:     15 * time.Second,
		Retention: &backlite.Retention{
			Duration:   12 * time.Hour,
			OnlyFailed: false,
			Data: &backlite.RetainData{
				OnlyFailed: true,
			},
		},
	}
}
