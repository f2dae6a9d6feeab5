// Package federation delivers activities to remote inboxes. Items are stored by the datastore and drained by a
// single worker, so deliveries to one inbox keep their enqueue order within a priority.
package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"code.superseriousbusiness.org/activity/streams"
	"code.superseriousbusiness.org/activity/streams/vocab"
	"github.com/sidereusnuntius/fedhost/internal/conversions"
	"github.com/sidereusnuntius/fedhost/internal/domain"
)

// Lower values are delivered first.
const (
	PriorityHigh   = 0
	PriorityNormal = 10
	PriorityLow    = 20
)

var ErrMalformedItem = errors.New("malformed queue item")

// envelope is what a queue item's object column holds: the id of the activity to build and its object, either
// an embedded ActivityStreams document or an IRI string.
type envelope struct {
	ID     string          `json:"id"`
	Object json.RawMessage `json:"object"`
}

// NoteObject stores a post as the embedded object of a Create.
func NoteObject(p domain.Post, actor *url.URL) ([]byte, error) {
	note, err := streams.Serialize(conversions.PostToNote(p, actor))
	if err != nil {
		return nil, err
	}
	obj, err := json.Marshal(note)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		ID:     p.FederationID.JoinPath("activity").String(),
		Object: obj,
	})
}

// IRIObject stores an activity that refers to its object by IRI, such as a Follow or a Like.
func IRIObject(id, iri *url.URL) ([]byte, error) {
	obj, err := json.Marshal(iri.String())
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{ID: id.String(), Object: obj})
}

// Serialize builds the wire form of an item: the activity named by its action, sent by its actor, wrapping the
// stored object.
func Serialize(ctx context.Context, item domain.FederationQueueItem) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(item.Object, &env); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedItem, err)
	}
	id, err := url.Parse(env.ID)
	if err != nil || !id.IsAbs() {
		return nil, fmt.Errorf("%w: activity id %q", ErrMalformedItem, env.ID)
	}

	var (
		object    vocab.Type
		objectIRI *url.URL
		iri       string
		doc       map[string]any
	)
	switch {
	case json.Unmarshal(env.Object, &iri) == nil:
		if objectIRI, err = url.Parse(iri); err != nil {
			return nil, fmt.Errorf("%w: object %q", ErrMalformedItem, iri)
		}
	case json.Unmarshal(env.Object, &doc) == nil:
		if object, err = streams.ToType(ctx, doc); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedItem, err)
		}
	default:
		return nil, fmt.Errorf("%w: object is neither an IRI nor a document", ErrMalformedItem)
	}

	activity, err := conversions.NewActivity(item.Action, id, item.Actor, object, objectIRI, item.Created)
	if err != nil {
		return nil, err
	}
	m, err := streams.Serialize(activity)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}
