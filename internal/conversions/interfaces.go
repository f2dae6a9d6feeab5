package conversions

import (
	"net/url"

	"code.superseriousbusiness.org/activity/streams/vocab"
)

type IriProperty interface {
	IsIRI() bool
	GetIRI() *url.URL
}

type WithPublicKeyProperty interface {
	GetW3IDSecurityV1PublicKey() vocab.W3IDSecurityV1PublicKeyProperty
	SetW3IDSecurityV1PublicKey(i vocab.W3IDSecurityV1PublicKeyProperty)
}

// Actor is the part of every actor type (Person, Service, Application, Group, Organization) needed for delivery.
type Actor interface {
	vocab.Type
	WithPublicKeyProperty
	GetActivityStreamsInbox() vocab.ActivityStreamsInboxProperty
}

type withAttributedTo interface {
	GetActivityStreamsAttributedTo() vocab.ActivityStreamsAttributedToProperty
}

// Activity is implemented by every activity type built by NewActivity.
type Activity interface {
	vocab.Type
	SetActivityStreamsActor(i vocab.ActivityStreamsActorProperty)
	SetActivityStreamsObject(i vocab.ActivityStreamsObjectProperty)
	SetActivityStreamsTo(i vocab.ActivityStreamsToProperty)
	SetActivityStreamsCc(i vocab.ActivityStreamsCcProperty)
	SetActivityStreamsPublished(i vocab.ActivityStreamsPublishedProperty)
}
