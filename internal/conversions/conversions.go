package conversions

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"code.superseriousbusiness.org/activity/streams"
	"code.superseriousbusiness.org/activity/streams/vocab"
	"github.com/sidereusnuntius/fedhost/internal/domain"
)

var (
	ErrMissingProperty        = errors.New("missing property")
	ErrUnprocessablePropValue = errors.New("unprocessable property value")
	ErrUnsupported            = errors.New("unsupported")
)

const PublicAddress = "https://www.w3.org/ns/activitystreams#Public"

var Public, _ = url.Parse(PublicAddress)

// ActorLinks are the collection and page IRIs published in a local actor document.
type ActorLinks struct {
	Inbox       *url.URL
	Outbox      *url.URL
	Followers   *url.URL
	Following   *url.URL
	SharedInbox *url.URL
	Profile     *url.URL
}

// LinksFor derives the standard endpoints of a local actor from its id. sharedInbox lives at the root of the
// user's site.
func LinksFor(id, profile *url.URL) ActorLinks {
	site := *id
	site.Path = "/"
	return ActorLinks{
		Inbox:       id.JoinPath("inbox"),
		Outbox:      id.JoinPath("outbox"),
		Followers:   id.JoinPath("followers"),
		Following:   id.JoinPath("following"),
		SharedInbox: site.JoinPath("inbox"),
		Profile:     profile,
	}
}

func UserToActor(u domain.User, links ActorLinks) vocab.ActivityStreamsPerson {
	a := streams.NewActivityStreamsPerson()

	id := streams.NewJSONLDIdProperty()
	id.SetIRI(u.FederationID)
	a.SetJSONLDId(id)

	username := streams.NewActivityStreamsPreferredUsernameProperty()
	username.SetXMLSchemaString(u.Username)
	a.SetActivityStreamsPreferredUsername(username)

	if u.DisplayName != "" {
		name := streams.NewActivityStreamsNameProperty()
		name.AppendXMLSchemaString(u.DisplayName)
		a.SetActivityStreamsName(name)
	}

	if u.Summary != "" {
		summary := streams.NewActivityStreamsSummaryProperty()
		summary.AppendXMLSchemaString(u.Summary)
		a.SetActivityStreamsSummary(summary)
	}

	if links.Profile != nil {
		iri := streams.NewActivityStreamsUrlProperty()
		iri.AppendIRI(links.Profile)
		a.SetActivityStreamsUrl(iri)
	}

	inbox := streams.NewActivityStreamsInboxProperty()
	inbox.SetIRI(links.Inbox)
	a.SetActivityStreamsInbox(inbox)

	outbox := streams.NewActivityStreamsOutboxProperty()
	outbox.SetIRI(links.Outbox)
	a.SetActivityStreamsOutbox(outbox)

	followers := streams.NewActivityStreamsFollowersProperty()
	followers.SetIRI(links.Followers)
	a.SetActivityStreamsFollowers(followers)

	following := streams.NewActivityStreamsFollowingProperty()
	following.SetIRI(links.Following)
	a.SetActivityStreamsFollowing(following)

	if !u.Created.IsZero() {
		created := streams.NewActivityStreamsPublishedProperty()
		created.Set(u.Created)
		a.SetActivityStreamsPublished(created)
	}
	if !u.Updated.IsZero() {
		updated := streams.NewActivityStreamsUpdatedProperty()
		updated.Set(u.Updated)
		a.SetActivityStreamsUpdated(updated)
	}

	a.SetW3IDSecurityV1PublicKey(PublicKeyProp(u.FederationID, u.PublicKey))
	return a
}

// SerializeActor renders the actor document. The endpoints object carrying sharedInbox is added to the
// serialized form directly.
func SerializeActor(u domain.User, links ActorLinks) (map[string]any, error) {
	m, err := streams.Serialize(UserToActor(u, links))
	if err != nil {
		return nil, err
	}
	if links.SharedInbox != nil {
		m["endpoints"] = map[string]any{"sharedInbox": links.SharedInbox.String()}
	}
	return m, nil
}

func KeyID(owner *url.URL) *url.URL {
	k := *owner
	k.Fragment = "main-key"
	return &k
}

func PublicKeyProp(owner *url.URL, publicKeyPem string) vocab.W3IDSecurityV1PublicKeyProperty {
	keyProp := streams.NewW3IDSecurityV1PublicKeyProperty()
	key := streams.NewW3IDSecurityV1PublicKey()

	ownerProp := streams.NewW3IDSecurityV1OwnerProperty()
	ownerProp.SetIRI(owner)

	keyURIProp := streams.NewJSONLDIdProperty()
	keyURIProp.SetIRI(KeyID(owner))

	pemProp := streams.NewW3IDSecurityV1PublicKeyPemProperty()
	pemProp.Set(publicKeyPem)

	key.SetJSONLDId(keyURIProp)
	key.SetW3IDSecurityV1PublicKeyPem(pemProp)
	key.SetW3IDSecurityV1Owner(ownerProp)

	keyProp.AppendW3IDSecurityV1PublicKey(key)
	return keyProp
}

func PostToNote(p domain.Post, actor *url.URL) vocab.ActivityStreamsNote {
	n := streams.NewActivityStreamsNote()

	id := streams.NewJSONLDIdProperty()
	id.SetIRI(p.FederationID)
	n.SetJSONLDId(id)

	content := streams.NewActivityStreamsContentProperty()
	content.AppendXMLSchemaString(p.Content)
	n.SetActivityStreamsContent(content)

	author := streams.NewActivityStreamsAttributedToProperty()
	author.AppendIRI(actor)
	n.SetActivityStreamsAttributedTo(author)

	to := streams.NewActivityStreamsToProperty()
	to.AppendIRI(Public)
	n.SetActivityStreamsTo(to)

	cc := streams.NewActivityStreamsCcProperty()
	cc.AppendIRI(actor.JoinPath("followers"))
	n.SetActivityStreamsCc(cc)

	if !p.Created.IsZero() {
		published := streams.NewActivityStreamsPublishedProperty()
		published.Set(p.Created)
		n.SetActivityStreamsPublished(published)
	}
	return n
}

func newActivity(action domain.Action) (Activity, error) {
	switch action {
	case domain.ActionCreate:
		return streams.NewActivityStreamsCreate(), nil
	case domain.ActionUpdate:
		return streams.NewActivityStreamsUpdate(), nil
	case domain.ActionDelete:
		return streams.NewActivityStreamsDelete(), nil
	case domain.ActionFollow:
		return streams.NewActivityStreamsFollow(), nil
	case domain.ActionUnfollow:
		return streams.NewActivityStreamsUndo(), nil
	case domain.ActionLike:
		return streams.NewActivityStreamsLike(), nil
	case domain.ActionAnnounce:
		return streams.NewActivityStreamsAnnounce(), nil
	case domain.ActionAccept:
		return streams.NewActivityStreamsAccept(), nil
	default:
		return nil, fmt.Errorf("%w: action %q", ErrUnsupported, action)
	}
}

// NewActivity wraps object in the activity that corresponds to action. Exactly one of object and objectIRI is
// used: an embedded object wins. Create and Announce are addressed to the public collection and the actor's
// followers; the rest are addressed to the object's owner by delivery alone.
func NewActivity(action domain.Action, id, actor *url.URL, object vocab.Type, objectIRI *url.URL, published time.Time) (Activity, error) {
	a, err := newActivity(action)
	if err != nil {
		return nil, err
	}

	idProp := streams.NewJSONLDIdProperty()
	idProp.SetIRI(id)
	a.SetJSONLDId(idProp)

	actorProp := streams.NewActivityStreamsActorProperty()
	actorProp.AppendIRI(actor)
	a.SetActivityStreamsActor(actorProp)

	objProp := streams.NewActivityStreamsObjectProperty()
	switch {
	case object != nil:
		if err = objProp.AppendType(object); err != nil {
			return nil, err
		}
	case objectIRI != nil:
		objProp.AppendIRI(objectIRI)
	default:
		return nil, fmt.Errorf("%w: object", ErrMissingProperty)
	}
	a.SetActivityStreamsObject(objProp)

	if action == domain.ActionCreate || action == domain.ActionAnnounce {
		to := streams.NewActivityStreamsToProperty()
		to.AppendIRI(Public)
		a.SetActivityStreamsTo(to)

		cc := streams.NewActivityStreamsCcProperty()
		cc.AppendIRI(actor.JoinPath("followers"))
		a.SetActivityStreamsCc(cc)
	}

	if !published.IsZero() {
		p := streams.NewActivityStreamsPublishedProperty()
		p.Set(published)
		a.SetActivityStreamsPublished(p)
	}
	return a, nil
}

// EmptyCollection is what the inbox, outbox, followers and following endpoints answer with.
func EmptyCollection(id *url.URL) vocab.ActivityStreamsOrderedCollection {
	c := streams.NewActivityStreamsOrderedCollection()

	idProp := streams.NewJSONLDIdProperty()
	idProp.SetIRI(id)
	c.SetJSONLDId(idProp)

	total := streams.NewActivityStreamsTotalItemsProperty()
	total.Set(0)
	c.SetActivityStreamsTotalItems(total)

	c.SetActivityStreamsOrderedItems(streams.NewActivityStreamsOrderedItemsProperty())
	return c
}
