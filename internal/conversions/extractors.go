package conversions

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/url"
	"time"

	"code.superseriousbusiness.org/activity/streams"
	"code.superseriousbusiness.org/activity/streams/vocab"
	"github.com/sidereusnuntius/fedhost/internal/domain"
)

var actorTypes = map[string]bool{
	streams.ActivityStreamsPersonName:       true,
	streams.ActivityStreamsServiceName:      true,
	streams.ActivityStreamsApplicationName:  true,
	streams.ActivityStreamsGroupName:        true,
	streams.ActivityStreamsOrganizationName: true,
}

func IsActor(t vocab.Type) bool {
	return actorTypes[t.GetTypeName()]
}

func ExtractPublicKeyFromActor(actor WithPublicKeyProperty) (string, error) {
	pubKeyProp := actor.GetW3IDSecurityV1PublicKey()
	if pubKeyProp == nil || pubKeyProp.Len() == 0 {
		return "", fmt.Errorf("%w: public key", ErrMissingProperty)
	}

	keyPemProp := pubKeyProp.Begin().Get().GetW3IDSecurityV1PublicKeyPem()
	if keyPemProp == nil {
		return "", fmt.Errorf("%w: publicKeyPem", ErrMissingProperty)
	}
	return keyPemProp.Get(), nil
}

func ExtractPublicKeyFromPem(block pem.Block) (crypto.PublicKey, error) {
	var pubKey crypto.PublicKey
	var err error
	switch block.Type {
	case "PUBLIC KEY":
		pubKey, err = x509.ParsePKIXPublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		pubKey, err = x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		err = fmt.Errorf("unsupported type: %s", block.Type)
	}

	if err != nil {
		return nil, err
	}
	return pubKey, nil
}

// ParsePublicKey decodes the PEM found in an actor's publicKeyPem.
func ParsePublicKey(keyPem string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(keyPem))
	if block == nil {
		return nil, fmt.Errorf("%w: publicKeyPem is not PEM", ErrUnprocessablePropValue)
	}
	return ExtractPublicKeyFromPem(*block)
}

// ActorToRemote keeps what delivery and signature checks need from a dereferenced actor document. raw is the
// document the actor was parsed from; sharedInbox is read from its endpoints object.
func ActorToRemote(actor vocab.Type, raw map[string]any, fetched time.Time) (r domain.RemoteActor, err error) {
	a, ok := actor.(Actor)
	if !ok || !IsActor(actor) {
		return r, fmt.Errorf("%w: %s is not an actor", ErrUnsupported, actor.GetTypeName())
	}

	idProp := a.GetJSONLDId()
	if idProp == nil || idProp.Get() == nil {
		return r, fmt.Errorf("%w: id", ErrMissingProperty)
	}
	r.IRI = idProp.Get()

	inbox := a.GetActivityStreamsInbox()
	if inbox == nil {
		return r, fmt.Errorf("%w: inbox", ErrMissingProperty)
	}
	if !inbox.IsIRI() {
		return r, fmt.Errorf("%w: inbox", ErrUnprocessablePropValue)
	}
	r.Inbox = inbox.GetIRI()

	if r.PublicKey, err = ExtractPublicKeyFromActor(a); err != nil {
		return r, err
	}

	if endpoints, ok := raw["endpoints"].(map[string]any); ok {
		if s, ok := endpoints["sharedInbox"].(string); ok {
			if shared, err := url.Parse(s); err == nil && shared.IsAbs() {
				r.SharedInbox = shared
			}
		}
	}

	r.Fetched = fetched
	return r, nil
}

// AttributedTo returns the first author IRI of an object, such as a Note.
func AttributedTo(object vocab.Type) (*url.URL, error) {
	o, ok := object.(withAttributedTo)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no attributedTo", ErrUnsupported, object.GetTypeName())
	}

	prop := o.GetActivityStreamsAttributedTo()
	if prop == nil || prop.Len() == 0 {
		return nil, fmt.Errorf("%w: attributedTo", ErrMissingProperty)
	}
	for it := prop.Begin(); it != prop.End(); it = it.Next() {
		if it.IsIRI() {
			return it.GetIRI(), nil
		}
		if t := it.GetType(); t != nil && t.GetJSONLDId() != nil {
			return t.GetJSONLDId().Get(), nil
		}
	}
	return nil, fmt.Errorf("%w: attributedTo", ErrUnprocessablePropValue)
}

// ToType parses an ActivityStreams document.
func ToType(ctx context.Context, raw map[string]any) (vocab.Type, error) {
	return streams.ToType(ctx, raw)
}
