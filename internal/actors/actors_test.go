package actors

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"code.superseriousbusiness.org/httpsig"
	"github.com/go-chi/chi/v5"
	"github.com/sidereusnuntius/fedhost/internal/config"
	"github.com/sidereusnuntius/fedhost/internal/domain"
)

const keyID = "https://remote.social/users/zed#main-key"

type keyVerifier struct {
	key *rsa.PublicKey
}

func (v keyVerifier) Verify(_ context.Context, r *http.Request) (*url.URL, error) {
	verifier, err := httpsig.NewVerifier(r)
	if err != nil {
		return nil, err
	}
	if verifier.KeyId() != keyID {
		return nil, errors.New("unknown key")
	}
	if err = verifier.Verify(v.key, httpsig.RSA_SHA256); err != nil {
		return nil, err
	}
	return url.Parse(keyID)
}

type fakePosts []domain.Post

func (f fakePosts) ListPosts(context.Context, int64, int) ([]domain.Post, error) {
	return f, nil
}

func mustParse(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

var carol = domain.User{
	ID:           1,
	Username:     "carol",
	Subdomain:    "carol",
	DisplayName:  "Carol",
	Active:       true,
	FederationID: mustParse("https://carol.example.io/user/carol"),
	PublicKey:    "-----BEGIN PUBLIC KEY-----\n-----END PUBLIC KEY-----\n",
}

func newRouter(t *testing.T) (http.Handler, *rsa.PrivateKey) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	cfg := &config.Configuration{BaseDomain: "example.io", Https: true, FederationEnabled: true}
	h := New(cfg, keyVerifier{key: &key.PublicKey}, fakePosts{{ID: "p1", Content: "first post"}})
	r := chi.NewRouter()
	h.Mount(r, carol)
	return r, key
}

func do(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestActorDocument(t *testing.T) {
	h, _ := newRouter(t)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/user/carol", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != ActivityType {
		t.Errorf("unexpected content type %q", ct)
	}

	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	expected := map[string]string{
		"id":                "https://carol.example.io/user/carol",
		"type":              "Person",
		"preferredUsername": "carol",
		"inbox":             "https://carol.example.io/user/carol/inbox",
		"outbox":            "https://carol.example.io/user/carol/outbox",
		"followers":         "https://carol.example.io/user/carol/followers",
		"following":         "https://carol.example.io/user/carol/following",
		"url":               "https://carol.example.io/@carol",
	}
	for k, v := range expected {
		if doc[k] != v {
			t.Errorf("%s: expected %q, got %v", k, v, doc[k])
		}
	}
	endpoints, _ := doc["endpoints"].(map[string]any)
	if endpoints["sharedInbox"] != "https://carol.example.io/inbox" {
		t.Errorf("unexpected endpoints: %v", doc["endpoints"])
	}

	if rec = do(h, httptest.NewRequest(http.MethodGet, "/user/dave", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another user, got %d", rec.Code)
	}
}

func TestCollectionsAreEmpty(t *testing.T) {
	h, _ := newRouter(t)

	for _, c := range []string{"inbox", "outbox", "followers", "following"} {
		t.Run(c, func(t *testing.T) {
			rec := do(h, httptest.NewRequest(http.MethodGet, "/user/carol/"+c, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			var doc map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if doc["type"] != "OrderedCollection" {
				t.Errorf("unexpected type %v", doc["type"])
			}
			if doc["totalItems"] != float64(0) {
				t.Errorf("unexpected totalItems %v", doc["totalItems"])
			}
			if doc["id"] != "https://carol.example.io/user/carol/"+c {
				t.Errorf("unexpected id %v", doc["id"])
			}
		})
	}
}

func signed(t *testing.T, key *rsa.PrivateKey, target string, body []byte) *http.Request {
	r := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	r.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	r.Header.Set("Content-Type", ActivityType)
	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		[]string{httpsig.RequestTarget, "date", "digest"},
		httpsig.Signature,
		3600,
	)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err = signer.SignRequest(key, keyID, r, body); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return r
}

func TestInbox(t *testing.T) {
	h, key := newRouter(t)
	body := []byte(`{"id":"https://remote.social/a/1","type":"Follow","actor":"https://remote.social/users/zed"}`)

	for _, target := range []string{"/user/carol/inbox", "/inbox"} {
		if rec := do(h, signed(t, key, target, body)); rec.Code != http.StatusAccepted {
			t.Errorf("%s: expected 202, got %d: %s", target, rec.Code, rec.Body)
		}
	}

	unsigned := httptest.NewRequest(http.MethodPost, "/inbox", bytes.NewReader(body))
	if rec := do(h, unsigned); rec.Code != http.StatusUnauthorized {
		t.Errorf("unsigned: expected 401, got %d", rec.Code)
	}

	tampered := signed(t, key, "/inbox", body)
	tampered.Body = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":"Delete"}`)).Body
	if rec := do(h, tampered); rec.Code != http.StatusUnauthorized {
		t.Errorf("tampered: expected 401, got %d", rec.Code)
	}

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if rec := do(h, signed(t, other, "/inbox", body)); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", rec.Code)
	}
}

func TestInboxWithFederationDisabled(t *testing.T) {
	cfg := &config.Configuration{BaseDomain: "example.io", FederationEnabled: false}
	h := New(cfg, keyVerifier{}, fakePosts{})
	r := chi.NewRouter()
	h.Mount(r, carol)

	rec := do(r, httptest.NewRequest(http.MethodPost, "/inbox", strings.NewReader("{}")))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestProfilePage(t *testing.T) {
	h, _ := newRouter(t)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/@carol", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	for _, s := range []string{"Carol", "@carol@example.io", "first post"} {
		if !strings.Contains(rec.Body.String(), s) {
			t.Errorf("profile page is missing %q", s)
		}
	}

	r := httptest.NewRequest(http.MethodGet, "/@carol", nil)
	r.Header.Set("Accept", ActivityType)
	rec = do(h, r)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "https://carol.example.io/user/carol" {
		t.Errorf("expected a redirect to the actor, got %d %s", rec.Code, rec.Header().Get("Location"))
	}

	if rec = do(h, httptest.NewRequest(http.MethodGet, "/@dave", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
