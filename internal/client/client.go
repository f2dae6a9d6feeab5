package client

import (
	"bytes"
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"code.superseriousbusiness.org/httpsig"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/conversions"
	"golang.org/x/time/rate"
)

var prefs = []httpsig.Algorithm{httpsig.RSA_SHA256}
var getHeaders = []string{httpsig.RequestTarget, "date"}
var postHeaders = []string{httpsig.RequestTarget, "date", "digest"}

const (
	ActivityType    = "application/activity+json"
	maxResponseSize = 1 << 20
)

// KeyStore finds the private key of a local actor.
type KeyStore interface {
	GetUserPrivateKeyByURI(ctx context.Context, iri *url.URL) (crypto.PrivateKey, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Status, e.Body)
}

// HttpClient signs requests with the key of the local actor they are made for. Requests to one host are throttled
// so a burst of deliveries does not flood a single remote server.
type HttpClient struct {
	keys      KeyStore
	client    *http.Client
	userAgent string
	limit     rate.Limit
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New builds a client allowing perHost requests per second to each remote host, with bursts of up to burst.
func New(keys KeyStore, client *http.Client, userAgent string, perHost rate.Limit, burst int) *HttpClient {
	if burst < 1 {
		burst = 1
	}
	return &HttpClient{
		keys:      keys,
		client:    client,
		userAgent: userAgent,
		limit:     perHost,
		burst:     burst,
		limiters:  map[string]*rate.Limiter{},
	}
}

func (c *HttpClient) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[host] = l
	}
	return l
}

func (c *HttpClient) sign(ctx context.Context, req *http.Request, actor *url.URL, headers []string, body []byte) error {
	if actor == nil {
		return nil
	}

	owner := *actor
	owner.Fragment = ""
	key, err := c.keys.GetUserPrivateKeyByURI(ctx, &owner)
	if err != nil {
		return fmt.Errorf("private key of %s: %w", owner.String(), err)
	}

	signer, _, err := httpsig.NewSigner(prefs, httpsig.DigestSha256, headers, httpsig.Signature, 3600)
	if err != nil {
		return err
	}
	return signer.SignRequest(key, conversions.KeyID(&owner).String(), req, body)
}

func (c *HttpClient) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter(req.URL.Host).Wait(ctx); err != nil {
		return nil, err
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		defer res.Body.Close()
		content, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, &StatusError{Code: res.StatusCode, Status: res.Status, Body: strings.TrimSpace(string(content))}
	}
	return res, nil
}

// Dereference performs a GET signed as actor. A nil actor sends the request unsigned.
func (c *HttpClient) Dereference(ctx context.Context, actor, iri *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iri.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Accept", ActivityType)
	req.Header.Set("User-Agent", c.userAgent)

	if err = c.sign(ctx, req, actor, getHeaders, nil); err != nil {
		log.Error().Err(err).Msg("error while signing request")
		return nil, err
	}
	return c.do(ctx, req)
}

// Get dereferences iri and decodes the JSON document.
func (c *HttpClient) Get(ctx context.Context, actor, iri *url.URL) (map[string]any, error) {
	res, err := c.Dereference(ctx, actor, iri)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var props map[string]any
	if err = json.NewDecoder(io.LimitReader(res.Body, maxResponseSize)).Decode(&props); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", iri, err)
	}
	return props, nil
}

// Post delivers an activity to an inbox, signed as actor.
func (c *HttpClient) Post(ctx context.Context, actor, inbox *url.URL, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", ActivityType)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("User-Agent", c.userAgent)

	if err = c.sign(ctx, req, actor, postHeaders, body); err != nil {
		return err
	}

	res, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, io.LimitReader(res.Body, maxResponseSize))
	return res.Body.Close()
}
