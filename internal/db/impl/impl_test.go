package impl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/db"
	"github.com/sidereusnuntius/fedhost/internal/domain"
	"github.com/sidereusnuntius/fedhost/internal/initialization"
)

var DB db.DB
var ctx = context.Background()

func TestMain(m *testing.M) {
	d, err := initialization.OpenDB("file:impltest?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
		return
	}

	err = initialization.SetupDB(d, "../../../migrations", "impltest")
	if err != nil {
		log.Fatal().Err(err).Msg("tests setup failure")
		return
	}
	DB = New(d)
	os.Exit(m.Run())
}

var userSeq atomic.Int64

func insertUser(t *testing.T, subdomain string) domain.User {
	t.Helper()
	n := userSeq.Add(1)
	username := fmt.Sprintf("user%d", n)
	fid, _ := url.Parse("https://" + username + ".example.io/user/" + username)

	id, err := DB.InsertUser(ctx, domain.UserInternal{
		User: domain.User{
			Username:     username,
			Email:        username + "@example.io",
			PasswordHash: "hash",
			Role:         domain.RoleUser,
			Subdomain:    subdomain,
			FederationID: fid,
			PublicKey:    "public",
		},
		PrivateKey: "private",
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	u, err := DB.GetUserByID(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return u
}

func insertClient(t *testing.T, id string) domain.OAuthClient {
	t.Helper()
	c := domain.OAuthClient{
		ID:           id,
		SecretHash:   "secret",
		Name:         "client " + id,
		RedirectURIs: []string{"https://app.example.io/cb"},
		GrantTypes:   []domain.GrantType{domain.GrantAuthorizationCode, domain.GrantRefreshToken},
		Scope:        domain.ParseScope("read write"),
	}
	if err := DB.InsertClient(ctx, c); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return c
}

func TestInsertUserConflict(t *testing.T) {
	u := insertUser(t, "")

	_, err := DB.InsertUser(ctx, domain.UserInternal{
		User: domain.User{
			Username:     u.Username,
			Email:        "other@example.io",
			PasswordHash: "hash",
			Role:         domain.RoleUser,
			FederationID: u.FederationID.JoinPath("x"),
		},
	})
	if !errors.Is(err, db.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	got, err := DB.GetUserByUsername(ctx, u.Username)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got.Email != u.Email {
		t.Errorf("existing user was modified: %s", got.Email)
	}
}

func TestGetUserNotFound(t *testing.T) {
	if _, err := DB.GetUserBySubdomain(ctx, "nobody-here"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestVerifySubdomain(t *testing.T) {
	u := insertUser(t, "")
	sub := fmt.Sprintf("site%d", u.ID)

	taken, err := DB.SubdomainTaken(ctx, sub)
	if err != nil || taken {
		t.Fatalf("expected free subdomain, got %v %v", taken, err)
	}

	err = DB.InsertSubdomainRegistration(ctx, domain.SubdomainRegistration{
		UserID:            u.ID,
		Subdomain:         sub,
		VerificationToken: "token-" + sub,
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if taken, _ = DB.SubdomainTaken(ctx, sub); !taken {
		t.Error("a pending registration should claim the subdomain")
	}

	r, err := DB.VerifySubdomain(ctx, "token-"+sub, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if r.Status != domain.RegistrationVerified || r.Verified.IsZero() {
		t.Errorf("unexpected registration state %+v", r)
	}

	got, err := DB.GetUserBySubdomain(ctx, sub)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got.ID != u.ID {
		t.Errorf("expected user %d, got %d", u.ID, got.ID)
	}

	if _, err = DB.VerifySubdomain(ctx, "token-"+sub, time.Now()); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("a verification token must be single use, got %v", err)
	}
}

func TestRedeemCodeOnce(t *testing.T) {
	u := insertUser(t, "")
	c := insertClient(t, "redeem-client")
	now := time.Now()

	err := DB.InsertCode(ctx, domain.AuthorizationCode{
		Code:        "code-once",
		ClientID:    c.ID,
		UserID:      u.ID,
		RedirectURI: c.RedirectURIs[0],
		Scope:       domain.ParseScope("read"),
		Expires:     now.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := DB.RedeemCode(ctx, "code-once", func(code domain.AuthorizationCode) (domain.AccessToken, *domain.RefreshToken, error) {
				return domain.AccessToken{
						Hash:     fmt.Sprintf("access-once-%d", i),
						ClientID: code.ClientID,
						UserID:   code.UserID,
						Scope:    code.Scope,
						Expires:  now.Add(time.Hour),
					}, &domain.RefreshToken{
						Hash:     fmt.Sprintf("refresh-once-%d", i),
						ClientID: code.ClientID,
						UserID:   code.UserID,
						Scope:    code.Scope,
						Expires:  now.Add(24 * time.Hour),
					}, nil
			})
			if err == nil {
				wins.Add(1)
			} else if !errors.Is(err, db.ErrNotFound) {
				t.Errorf("unexpected error: %s", err)
			}
		}()
	}
	wg.Wait()

	if w := wins.Load(); w != 1 {
		t.Errorf("expected exactly one redemption, got %d", w)
	}
}

func TestRedeemCodeRejectedKeepsCode(t *testing.T) {
	u := insertUser(t, "")
	c := insertClient(t, "expired-client")
	rejected := errors.New("expired")

	err := DB.InsertCode(ctx, domain.AuthorizationCode{
		Code:        "code-expired",
		ClientID:    c.ID,
		UserID:      u.ID,
		RedirectURI: c.RedirectURIs[0],
		Scope:       domain.ParseScope("read"),
		Expires:     time.Now().Add(-time.Second),
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	reject := func(domain.AuthorizationCode) (domain.AccessToken, *domain.RefreshToken, error) {
		return domain.AccessToken{}, nil, rejected
	}
	for range 2 {
		if err = DB.RedeemCode(ctx, "code-expired", reject); !errors.Is(err, rejected) {
			t.Errorf("expected the redeemer's error, got %v", err)
		}
	}
}

func TestRotateRefreshToken(t *testing.T) {
	u := insertUser(t, "")
	c := insertClient(t, "rotate-client")
	now := time.Now()

	err := DB.InsertCode(ctx, domain.AuthorizationCode{
		Code: "code-rotate", ClientID: c.ID, UserID: u.ID, RedirectURI: c.RedirectURIs[0],
		Scope: domain.ParseScope("read"), Expires: now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	err = DB.RedeemCode(ctx, "code-rotate", func(code domain.AuthorizationCode) (domain.AccessToken, *domain.RefreshToken, error) {
		return domain.AccessToken{Hash: "access-r1", ClientID: c.ID, UserID: u.ID, Scope: code.Scope, RefreshHash: "refresh-r1", Expires: now.Add(time.Hour)},
			&domain.RefreshToken{Hash: "refresh-r1", ClientID: c.ID, UserID: u.ID, Scope: code.Scope, Expires: now.Add(time.Hour)}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	rotate := func(hash string) db.Rotator {
		return func(old domain.RefreshToken) (domain.AccessToken, domain.RefreshToken, error) {
			return domain.AccessToken{Hash: "access-" + hash, ClientID: old.ClientID, UserID: old.UserID, Scope: old.Scope, RefreshHash: hash, Expires: now.Add(time.Hour)},
				domain.RefreshToken{Hash: hash, ClientID: old.ClientID, UserID: old.UserID, Scope: old.Scope, Expires: now.Add(time.Hour)}, nil
		}
	}

	revoked, err := DB.RotateRefreshToken(ctx, "refresh-r1", rotate("refresh-r2"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if diff := cmp.Diff([]string{"access-r1"}, revoked); diff != "" {
		t.Errorf("revoked access tokens mismatch (-want +got):\n%s", diff)
	}

	if _, err = DB.GetAccessToken(ctx, "access-r1"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("the access token of the rotated refresh token should be gone, got %v", err)
	}
	if _, err = DB.RotateRefreshToken(ctx, "refresh-r1", rotate("refresh-r3")); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("an old refresh token must not be accepted again, got %v", err)
	}

	failing := func(domain.RefreshToken) (domain.AccessToken, domain.RefreshToken, error) {
		return domain.AccessToken{}, domain.RefreshToken{}, errors.New("boom")
	}
	if _, err = DB.RotateRefreshToken(ctx, "refresh-r2", failing); err == nil {
		t.Fatal("expected the rotator's error")
	}
	if _, err = DB.RotateRefreshToken(ctx, "refresh-r2", rotate("refresh-r4")); err != nil {
		t.Errorf("a failed rotation must leave the refresh token valid, got %v", err)
	}
}

func TestFederationQueueOrder(t *testing.T) {
	actor, _ := url.Parse("https://alice.example.io/user/alice")
	target, _ := url.Parse("https://remote.example/inbox")
	base := time.Now().Add(-time.Hour)

	items := []struct {
		priority int
		created  time.Time
	}{
		{5, base},
		{1, base.Add(2 * time.Second)},
		{1, base.Add(time.Second)},
	}
	ids := make([]int64, len(items))
	for i, it := range items {
		id, err := DB.Enqueue(ctx, domain.FederationQueueItem{
			Actor: actor, Action: domain.ActionCreate, Object: []byte(`{}`), Target: target,
			Priority: it.priority, Created: it.created,
		})
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		ids[i] = id
	}

	batch, err := DB.PendingBatch(ctx, 5, 100)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var got []int64
	for _, item := range batch {
		for _, id := range ids {
			if item.ID == id {
				got = append(got, id)
			}
		}
	}
	if diff := cmp.Diff([]int64{ids[2], ids[1], ids[0]}, got); diff != "" {
		t.Errorf("queue order mismatch (-want +got):\n%s", diff)
	}

	attempts, err := DB.MarkAttempt(ctx, ids[0], time.Now())
	if err != nil || attempts != 1 {
		t.Errorf("expected one attempt, got %d (%v)", attempts, err)
	}
	if err = DB.RecordFailure(ctx, ids[0], "500", true); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	item, err := DB.GetQueueItem(ctx, ids[0])
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if item.Status != domain.QueueFailed || item.Attempts != 1 || item.LastAttempt.IsZero() {
		t.Errorf("unexpected item state %+v", item)
	}
	if err = DB.MarkCompleted(ctx, ids[0]); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("terminal items must not change state, got %v", err)
	}
}

func TestHitRateLimitWindow(t *testing.T) {
	start := time.UnixMilli(1_000_000)
	window := time.Second

	count, reset, err := DB.HitRateLimit(ctx, "p", "/e", start, window)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if count != 1 || !reset.Equal(start.Add(window)) {
		t.Errorf("unexpected first hit %d %s", count, reset)
	}

	count, _, _ = DB.HitRateLimit(ctx, "p", "/e", reset.Add(-time.Millisecond), window)
	if count != 2 {
		t.Errorf("a hit just before the reset belongs to the window, got %d", count)
	}

	count, newReset, _ := DB.HitRateLimit(ctx, "p", "/e", reset.Add(time.Millisecond), window)
	if count != 1 || !newReset.Equal(reset.Add(time.Millisecond).Add(window)) {
		t.Errorf("a hit after the reset starts a new window, got %d %s", count, newReset)
	}

	swept, err := DB.SweepRateLimits(ctx, newReset.Add(time.Millisecond))
	if err != nil || swept < 1 {
		t.Errorf("expected the expired counter to be swept, got %d (%v)", swept, err)
	}
}

func TestSiteConfigRoundTrip(t *testing.T) {
	c := domain.SiteConfig{
		Subdomain:       "roundtrip",
		CustomDomains:   []string{"roundtrip.example"},
		Maintenance:     true,
		HealthCheckPath: "/health",
		Env:             map[string]string{"A": "1"},
	}
	if err := DB.UpsertSiteConfig(ctx, c); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	got, err := DB.GetSiteConfig(ctx, "roundtrip")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	got.Created, got.Updated = time.Time{}, time.Time{}
	if diff := cmp.Diff(c, got); diff != "" {
		t.Errorf("site config mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertPostIdempotent(t *testing.T) {
	u := insertUser(t, "")
	fid, _ := url.Parse("https://example.io/posts/p1")
	p := domain.Post{ID: fmt.Sprintf("post-%d", u.ID), UserID: u.ID, Content: "hi", FederationID: fid}

	created, err := DB.InsertPost(ctx, p)
	if err != nil || !created {
		t.Fatalf("expected creation, got %v (%v)", created, err)
	}
	created, err = DB.InsertPost(ctx, p)
	if err != nil || created {
		t.Errorf("second insert must be a no-op, got %v (%v)", created, err)
	}
}
