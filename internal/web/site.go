package web

import (
	"context"

	"github.com/sidereusnuntius/fedhost/internal/domain"
)

// Site is the sub-application a request was dispatched to. Owner is only meaningful when HasOwner is set.
type Site struct {
	Name     string
	Owner    domain.User
	HasOwner bool
}

type siteKey struct{}

func WithSite(ctx context.Context, s Site) context.Context {
	return context.WithValue(ctx, siteKey{}, s)
}

func GetSite(ctx context.Context) (Site, bool) {
	s, ok := ctx.Value(siteKey{}).(Site)
	return s, ok
}
