package validate

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"

	"github.com/sidereusnuntius/fedhost/internal/config"
)

const (
	MinPasswordLen = 8
	MaxPasswordLen = 72
	MinUsernameLen = 3
	MaxUsernameLen = 30
	MaxLabelLen    = 63
)

var (
	usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	labelRegex    = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
)

func SignUpForm(name, password, email, subdomain string) error {
	errs := []error{
		Username(name),
		Email(email),
		Password(password),
	}

	if subdomain != "" {
		errs = append(errs, Subdomain(subdomain))
	}

	return errors.Join(errs...)
}

func Password(password string) error {
	l := len(password)
	switch {
	case l == 0:
		return errors.New("empty password")
	case l < MinPasswordLen:
		return fmt.Errorf("password too short; min %d characters", MinPasswordLen)
	case l > MaxPasswordLen:
		return fmt.Errorf("password too long; max %d characters", MaxPasswordLen)
	}
	return nil
}

func Email(email string) error {
	if len(email) == 0 {
		return errors.New("empty email")
	}
	_, err := mail.ParseAddress(email)

	return err
}

func Username(username string) error {
	l := len(username)
	switch {
	case l == 0:
		return errors.New("empty username")
	case l < MinUsernameLen:
		return fmt.Errorf("username too short; min %d characters", MinUsernameLen)
	case l > MaxUsernameLen:
		return fmt.Errorf("username too long; max %d characters", MaxUsernameLen)
	case !usernameRegex.MatchString(username):
		return errors.New("username may only contain letters, digits and underscores")
	}
	return nil
}

// Label checks that s is a valid lowercase DNS label.
func Label(s string) error {
	if l := len(s); l == 0 {
		return errors.New("empty label")
	} else if l > MaxLabelLen {
		return fmt.Errorf("label too long; max %d characters", MaxLabelLen)
	}
	if !labelRegex.MatchString(s) {
		return fmt.Errorf("%q is not a valid DNS label", s)
	}
	return nil
}

// Subdomain is a Label that is not owned by the host process.
func Subdomain(s string) error {
	if err := Label(s); err != nil {
		return err
	}
	if config.IsReserved(s) {
		return fmt.Errorf("subdomain %q is reserved", s)
	}
	return nil
}

// Domain checks a fully qualified host name, such as a site's custom domain.
func Domain(s string) error {
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return fmt.Errorf("%q is not a fully qualified domain", s)
	}
	for _, l := range labels {
		if err := Label(l); err != nil {
			return err
		}
	}
	return nil
}

// RedirectURI accepts absolute http(s) URIs without a fragment.
func RedirectURI(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("redirect uri %q must use http or https", s)
	}
	if u.Host == "" {
		return fmt.Errorf("redirect uri %q has no host", s)
	}
	if u.Fragment != "" {
		return fmt.Errorf("redirect uri %q must not contain a fragment", s)
	}
	return nil
}
