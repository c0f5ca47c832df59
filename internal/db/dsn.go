package db

import (
	"net/url"
)

// PostgresParts are the discrete connection settings used when no full DSN
// is configured.
type PostgresParts struct {
	User, Password, Host, Port, Name, SSLMode string
}

// BuildPostgresDSN renders parts as a postgres:// URL. User and password are
// escaped; an empty SSLMode leaves the driver default in place.
func BuildPostgresDSN(p PostgresParts) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   p.Host,
		Path:   "/" + p.Name,
	}
	if p.Port != "" {
		u.Host = p.Host + ":" + p.Port
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {p.SSLMode}}.Encode()
	}
	return u.String()
}
