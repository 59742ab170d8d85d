package dbclient

import (
	"fmt"

	"github.com/rs/zerolog"
)

const redacted = "********"

// Credentials identify a PostgreSQL login and target database.
type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// String renders the credentials without the password.
func (c Credentials) String() string {
	pw := ""
	if c.Password != "" {
		pw = redacted
	}
	return fmt.Sprintf("%s:%s@%s:%d/%s", c.User, pw, c.Host, c.Port, c.Database)
}

// GoString keeps %#v from leaking the password.
func (c Credentials) GoString() string {
	return "dbclient.Credentials{" + c.String() + "}"
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (c Credentials) MarshalZerologObject(e *zerolog.Event) {
	e.Str("host", c.Host).
		Int("port", c.Port).
		Str("user", c.User).
		Str("database", c.Database).
		Bool("password_set", c.Password != "")
}

// WithPassword returns a copy carrying a new password.
func (c Credentials) WithPassword(pw string) Credentials {
	c.Password = pw
	return c
}
