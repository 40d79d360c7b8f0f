// Package log builds the crawler's slog loggers.
//
// RedactingHandler wraps any slog.Handler and masks values that must not
// reach log output even in verbose mode:
//   - HTTP credentials (Authorization, Cookie, Set-Cookie, API key headers)
//   - attributes whose key names a password, token, secret or credential
//   - bearer and basic auth strings, JWTs and long opaque keys
//   - the password part of URL userinfo ("redis://:pw@host" logs as "redis://:***REDACTED***@host")
//
// # Usage
//
//	logger, err := log.New(os.Stderr, verbose, log.FormatText)
//	if err != nil {
//	    return err
//	}
//	client, err := fetch.New(fetch.WithLogger(logger))
package log
