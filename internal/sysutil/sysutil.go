// Package sysutil holds small process-level helpers shared by cmd/server and
// the HTTP layer: logger setup, env truthiness and client identification.
package sysutil

import (
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// UnknownClient is the identifier used when no address can be determined.
const UnknownClient = "unknown"

// SetLogLevel configures the global zerolog level based on a string value.
// Supported values (case-insensitive): debug, info, warn, error, fatal, panic.
func SetLogLevel(lvl string) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// IsTruthy reports whether an environment variable string should be considered true.
// Accepted values (case-insensitive): "1", "true", "yes", "y", "on".
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// FirstNonEmpty returns the first non-empty string from a variadic list.
// If all values are empty, it returns "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// SetupLogger configures the global zerolog logger: RFC3339 timestamps,
// the level from lvl, and a human-friendly console writer when pretty is set.
// Output goes to w (os.Stdout when nil).
func SetupLogger(lvl string, pretty bool, w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339
	SetLogLevel(lvl)
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// ClientIdentifier derives the rate-limit identity for r. Precedence: the
// first X-Forwarded-For hop, X-Real-IP, the connection's remote address,
// then UnknownClient.
func ClientIdentifier(r *http.Request) string {
	var xff string
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		xff = strings.TrimSpace(strings.Split(v, ",")[0])
	}
	return strings.TrimSpace(FirstNonEmpty(
		xff,
		r.Header.Get("X-Real-IP"),
		remoteHost(r.RemoteAddr),
		UnknownClient,
	))
}

func remoteHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
