package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/LerianStudio/lib-iou/iou/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNilConnection is returned when a nil connection is used.
var ErrNilConnection = errors.New("rabbitmq connection is nil")

// Config describes a broker connection. Fields carry env tags for
// iou.SetConfigFromEnvVars.
type Config struct {
	Protocol string `env:"RABBITMQ_PROTOCOL"`
	Host     string `env:"RABBITMQ_HOST"`
	Port     string `env:"RABBITMQ_PORT"`
	User     string `env:"RABBITMQ_DEFAULT_USER" json:"-"`
	Pass     string `env:"RABBITMQ_DEFAULT_PASS" json:"-"`
	VHost    string `env:"RABBITMQ_VHOST"`
}

// URL builds the AMQP connection string, "amqp" being the default protocol.
func (c Config) URL() string {
	protocol := c.Protocol
	if protocol == "" {
		protocol = "amqp"
	}

	return BuildConnectionString(protocol, c.User, c.Pass, c.Host, c.Port, c.VHost)
}

// Dial opens a connection. Credentials never appear in returned errors.
func Dial(ctx context.Context, cfg Config, logger log.Logger) (*amqp.Connection, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	connStr := cfg.URL()

	conn, err := amqp.Dial(connStr)
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to connect to rabbitmq", log.String("error", sanitizeAMQPErr(err, connStr)))
		return nil, newSanitizedError(err, connStr, "rabbitmq dial")
	}

	logger.Log(ctx, log.LevelInfo, "connected to rabbitmq", log.String("host", cfg.Host))

	return conn, nil
}

// BuildConnectionString constructs an AMQP connection string, URL-encoding
// credentials and vhost.
func BuildConnectionString(protocol, user, pass, host, port, vhost string) string {
	u := &url.URL{Scheme: protocol}
	if user != "" || pass != "" {
		u.User = url.UserPassword(user, pass)
	}

	switch {
	case port != "":
		u.Host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":") && !strings.HasPrefix(host, "["):
		u.Host = "[" + host + "]"
	default:
		u.Host = host
	}

	if vhost != "" {
		escaped := strings.ReplaceAll(url.QueryEscape(vhost), "+", "%20")
		u.Path = "/" + vhost
		u.RawPath = "/" + escaped
	}

	return u.String()
}

type sanitizedError struct {
	original error
	message  string
}

func (e *sanitizedError) Error() string { return e.message }

func (e *sanitizedError) Unwrap() error { return e.original }

func newSanitizedError(err error, connectionString, prefix string) error {
	return fmt.Errorf("%s: %w", prefix, &sanitizedError{
		original: err,
		message:  sanitizeAMQPErr(err, connectionString),
	})
}

func sanitizeAMQPErr(err error, connectionString string) string {
	if err == nil {
		return ""
	}

	errMsg := err.Error()

	referenceURL, parseErr := url.Parse(connectionString)
	if connectionString == "" || parseErr != nil {
		return errMsg
	}

	errMsg = strings.ReplaceAll(errMsg, connectionString, referenceURL.Redacted())

	if referenceURL.User != nil {
		if pass, ok := referenceURL.User.Password(); ok && pass != "" {
			errMsg = strings.ReplaceAll(errMsg, pass, "xxxxx")
		}
	}

	return errMsg
}
