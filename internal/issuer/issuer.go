package issuer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/matheuscscp/fleet-issuer/internal/config"
	"github.com/matheuscscp/fleet-issuer/internal/constants"
	"github.com/matheuscscp/fleet-issuer/internal/keystore"
	"github.com/matheuscscp/fleet-issuer/internal/logging"
)

var (
	ErrEmptySubject  = errors.New("subject must not be empty")
	ErrReservedClaim = errors.New("claim is reserved")
)

var tracer trace.Tracer = otel.Tracer("github.com/matheuscscp/fleet-issuer/internal/issuer")

func Algorithm() jwa.SignatureAlgorithm { return jwa.ES256() }

// Claims are the caller-controlled parts of a token. The registered claims
// other than sub are always set by the issuer.
type Claims struct {
	Subject string
	Extra   map[string]any
}

type Issuer interface {
	Issue(ctx context.Context, claims Claims, now time.Time) (string, time.Time, error)
	PublicKeys(ctx context.Context, now time.Time) ([]jwk.Key, error)
	// Shutdown waits for background work started by PublicKeys. Call it
	// before closing the store.
	Shutdown(ctx context.Context) error
}

type Option func(*options)

type options struct {
	logger     logrus.FieldLogger
	registerer prometheus.Registerer
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the issuer metrics on reg. Without it the
// metrics are still counted but not exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

type tokenIssuer struct {
	privateKeySource
	store       keystore.Store
	issuer      string
	audience    string
	keyDuration time.Duration
	retention   time.Duration
	logger      logrus.FieldLogger
	metrics     *metrics
	prunes      sync.WaitGroup
}

func New(conf *config.Config, st keystore.Store, opts ...Option) Issuer {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	l := logging.Component(o.logger, "issuer")
	m := newMetrics(o.registerer)

	return &tokenIssuer{
		privateKeySource: newKeyManager(st, conf.KeyDuration(), l, m),
		store:            st,
		issuer:           conf.Issuer,
		audience:         conf.Audience,
		keyDuration:      conf.KeyDuration(),
		retention:        conf.KeyRetention(),
		logger:           l,
		metrics:          m,
	}
}

func (t *tokenIssuer) Issue(ctx context.Context, claims Claims, now time.Time) (string, time.Time, error) {
	ctx, span := tracer.Start(ctx, "tokenIssuer.Issue")
	defer span.End()

	signedJWT, exp, err := t.issue(ctx, claims, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", time.Time{}, err
	}
	return signedJWT, exp, nil
}

func (t *tokenIssuer) issue(ctx context.Context, claims Claims, now time.Time) (string, time.Time, error) {
	if claims.Subject == "" {
		return "", time.Time{}, ErrEmptySubject
	}
	for name := range claims.Extra {
		if slices.Contains(constants.RegisteredClaims, name) {
			return "", time.Time{}, fmt.Errorf("%w: %s", ErrReservedClaim, name)
		}
	}

	cur, err := t.current(ctx, now)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to get current private key: %w", err)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(jwk.KeyIDKey, cur.keyID))

	exp := now.Add(t.keyDuration)

	b := jwt.NewBuilder().
		Issuer(t.issuer).
		Subject(claims.Subject).
		Audience([]string{t.audience}).
		IssuedAt(now).
		Expiration(exp)
	for name, value := range claims.Extra {
		b = b.Claim(name, value)
	}
	tok, err := b.Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to build token: %w", err)
	}

	hdrs := jws.NewHeaders()
	if err := hdrs.Set(jws.TypeKey, constants.HeaderTypeJWT); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to set token type header: %w", err)
	}
	if err := hdrs.Set(jws.KeyIDKey, cur.keyID); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to set key ID header: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(Algorithm(), cur.private, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	t.metrics.tokensIssued.Inc()

	logData := logrus.Fields{
		jwk.KeyIDKey:           cur.keyID,
		constants.ClaimSubject: claims.Subject,
		"expiresAt":            exp,
	}
	t.logger.WithField("token", logData).Info("token issued")

	return string(signed), exp, nil
}
