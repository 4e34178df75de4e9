package constants

const (
	FleetIssuer = "fleet-issuer"

	DefaultAudience        = FleetIssuer
	DefaultGraceMultiplier = 3

	HeaderTypeJWT = "JWT"
	KeyUseSig     = "sig"

	ClaimIssuer     = "iss"
	ClaimSubject    = "sub"
	ClaimAudience   = "aud"
	ClaimIssuedAt   = "iat"
	ClaimExpiration = "exp"
	ClaimNotBefore  = "nbf"
	ClaimJwtID      = "jti"

	EnvConfig        = "FLEET_ISSUER_CONFIG"
	EnvStoreDSN      = "FLEET_ISSUER_STORE_DSN"
	EnvRedisPassword = "FLEET_ISSUER_REDIS_PASSWORD"
	EnvLogLevel      = "LOG_LEVEL"
)

// RegisteredClaims cannot be overridden by extra claims passed to the issuer.
var RegisteredClaims = []string{
	ClaimIssuer,
	ClaimSubject,
	ClaimAudience,
	ClaimIssuedAt,
	ClaimExpiration,
	ClaimNotBefore,
	ClaimJwtID,
}
