// Package cloud opens the authenticated publish/subscribe session to the
// telemetry ingestion broker.
package cloud

import (
	"crypto/rsa"
	"io/ioutil"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/juju/errors"
)

const DefaultTokenTTL = time.Hour

// MintToken returns RS256 signed JWT with iat, exp, aud claims.
func MintToken(audience string, key *rsa.PrivateKey, ttl time.Duration, now time.Time) (string, error) {
	if key == nil {
		return "", errors.NotValidf("token signing key=nil")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"aud": audience,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	s, err := token.SignedString(key)
	if err != nil {
		return "", errors.Annotate(err, "token sign")
	}
	return s, nil
}

func ParsePrivateKey(pem []byte) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	return key, errors.Annotate(err, "parse RSA private key")
}

func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "private key file=%s", path)
	}
	key, err := ParsePrivateKey(b)
	return key, errors.Annotatef(err, "private key file=%s", path)
}
