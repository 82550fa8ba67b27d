package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidhub/apiserver/config"
	"github.com/vidhub/apiserver/types"
)

func newTestIssuer() *TokenIssuer {
	return NewTokenIssuer(config.AuthConfig{
		AccessTokenSecret:  "access-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenSecret: "refresh-secret",
		RefreshTokenExpiry: 240 * time.Hour,
	})
}

func TestIssuePair_RoundTrip(t *testing.T) {
	issuer := newTestIssuer()
	user := types.User{ID: "u-1", Username: "alice", Email: "a@x.com", Fullname: "Alice Wonder"}

	pair, err := issuer.IssuePair(user)
	require.NoError(t, err)

	claims, err := issuer.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)

	subject, err := issuer.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", subject)
}

func TestIssuePair_TokensDifferEachTime(t *testing.T) {
	issuer := newTestIssuer()
	user := types.User{ID: "u-1"}

	first, err := issuer.IssuePair(user)
	require.NoError(t, err)
	second, err := issuer.IssuePair(user)
	require.NoError(t, err)

	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestIssuePair_RequiresUserID(t *testing.T) {
	_, err := newTestIssuer().IssuePair(types.User{})
	require.Error(t, err)
}

func TestParse_KindsAreNotInterchangeable(t *testing.T) {
	issuer := newTestIssuer()
	pair, err := issuer.IssuePair(types.User{ID: "u-1"})
	require.NoError(t, err)

	_, err = issuer.ParseAccess(pair.RefreshToken)
	assert.Error(t, err)
	_, err = issuer.ParseRefresh(pair.AccessToken)
	assert.Error(t, err)
}

func TestParse_Expired(t *testing.T) {
	issuer := newTestIssuer()
	issuer.now = func() time.Time { return time.Now().Add(-300 * time.Hour) }
	pair, err := issuer.IssuePair(types.User{ID: "u-1"})
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.ParseRefresh(pair.RefreshToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	_, err = issuer.ParseAccess(pair.AccessToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParse_RejectsMalformedAndForeignTokens(t *testing.T) {
	issuer := newTestIssuer()

	_, err := issuer.ParseRefresh("not.a.token")
	assert.Error(t, err)

	other := NewTokenIssuer(config.AuthConfig{
		AccessTokenSecret:  "other-access",
		AccessTokenExpiry:  time.Minute,
		RefreshTokenSecret: "other-refresh",
		RefreshTokenExpiry: time.Hour,
	})
	pair, err := other.IssuePair(types.User{ID: "u-1"})
	require.NoError(t, err)
	_, err = issuer.ParseRefresh(pair.RefreshToken)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.ParseAccess(unsigned)
	assert.Error(t, err)
}

func TestParse_RequiresSubjectAndExpiry(t *testing.T) {
	issuer := newTestIssuer()

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("refresh-secret"))
	require.NoError(t, err)
	_, err = issuer.ParseRefresh(noSubject)
	assert.Error(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "u-1",
	}).SignedString([]byte("refresh-secret"))
	require.NoError(t, err)
	_, err = issuer.ParseRefresh(noExpiry)
	assert.Error(t, err)
}
