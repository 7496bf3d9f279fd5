package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/gopherchat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("Secr3t!pass")
	require.NoError(t, err)
	assert.NotEqual(t, "Secr3t!pass", hash)
	assert.True(t, CheckPassword(hash, "Secr3t!pass"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestJWT_SignAndParse(t *testing.T) {
	token, err := SignJWT(42, "a@b.co", "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, "a@b.co", claims.Email)

	_, err = ParseJWT(token, "other-secret")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = ParseJWT("not.a.token", "secret")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestJWT_Expired(t *testing.T) {
	claims := Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = ParseJWT(token, "secret")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestService_SignupAndLogin(t *testing.T) {
	svc := NewService(openTestDB(t), "secret", time.Hour)
	ctx := context.Background()

	sess, err := svc.Signup(ctx, " User@Example.com ", "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", sess.User.Email)
	assert.NotZero(t, sess.User.ID)
	assert.NotEmpty(t, sess.Token)

	_, err = svc.Signup(ctx, "user@example.com", "Passw0rd!")
	assert.True(t, errors.Is(err, ErrEmailTaken))

	login, err := svc.Login(ctx, "USER@example.com", "Passw0rd!")
	require.NoError(t, err)
	claims, err := ParseJWT(login.Token, "secret")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, claims.UserID)

	_, err = svc.Login(ctx, "user@example.com", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "ghost@example.com", "Passw0rd!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
