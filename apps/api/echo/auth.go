package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/elearn/core"
	"github.com/trezcool/elearn/core/user"
)

var (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
)

// Claims represents the identity claims transmitted via a JWT.
// Tokens are issued by the authentication system; the subject is the user ID.
type Claims struct {
	jwt.StandardClaims
	Username              string   `json:"username,omitempty"`
	Email                 string   `json:"email,omitempty"`
	Roles                 []string `json:"roles,omitempty"`
	IsSuperuser           bool     `json:"is_superuser,omitempty"`
	IsPremium             bool     `json:"is_premium,omitempty"`
	PreferredCurriculumID *int64   `json:"preferred_curriculum_id,omitempty"`
	PreferredClassLevelID *int64   `json:"preferred_class_level_id,omitempty"`
}

func (c Claims) User() user.User {
	return user.User{
		ID:                    c.Subject,
		Username:              c.Username,
		Email:                 c.Email,
		Roles:                 c.Roles,
		IsSuperuser:           c.IsSuperuser,
		IsPremium:             c.IsPremium,
		PreferredCurriculumID: c.PreferredCurriculumID,
		PreferredClassLevelID: c.PreferredClassLevelID,
	}
}

func GetUserClaims(usr user.User, conf *core.Config) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username:              usr.Username,
		Email:                 usr.Email,
		Roles:                 usr.Roles,
		IsSuperuser:           usr.IsSuperuser,
		IsPremium:             usr.IsPremium,
		PreferredCurriculumID: usr.PreferredCurriculumID,
		PreferredClassLevelID: usr.PreferredClassLevelID,
	}
}

func jwtConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims, conf *core.Config) (string, error) {
	jwtConf := jwtConfig(conf)
	token := jwt.NewWithClaims(jwt.GetSigningMethod(jwtConf.SigningMethod), claims)

	ss, err := token.SignedString(jwtConf.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextUser returns the identity the request is made on behalf of.
func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	usr := claims.User()
	if usr.IsAnonymous() {
		return user.User{}, errUnauthorized
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}
