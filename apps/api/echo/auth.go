package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/certificate"
	"github.com/trezcool/sanaa/core/organization"
	"github.com/trezcool/sanaa/core/user"
)

const (
	contextTokenKey  = "userToken"
	contextUserKey   = "user"
	contextCallerKey = "caller"

	linkRecipientParam = "r"
	linkTokenParam     = "t"
)

// Claims represents the authorization claims transmitted via a JWT.
// Role and organization are informative only: the user is reloaded on every request.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt     int64     `json:"oriat,omitempty"`
	Name             string    `json:"name,omitempty"`
	Email            string    `json:"email,omitempty"`
	Role             user.Role `json:"role,omitempty"`
	OrganizationName string    `json:"org,omitempty"`
}

type authenticator struct {
	conf    *core.Config
	users   *user.Service
	orgs    organization.Repository
	jwtConf middleware.JWTConfig
}

func newAuthenticator(conf *core.Config, users *user.Service, orgs organization.Repository) *authenticator {
	return &authenticator{
		conf:  conf,
		users: users,
		orgs:  orgs,
		jwtConf: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
	}
}

func (a *authenticator) userClaims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			Audience:  "Certificates",
			ExpiresAt: now.Add(a.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt:     oriat,
		Name:             usr.Name,
		Email:            usr.Email,
		Role:             usr.Role,
		OrganizationName: usr.OrganizationName,
	}
}

// generateToken generates a signed JWT token string representing the user Claims.
func (a *authenticator) generateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(a.jwtConf.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(a.jwtConf.SigningKey)
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func (a *authenticator) authenticate(ctx echo.Context, email, pwd string) (*Claims, error) {
	rctx := ctx.Request().Context()
	usr, err := a.users.GetByEmail(rctx, email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return nil, errAuthenticationFailed
	}
	if !usr.IsActive {
		return nil, errAccountDeactivated
	}
	usr, err = a.users.SetLastLogin(rctx, usr)
	if err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return a.userClaims(usr), nil
}

// jwt requires a valid bearer token.
func (a *authenticator) jwt() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(a.jwtConf)
}

// jwtOrLink requires a valid bearer token unless the request carries a secure link token.
func (a *authenticator) jwtOrLink() echo.MiddlewareFunc {
	conf := a.jwtConf
	conf.Skipper = func(ctx echo.Context) bool {
		return ctx.QueryParam(linkTokenParam) != ""
	}
	return middleware.JWTWithConfig(conf)
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func (a *authenticator) contextUser(ctx echo.Context, clms ...Claims) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	var claims Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else {
		claims, err = getContextClaims(ctx)
		if err != nil {
			return user.User{}, errors.Wrap(err, "getting context claims")
		}
	}

	usr, err := a.users.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

// callerMiddleware resolves the certificate.Caller of the request: the authenticated user,
// freshly loaded, or an anonymous secure link holder.
func (a *authenticator) callerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if _, err := getContextClaims(ctx); err != nil {
			token := ctx.QueryParam(linkTokenParam)
			if token == "" {
				return errUnauthorized
			}
			ctx.Set(contextCallerKey, certificate.Caller{
				Link: &certificate.LinkClaims{RecipientID: ctx.QueryParam(linkRecipientParam), Token: token},
			})
			return next(ctx)
		}

		usr, err := a.contextUser(ctx)
		if err != nil {
			return err
		}
		var orgID string
		if usr.OrganizationName != "" {
			org, err := a.orgs.GetOrganizationByName(ctx.Request().Context(), usr.OrganizationName)
			switch {
			case err == nil:
				orgID = org.ID
			case errors.Cause(err) != organization.ErrNotFound:
				return errors.Wrap(err, "finding caller organization")
			}
		}
		ctx.Set(contextCallerKey, certificate.CallerFromUser(usr, orgID))
		return next(ctx)
	}
}

func getContextCaller(ctx echo.Context) certificate.Caller {
	caller, _ := ctx.Get(contextCallerKey).(certificate.Caller)
	return caller
}

func (a *authenticator) refreshToken(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	usr, err := a.contextUser(ctx, claims)
	if err != nil {
		return "", errors.Wrap(err, "getting context user")
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := a.generateToken(a.userClaims(usr, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}
