package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/certificate"
	"github.com/trezcool/sanaa/core/organization"
	"github.com/trezcool/sanaa/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errPublishedRequired    = core.NewValidationError(nil, core.FieldError{Field: "published", Error: "this field is required"})
)

// httpError maps domain errors to their HTTP counterpart. It returns nil for unknown errors.
func httpError(err error) *echo.HTTPError {
	switch err {
	case certificate.ErrForbidden:
		return errHttpForbidden
	case certificate.ErrUnauthorized:
		return echo.NewHTTPError(http.StatusUnauthorized, certificate.ErrUnauthorized.Error())
	case certificate.ErrNotFound, certificate.ErrTemplateNotFound, certificate.ErrArtifactNotFound,
		user.ErrNotFound, organization.ErrNotFound:
		return errHttpNotFound
	}
	return nil
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if herr := httpError(cause); herr != nil {
			cause = herr
		}

		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var rerr *certificate.RenderError
			var terr *certificate.TemplateError
			switch {
			case errors.As(err, &rerr):
				msg = "rendering " + string(rerr.Format)
			case errors.As(err, &terr):
				msg = "executing template " + terr.TemplateID
			}

			if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
				logger.Error(msg, errors.Wrap(err, msg), usr)
			} else {
				logger.Error(msg, errors.Wrap(err, msg), getContextCaller(ctx))
			}

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
