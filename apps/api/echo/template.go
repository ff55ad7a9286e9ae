package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sanaa/core/certificate"
)

type templateApi struct {
	svc *certificate.Service
}

func registerTemplateAPI(g *echo.Group, auth *authenticator, svc *certificate.Service) {
	api := templateApi{svc: svc}

	tg := g.Group("/certificate-templates", auth.jwt(), auth.callerMiddleware)
	tg.GET("", api.query)
	tg.GET("/:id/preview", api.preview)
}

func (api *templateApi) query(ctx echo.Context) error {
	tmpls, err := api.svc.ListTemplates(ctx.Request().Context(), getContextCaller(ctx))
	if err != nil {
		return errors.Wrap(err, "listing templates")
	}
	if tmpls == nil {
		tmpls = []certificate.Template{}
	}
	return ctx.JSON(http.StatusOK, tmpls)
}

func (api *templateApi) preview(ctx echo.Context) error {
	doc, err := api.svc.Preview(ctx.Request().Context(), ctx.Param("id"), bindPreviewFields(ctx), getContextCaller(ctx))
	if err != nil {
		return errors.Wrap(err, "previewing template")
	}
	return ctx.HTMLBlob(http.StatusOK, doc)
}
