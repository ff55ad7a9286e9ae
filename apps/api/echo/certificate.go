package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sanaa/core/certificate"
)

type certificateApi struct {
	svc *certificate.Service
}

func registerCertificateAPI(g *echo.Group, auth *authenticator, svc *certificate.Service) {
	api := certificateApi{svc: svc}

	authed := []echo.MiddlewareFunc{auth.jwt(), auth.callerMiddleware}
	viaLink := []echo.MiddlewareFunc{noStoreMiddleware, auth.jwtOrLink(), auth.callerMiddleware}

	cg := g.Group("/certificates")
	cg.POST("", api.create, authed...)
	cg.GET("", api.query, authed...)
	cg.POST("/generate-certificate/:id", api.generate, authed...)
	cg.POST("/send-certificate/:id", api.send, authed...)
	cg.PATCH("/:id", api.setPublished, authed...)
	cg.POST("/:id/revoke-links", api.revokeLinks, authed...)
	cg.DELETE("/:id", api.destroy, authed...)

	// JWT or secure link
	cg.GET("/:id", api.retrieve, viaLink...)
	cg.GET("/:id/:format", api.download, viaLink...)
}

// Handlers

func (api *certificateApi) create(ctx echo.Context) error {
	var data certificate.NewCertificate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCertificate")
	}

	cert, err := api.svc.Create(ctx.Request().Context(), data, getContextCaller(ctx))
	if err != nil {
		return errors.Wrap(err, "creating certificate")
	}
	return ctx.JSON(http.StatusCreated, cert)
}

func (api *certificateApi) query(ctx echo.Context) error {
	filter, err := bindQueryFilter(ctx)
	if err != nil {
		return err
	}
	var ord Ordering
	ord.Bind(ctx)

	certs, err := api.svc.Query(ctx.Request().Context(), filter, ord.Orderings, getContextCaller(ctx))
	if err != nil {
		return errors.Wrap(err, "querying certificates")
	}
	if certs == nil {
		certs = []certificate.Certificate{}
	}
	return ctx.JSON(http.StatusOK, certs)
}

func (api *certificateApi) retrieve(ctx echo.Context) error {
	cert, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), getContextCaller(ctx))
	if err != nil {
		return errors.Wrap(err, "getting certificate")
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (api *certificateApi) generate(ctx echo.Context) error {
	res, err := api.svc.Generate(ctx.Request().Context(), ctx.Param("id"), getContextCaller(ctx))
	if err != nil {
		return errors.Wrap(err, "generating certificate")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *certificateApi) download(ctx echo.Context) error {
	f := certificate.Format(ctx.Param("format"))
	if !f.Valid() {
		return errHttpNotFound
	}

	art, err := api.svc.Download(ctx.Request().Context(), ctx.Param("id"), ctx.QueryParam("recipient"), f, getContextCaller(ctx))
	if err != nil {
		return errors.Wrap(err, "downloading certificate")
	}
	defer art.Content.Close()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", art.Filename))
	return ctx.Stream(http.StatusOK, art.ContentType, art.Content)
}

func (api *certificateApi) send(ctx echo.Context) error {
	var data SendRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SendRequest")
	}

	res, err := api.svc.Send(ctx.Request().Context(), ctx.Param("id"), data.Emails, data.SendOptions, getContextCaller(ctx))
	if err != nil {
		return errors.Wrap(err, "sending certificate")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *certificateApi) setPublished(ctx echo.Context) error {
	var data PublishRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PublishRequest")
	}
	if data.Published == nil {
		return errPublishedRequired
	}

	cert, err := api.svc.SetPublished(ctx.Request().Context(), ctx.Param("id"), *data.Published, getContextCaller(ctx))
	if err != nil {
		return errors.Wrap(err, "setting published")
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (api *certificateApi) revokeLinks(ctx echo.Context) error {
	if err := api.svc.RevokeLinks(ctx.Request().Context(), ctx.Param("id"), getContextCaller(ctx)); err != nil {
		return errors.Wrap(err, "revoking links")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *certificateApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), getContextCaller(ctx)); err != nil {
		return errors.Wrap(err, "deleting certificate")
	}
	return ctx.NoContent(http.StatusNoContent)
}
