package echoapi

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/sanaa/core"
	"github.com/trezcool/sanaa/core/certificate"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	SendRequest struct {
		Emails []string `json:"emails"`
		certificate.SendOptions
	}

	PublishRequest struct {
		Published *bool `json:"published"`
	}
)

func (r *LoginRequest) Validate(validate *validator.Validate) error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	return validate.Struct(r)
}

func bindQueryFilter(ctx echo.Context) (certificate.QueryFilter, error) {
	filter := certificate.QueryFilter{IssuedFrom: ctx.QueryParam("issued_from")}
	if v := ctx.QueryParam("published"); v != "" {
		published, err := strconv.ParseBool(v)
		if err != nil {
			return filter, core.NewValidationError(nil, core.FieldError{Field: "published", Error: "must be a boolean"})
		}
		filter.Published = &published
	}
	return filter, nil
}

// bindPreviewFields reads template preview values from the query string.
func bindPreviewFields(ctx echo.Context) certificate.Fields {
	fields := make(certificate.Fields)
	for key, vals := range ctx.QueryParams() {
		if len(vals) > 0 && vals[0] != "" {
			fields[key] = vals[0]
		}
	}
	return fields
}
