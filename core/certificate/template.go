package certificate

import (
	"context"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/sanaa/core/user"
)

// Template is a certificate layout. A null OrganizationID makes it available system-wide.
type Template struct {
	ID             string      `json:"id" db:"id"`
	Name           string      `json:"name" db:"name"`
	Description    string      `json:"description" db:"description"`
	OrganizationID null.String `json:"organization_id" db:"organization_id"`
	Layout         string      `json:"-" db:"layout"`
	RequiredFields []string    `json:"required_fields" db:"-"`
}

type TemplateRepository interface {
	GetTemplateByID(ctx context.Context, id string) (Template, error)
	QueryTemplates(ctx context.Context) ([]Template, error)
}

func canUseTemplate(caller Caller, tmpl Template) bool {
	switch caller.Role {
	case user.RoleSuperAdmin:
		return true
	case user.RoleAdmin:
		return !tmpl.OrganizationID.Valid || tmpl.OrganizationID.String == caller.OrganizationID
	}
	return false
}

func checkTemplateCaller(caller Caller) error {
	if caller.IsAnonymous() {
		return ErrUnauthorized
	}
	if caller.Role != user.RoleAdmin && caller.Role != user.RoleSuperAdmin {
		return ErrForbidden
	}
	return nil
}

// ResolveTemplate returns the template identified by id when caller may use it.
func (svc *Service) ResolveTemplate(ctx context.Context, id string, caller Caller) (Template, error) {
	if err := checkTemplateCaller(caller); err != nil {
		return Template{}, err
	}
	tmpl, err := svc.templates.GetTemplateByID(ctx, id)
	if err != nil {
		return Template{}, err
	}
	if !canUseTemplate(caller, tmpl) {
		return Template{}, ErrForbidden
	}
	return tmpl, nil
}

// ListTemplates returns the templates visible to caller.
func (svc *Service) ListTemplates(ctx context.Context, caller Caller) ([]Template, error) {
	if err := checkTemplateCaller(caller); err != nil {
		return nil, err
	}
	all, err := svc.templates.QueryTemplates(ctx)
	if err != nil {
		return nil, err
	}
	tmpls := make([]Template, 0, len(all))
	for _, tmpl := range all {
		if canUseTemplate(caller, tmpl) {
			tmpls = append(tmpls, tmpl)
		}
	}
	return tmpls, nil
}

// Preview renders tmplID for caller, filling missing values with samples.
func (svc *Service) Preview(ctx context.Context, tmplID string, fields Fields, caller Caller) (HTMLDocument, error) {
	tmpl, err := svc.ResolveTemplate(ctx, tmplID, caller)
	if err != nil {
		return nil, err
	}
	sample := Fields{
		FieldRecipientName:    "Jane Doe",
		FieldTitle:            "Certificate of Achievement",
		FieldIssuedDate:       svc.now().Format(issuedDateLayout),
		FieldOrganizationName: caller.OrganizationName,
		FieldDescription:      "",
	}
	if sample[FieldOrganizationName] == "" {
		sample[FieldOrganizationName] = "Sanaa"
	}
	for k, v := range fields {
		if v != "" {
			sample[k] = v
		}
	}
	return svc.renderer.Render(tmpl, sample)
}
