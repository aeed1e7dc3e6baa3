package lifecycle

import (
	"context"
	"log"

	"github.com/fentz26/jml/internal/models"
)

// Resolver looks up role templates. A failed lookup is never an error to the
// caller: it means no template constraint applies.
type Resolver struct {
	catalog Catalog
}

// NewResolver creates a resolver over the given catalog.
func NewResolver(c Catalog) *Resolver {
	return &Resolver{catalog: c}
}

// Resolve returns the template and true, or nil and false when the id is
// empty, unknown, or the lookup failed.
func (r *Resolver) Resolve(ctx context.Context, templateID, tenantID string) (*models.RoleTemplate, bool) {
	if templateID == "" {
		return nil, false
	}
	tmpl, err := r.catalog.GetRoleTemplate(ctx, templateID, tenantID)
	if err != nil {
		log.Printf("role template %s lookup failed, treating as not found: %v", templateID, err)
		return nil, false
	}
	if tmpl == nil {
		return nil, false
	}
	return tmpl, true
}

// RequiredApps returns the required entries of a template in template order.
func RequiredApps(t *models.RoleTemplate) []models.RoleTemplateApp {
	if t == nil {
		return nil
	}
	var out []models.RoleTemplateApp
	for _, a := range t.Apps {
		if a.Required {
			out = append(out, a)
		}
	}
	return out
}
