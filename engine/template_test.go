package engine

import (
	"testing"

	"calldeck/models"

	"github.com/stretchr/testify/assert"
)

func TestRenderTemplate(t *testing.T) {
	contact := &models.Contact{
		Name:  "Maria Santos",
		Phone: "+15550100",
		Email: "maria@example.com",
	}
	campaign := &models.Campaign{Name: "Spring Promo", CompanyName: "Acme Foods"}

	got := RenderTemplate("Hi {{first_name}}, thanks for calling {{company_name}}! Reply to {{ email }}.", contact, campaign)
	assert.Equal(t, "Hi Maria, thanks for calling Acme Foods! Reply to maria@example.com.", got)
}

func TestRenderTemplateUnresolvedVariablesAreEmpty(t *testing.T) {
	contact := &models.Contact{Name: "Maria Santos"}

	got := RenderTemplate("Hello {{contact_name}}, code {{promo_code}} from {{company_name}}.", contact, nil)
	assert.Equal(t, "Hello Maria Santos, code  from .", got)
}

func TestRenderTemplateNoPlaceholders(t *testing.T) {
	got := RenderTemplate("plain message", &models.Contact{}, nil)
	assert.Equal(t, "plain message", got)
}
