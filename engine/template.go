package engine

import (
	"regexp"
	"strings"

	"calldeck/models"
)

var templateVarPattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// RenderTemplate substitutes {{variable}} placeholders in message content.
// Supported variables: contact_name, first_name, phone, email, company_name,
// campaign_name. Unresolved variables render as an empty string.
func RenderTemplate(content string, contact *models.Contact, campaign *models.Campaign) string {
	vars := map[string]string{}
	if contact != nil {
		vars["contact_name"] = contact.Name
		vars["first_name"] = firstName(contact.Name)
		vars["phone"] = contact.Phone
		vars["email"] = contact.Email
	}
	if campaign != nil {
		vars["company_name"] = campaign.CompanyName
		vars["campaign_name"] = campaign.Name
	}

	return templateVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := templateVarPattern.FindStringSubmatch(match)[1]
		return vars[name]
	})
}

func firstName(full string) string {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}
