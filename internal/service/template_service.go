// internal/service/template_service.go
package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/unclebandit/minicrm-backend/internal/model"
)

func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

var (
	namePattern      = regexp.MustCompile(`(?i)\{\{\s*name\s*\}\}`)
	firstNamePattern = regexp.MustCompile(`(?i)\{\{\s*firstName\s*\}\}`)
	lastNamePattern  = regexp.MustCompile(`(?i)\{\{\s*lastName\s*\}\}`)
)

// Personalize renders a campaign's content for one customer. Double-brace name
// placeholders are case and space insensitive; the single-brace
// {first_name}/{last_name}/{location} form is also accepted.
func Personalize(c *model.Campaign, cust *model.Customer) model.Content {
	body := render(c.Content.Body, cust)
	if strings.TrimSpace(body) == "" {
		body = fmt.Sprintf("Hi %s, here's 10%% off on your next order!", cust.FirstName)
	}

	subject := render(c.Content.Subject, cust)
	if strings.TrimSpace(subject) == "" {
		subject = "New offer from " + c.Name
	}
	return model.Content{Subject: subject, Body: body}
}

func render(text string, cust *model.Customer) string {
	if text == "" {
		return ""
	}
	text = namePattern.ReplaceAllLiteralString(text, cust.FirstName)
	text = firstNamePattern.ReplaceAllLiteralString(text, cust.FirstName)
	text = lastNamePattern.ReplaceAllLiteralString(text, cust.LastName)
	return RenderTemplate(text, map[string]string{
		"first_name": cust.FirstName,
		"last_name":  cust.LastName,
		"location":   cust.Location.City,
	})
}
