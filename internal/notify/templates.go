package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/mowaa/booking-payments/internal/payment"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type emailData struct {
	Reference    string
	CustomerName string
	Email        string
	TotalAmount  string
	Currency     string
	Items        []payment.CartItem
}

func buildEmailData(p payment.Payment) emailData {
	name := p.CustomerName()
	if name == "" {
		name = "Customer"
	}
	return emailData{
		Reference:    p.Reference,
		CustomerName: name,
		Email:        p.CustomerEmail(),
		TotalAmount:  fmt.Sprintf("%.2f", p.TotalAmount),
		Currency:     p.Currency,
		Items:        p.Cart(),
	}
}

func renderTemplate(name string, data emailData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("notify: render %s: %w", name, err)
	}
	return buf.String(), nil
}
