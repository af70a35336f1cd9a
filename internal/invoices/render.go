package invoices

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// Document is everything the printable invoice shows. It is rebuilt from
// stored rows on every render; nothing is recomputed.
type Document struct {
	Invoice     models.Invoice
	OrderNumber string
	UnitNumber  string
	SellerName  string
	SellerGSTIN string
	BillTo      string
	Items       []models.FulfillmentItem
}

var invoiceTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"rupees": formatRupees,
	"date":   func(t time.Time) string { return t.UTC().Format("02 Jan 2006") },
}).Parse(`TAX INVOICE {{ .Invoice.InvoiceNumber }}
Date: {{ date .Invoice.GeneratedAt }}
Order: {{ .OrderNumber }}  Unit: {{ .UnitNumber }}
Seller: {{ .SellerName }}{{ if .SellerGSTIN }} (GSTIN {{ .SellerGSTIN }}){{ end }}, {{ .Invoice.SellerState }}
Bill to: {{ .BillTo }}, {{ .Invoice.BuyerState }}

{{ range .Items -}}
{{ .ProductName }} x{{ .Quantity }} @ {{ rupees .UnitPricePaise }} = {{ rupees .SubtotalPaise }} (GST {{ .TaxRate }})
{{ end }}
Subtotal:  {{ rupees .Invoice.SubtotalPaise }}
{{- if .Invoice.DiscountPaise }}
Discount: -{{ rupees .Invoice.DiscountPaise }}
{{- end }}
{{- if .Invoice.ShippingPaise }}
Shipping:  {{ rupees .Invoice.ShippingPaise }}
{{- end }}
{{- if .Invoice.IGSTPaise }}
IGST:      {{ rupees .Invoice.IGSTPaise }}
{{- else }}
CGST:      {{ rupees .Invoice.CGSTPaise }}
SGST:      {{ rupees .Invoice.SGSTPaise }}
{{- end }}
Total tax: {{ rupees .Invoice.TotalTaxPaise }}
Total:     {{ rupees .Invoice.TotalAmountPaise }}
`))

// Render produces the plain-text invoice.
func Render(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := invoiceTemplate.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", doc.Invoice.InvoiceNumber, err)
	}
	return buf.Bytes(), nil
}

func formatRupees(paise int64) string {
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	return fmt.Sprintf("%sRs %d.%02d", sign, paise/100, paise%100)
}
