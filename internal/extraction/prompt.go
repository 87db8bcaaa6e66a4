package extraction

func systemPrompt(source string) string {
	return `You are an order data extraction agent. Analyse ` + source + ` and extract the order it contains.
Match fields by meaning, not by exact column names:
- orderNumber: order number, PO number
- customerName: customer or company name
- customerEmail: customer contact email
- orderDate: order date as ISO 8601
- deliveryDate: delivery or due date as ISO 8601
- items: order lines, each with
  - productCode: product code, SKU, article number
  - quantity: ordered quantity as integer
  - specification: specification, model, variant
  - unitPrice: unit price in minor currency units (integer)
  - totalPrice: line total in minor currency units (integer)
Rate how confident you are in the extraction from 0 to 100.`
}

const answerFormat = `Answer strictly in this JSON format:
{
  "orderNumber": "PO-1",
  "customerName": "Customer",
  "customerEmail": "buyer@example.com",
  "orderDate": "2024-01-01T00:00:00Z",
  "deliveryDate": "2024-01-15T00:00:00Z",
  "items": [
    {"productCode": "X1", "quantity": 5, "specification": "", "unitPrice": 1250, "totalPrice": 6250}
  ],
  "confidence": 90
}`

var orderSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"orderNumber":   map[string]any{"type": "string"},
		"customerName":  map[string]any{"type": "string"},
		"customerEmail": map[string]any{"type": "string"},
		"orderDate":     map[string]any{"type": "string"},
		"deliveryDate":  map[string]any{"type": "string"},
		"items": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"productCode":   map[string]any{"type": "string"},
					"quantity":      map[string]any{"type": "integer"},
					"specification": map[string]any{"type": "string"},
					"unitPrice":     map[string]any{"type": "integer"},
					"totalPrice":    map[string]any{"type": "integer"},
				},
				"required":             []string{"productCode", "quantity"},
				"additionalProperties": false,
			},
		},
		"confidence": map[string]any{"type": "integer"},
	},
	"required":             []string{"items", "confidence"},
	"additionalProperties": false,
}
