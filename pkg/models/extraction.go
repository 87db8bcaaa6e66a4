package models

import "encoding/json"

// ExtractionResult structured order guess returned by the extraction service
type ExtractionResult struct {
	OrderNumber   string          `json:"orderNumber,omitempty"`
	CustomerName  string          `json:"customerName,omitempty"`
	CustomerEmail string          `json:"customerEmail,omitempty"`
	OrderDate     string          `json:"orderDate,omitempty"`    // ISO 8601
	DeliveryDate  string          `json:"deliveryDate,omitempty"` // ISO 8601
	Items         []ExtractedItem `json:"items"`
	Confidence    int             `json:"confidence"` // 0-100
	RawData       json.RawMessage `json:"rawData,omitempty"`
}

// ExtractedItem a line item as extracted from the document
type ExtractedItem struct {
	ProductCode   string `json:"productCode"`
	Quantity      int    `json:"quantity"`
	Specification string `json:"specification,omitempty"`
	UnitPrice     *int64 `json:"unitPrice,omitempty"`  // Minor currency units
	TotalPrice    *int64 `json:"totalPrice,omitempty"` // Minor currency units
}
