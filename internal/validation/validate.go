// Package validation checks extraction results before an order is stored.
package validation

import (
	"fmt"
	"strings"

	"github.com/Gardner-Chu/order-automation-system/pkg/models"
)

// MinConfidence below this an extraction is sent for review
const MinConfidence = 70

// Outcome result of validating an extraction
type Outcome struct {
	Valid   bool
	Reasons []string
}

// Notes returns the reasons joined for storage on the order
func (o Outcome) Notes() string {
	return strings.Join(o.Reasons, "; ")
}

// Validate checks an extraction result. Every failed rule adds a reason;
// item numbers are 1-based.
func Validate(result *models.ExtractionResult) Outcome {
	var reasons []string

	if strings.TrimSpace(result.CustomerName) == "" {
		reasons = append(reasons, "missing customer name")
	}

	if len(result.Items) == 0 {
		reasons = append(reasons, "missing order items")
	}

	for i, item := range result.Items {
		n := i + 1
		if strings.TrimSpace(item.ProductCode) == "" {
			reasons = append(reasons, fmt.Sprintf("item %d: missing product code", n))
		}
		if item.Quantity <= 0 {
			reasons = append(reasons, fmt.Sprintf("item %d: invalid quantity", n))
		}
	}

	if result.Confidence < MinConfidence {
		reasons = append(reasons, fmt.Sprintf("low confidence (%d%%)", result.Confidence))
	}

	return Outcome{
		Valid:   len(reasons) == 0,
		Reasons: reasons,
	}
}
