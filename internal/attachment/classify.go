package attachment

import (
	"path"
	"strings"

	"github.com/Gardner-Chu/order-automation-system/pkg/models"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// Classify maps an attachment's content type and filename to a processing category.
// Checks run in order: excel, image, pdf.
func Classify(contentType, filename string) models.AttachmentType {
	ct := strings.ToLower(contentType)
	name := strings.ToLower(filename)
	ext := path.Ext(name)

	switch {
	case strings.Contains(ct, "excel") || strings.Contains(ct, "spreadsheet") ||
		ext == ".xlsx" || ext == ".xls":
		return models.AttachmentExcel
	case strings.Contains(ct, "image") || imageExtensions[ext]:
		return models.AttachmentImage
	case strings.Contains(ct, "pdf") || ext == ".pdf":
		return models.AttachmentPDF
	default:
		return models.AttachmentOther
	}
}
