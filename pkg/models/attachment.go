package models

// AttachmentType classification of an email attachment
type AttachmentType string

const (
	AttachmentExcel AttachmentType = "excel"
	AttachmentImage AttachmentType = "image"
	AttachmentPDF   AttachmentType = "pdf"
	AttachmentOther AttachmentType = "other"
)

// Supported reports whether the attachment can be ingested at all
func (t AttachmentType) Supported() bool {
	return t != AttachmentOther
}
