package database

// DefaultListLimit is used when ListParams.Limit is not positive
const DefaultListLimit = 50

// ListParams filter and pagination for list queries
type ListParams struct {
	Status string // Empty means any status
	Limit  int
	Offset int
}

func (p ListParams) normalized() ListParams {
	if p.Limit <= 0 {
		p.Limit = DefaultListLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
