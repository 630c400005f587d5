package pagination

// Params is bound from query strings on listing endpoints.
type Params struct {
	Limit  int `form:"limit,default=20" validate:"gte=1,lte=250"`
	Offset int `form:"offset,default=0" validate:"gte=0"`
}

const maxLimit = 250

// Normalize clamps the requested page size into the allowed window.
func (p Params) Normalize() Params {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type PageInfo struct {
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"has_more"`
}

func BuildPageInfo(p Params, total int64) PageInfo {
	return PageInfo{
		Limit:   p.Limit,
		Offset:  p.Offset,
		Total:   total,
		HasMore: int64(p.Offset+p.Limit) < total,
	}
}
