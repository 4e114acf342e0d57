package utils

// Pagination 分页请求参数
type Pagination struct {
	Page  int `json:"page" form:"page"`
	Limit int `json:"limit" form:"limit"`
}

// PageMeta 分页元信息，随列表一起返回给前端
type PageMeta struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalCount  int64 `json:"totalCount"`
	HasNext     bool  `json:"hasNext"`
	HasPrev     bool  `json:"hasPrev"`
	Limit       int   `json:"limit"`
}

// GetPageOffset 计算分页偏移量
func (p *Pagination) GetPageOffset() (int, int) {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return (p.Page - 1) * p.Limit, p.Limit
}

// BuildPageMeta 根据总数计算分页元信息
func (p *Pagination) BuildPageMeta(total int64) PageMeta {
	// GetPageOffset 已经把 Page/Limit 归一化
	totalPages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return PageMeta{
		CurrentPage: p.Page,
		TotalPages:  totalPages,
		TotalCount:  total,
		HasNext:     p.Page < totalPages,
		HasPrev:     p.Page > 1,
		Limit:       p.Limit,
	}
}
