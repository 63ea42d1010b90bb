package dto

// AliasResponse identifies a stored alias. Values are never returned.
type AliasResponse struct {
	Name     string `json:"name"`
	Topology string `json:"topology,omitempty"`
}

// ListAliasesResponse represents a page of alias names.
type ListAliasesResponse struct {
	Data   []string `json:"data"`
	Offset int      `json:"offset"`
	Limit  int      `json:"limit"`
	Total  int      `json:"total"`
}

// MapAliasesToListResponse slices the sorted alias names to one page.
func MapAliasesToListResponse(aliases []string, offset, limit int) ListAliasesResponse {
	total := len(aliases)
	start := min(offset, total)
	end := min(start+limit, total)

	data := make([]string, 0, end-start)
	data = append(data, aliases[start:end]...)

	return ListAliasesResponse{
		Data:   data,
		Offset: offset,
		Limit:  limit,
		Total:  total,
	}
}
