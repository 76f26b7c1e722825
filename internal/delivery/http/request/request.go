package request

// CollectProductsRequest is the body of POST /api/collect-products.
type CollectProductsRequest struct {
	Keyword  string `json:"keyword"`
	MaxPages int    `json:"max_pages"`
	Force    bool   `json:"force"`
}
