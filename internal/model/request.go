package model

type CreateChatRequest struct {
	Title        string `json:"title"`
	DocumentName string `json:"document_name"`
}

type QueryRequest struct {
	Question string `json:"question"`
	NResults int    `json:"n_results"`
}

// 以下为浏览器调用前端服务的请求体

type SendRequest struct {
	Question string `json:"question"`
}

type InputRequest struct {
	Value string `json:"value"`
}

type ViewportRequest struct {
	ScrollTop    float64 `json:"scroll_top"`
	ScrollHeight float64 `json:"scroll_height"`
	ClientHeight float64 `json:"client_height"`
}
