package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"docchat-web/internal/model"
	"docchat-web/internal/utils"
	"docchat-web/pkg/logger"
)

const (
	pathDocuments = "/api/v1/documents"
	pathChats     = "/api/v1/chats"
	pathHealth    = "/health"

	DefaultQueryResults = 5
)

// Client 文档问答后端的网关客户端，每个后端操作对应一个方法
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: utils.NewHTTPClient(timeout),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// UploadDocument 以 multipart 字段 file 上传文档
func (c *Client) UploadDocument(ctx context.Context, filename, contentType string, r io.Reader) (map[string]interface{}, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, c.fail("upload document", setupError(err))
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, c.fail("upload document", setupError(err))
	}
	if err := writer.Close(); err != nil {
		return nil, c.fail("upload document", setupError(err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathDocuments, body)
	if err != nil {
		return nil, c.fail("upload document", setupError(err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result map[string]interface{}
	if err := c.do(req, &result); err != nil {
		return nil, c.fail("upload document", err)
	}
	return result, nil
}

func (c *Client) ListDocuments(ctx context.Context) ([]model.Document, error) {
	var docs []model.Document
	if err := c.doJSON(ctx, http.MethodGet, pathDocuments, nil, &docs); err != nil {
		return nil, c.fail("list documents", err)
	}
	return docs, nil
}

func (c *Client) CreateChat(ctx context.Context, title, documentName string) (*model.ChatSession, error) {
	req := model.CreateChatRequest{Title: title, DocumentName: documentName}

	var chat model.ChatSession
	if err := c.doJSON(ctx, http.MethodPost, pathChats, req, &chat); err != nil {
		return nil, c.fail("create chat", err)
	}
	return &chat, nil
}

func (c *Client) ListChats(ctx context.Context) ([]model.ChatSession, error) {
	var chats []model.ChatSession
	if err := c.doJSON(ctx, http.MethodGet, pathChats, nil, &chats); err != nil {
		return nil, c.fail("list chats", err)
	}
	if chats == nil {
		chats = []model.ChatSession{}
	}
	return chats, nil
}

func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, pathChats+"/"+url.PathEscape(chatID), nil, nil); err != nil {
		return c.fail("delete chat", err)
	}
	return nil
}

// QueryChat 向会话提问。nResults <= 0 时使用默认值 5
func (c *Client) QueryChat(ctx context.Context, chatID, question string, nResults int) (*model.QueryResponse, error) {
	if nResults <= 0 {
		nResults = DefaultQueryResults
	}
	req := model.QueryRequest{Question: question, NResults: nResults}

	var resp model.QueryResponse
	path := pathChats + "/" + url.PathEscape(chatID) + "/query"
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, c.fail("query chat", err)
	}
	return &resp, nil
}

// Health 检查后端是否可达
func (c *Client) Health(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodGet, pathHealth, nil, nil); err != nil {
		return c.fail("health", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return setupError(err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return setupError(err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return noResponseError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return noResponseError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return serverError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &APIError{Kind: KindServer, StatusCode: resp.StatusCode, Message: MsgServerError, Err: err}
	}
	return nil
}

// fail 统一记录网关错误，返回原错误
func (c *Client) fail(op string, err error) error {
	fields := map[string]interface{}{"op": op}
	if apiErr, ok := err.(*APIError); ok {
		fields["kind"] = apiErr.Kind.String()
		fields["status"] = apiErr.StatusCode
		if apiErr.Err != nil {
			fields["cause"] = apiErr.Err.Error()
		}
	}
	logger.WithFields(fields).Warnf("API Error: %s", err.Error())
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
