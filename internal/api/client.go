// Package api is the typed HTTP client for the Nexarag backend. Every call
// is fire-and-observe: callers only care about success or failure, and
// failures are surfaced to the user elsewhere (toast); state changes mostly
// arrive later through the websocket event stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KevinMoonLab/nexarag/internal/types"
)

// Client talks to the Nexarag REST API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "api")),
	}
}

// GetGraph fetches the full knowledge graph. Nodes with labels this client
// does not know are dropped with a warning rather than failing the fetch.
func (c *Client) GetGraph(ctx context.Context) (types.KnowledgeGraph, error) {
	var raw struct {
		Nodes []json.RawMessage `json:"nodes"`
		Edges []types.Edge      `json:"edges"`
	}
	if err := c.getJSON(ctx, "/graph/get/", &raw); err != nil {
		return types.KnowledgeGraph{}, err
	}

	graph := types.KnowledgeGraph{Edges: raw.Edges}
	for _, data := range raw.Nodes {
		var node types.KnowledgeNode
		if err := json.Unmarshal(data, &node); err != nil {
			c.logger.Warn("dropping undecodable node", zap.Error(err))
			continue
		}
		graph.Nodes = append(graph.Nodes, node)
	}
	return graph, nil
}

// ClearGraph asks the backend to clear the graph. The local reset happens
// when the resulting graph_updated event comes back.
func (c *Client) ClearGraph(ctx context.Context) error {
	return c.postJSON(ctx, "/graph/clear/", nil, nil)
}

// SendChat submits a user message. The response echoes the message with the
// server-assigned chatId when this is the first message of a conversation.
func (c *Client) SendChat(ctx context.Context, msg types.ChatMessage) (types.ChatMessage, error) {
	var out types.ChatMessage
	if err := c.postJSON(ctx, "/chat/send/", msg, &out); err != nil {
		return types.ChatMessage{}, err
	}
	return out, nil
}

// DefaultPrefix fetches the default system prompt.
func (c *Client) DefaultPrefix(ctx context.Context) (string, error) {
	var prefix string
	if err := c.getJSON(ctx, "/chat/prefix/default/", &prefix); err != nil {
		return "", err
	}
	return prefix, nil
}

// ListModels fetches the models available on the backend's Ollama host.
func (c *Client) ListModels(ctx context.Context) ([]types.ModelDetails, error) {
	var list types.ModelList
	if err := c.getJSON(ctx, "/ollama/list/", &list); err != nil {
		return nil, err
	}
	return list.Models, nil
}

// SearchRelevance runs a ranked paper search for the query.
func (c *Client) SearchRelevance(ctx context.Context, query string) ([]types.PaperRelevanceResult, error) {
	path := "/papers/search/relevance?query=" + url.QueryEscape(query)
	var results []types.PaperRelevanceResult
	if err := c.postJSON(ctx, path, nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// AddPapers queues papers for ingestion; graph growth arrives later via a
// graph_updated event.
func (c *Client) AddPapers(ctx context.Context, paperIDs []string) error {
	return c.postJSON(ctx, "/papers/add", paperIDs, nil)
}

// AddCitations queues citation expansion for the given papers.
func (c *Client) AddCitations(ctx context.Context, paperIDs []string) error {
	return c.postJSON(ctx, "/papers/citations/add/", paperIDs, nil)
}

// AddReferences queues reference expansion for the given papers.
func (c *Client) AddReferences(ctx context.Context, paperIDs []string) error {
	return c.postJSON(ctx, "/papers/references/add/", paperIDs, nil)
}

// UploadDoc uploads one document attached to a paper.
func (c *Client) UploadDoc(ctx context.Context, paperID, filename string, r io.Reader) error {
	return c.uploadMultipart(ctx, "/docs/upload/"+url.PathEscape(paperID), map[string]io.Reader{filename: r})
}

// BulkUploadDocs uploads documents not tied to a particular paper.
func (c *Client) BulkUploadDocs(ctx context.Context, files map[string]io.Reader) error {
	return c.uploadMultipart(ctx, "/docs/bulk/upload/", files)
}

// KgList lists exported knowledge graph snapshots.
func (c *Client) KgList(ctx context.Context) ([]types.KnowledgeGraphInfo, error) {
	var infos []types.KnowledgeGraphInfo
	if err := c.getJSON(ctx, "/kg/list/", &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// KgExport exports the current knowledge graph under the given name.
func (c *Client) KgExport(ctx context.Context, name, description string) (types.KgOperationResponse, error) {
	params := url.Values{}
	params.Set("name", name)
	if description != "" {
		params.Set("description", description)
	}
	var resp types.KgOperationResponse
	if err := c.postJSON(ctx, "/kg/export/?"+params.Encode(), nil, &resp); err != nil {
		return types.KgOperationResponse{}, err
	}
	return resp, nil
}

// KgImport loads a previously exported knowledge graph.
func (c *Client) KgImport(ctx context.Context, name string) (types.KgOperationResponse, error) {
	var resp types.KgOperationResponse
	if err := c.postJSON(ctx, "/kg/import/?name="+url.QueryEscape(name), nil, &resp); err != nil {
		return types.KgOperationResponse{}, err
	}
	return resp, nil
}

// KgDelete removes an exported knowledge graph snapshot.
func (c *Client) KgDelete(ctx context.Context, name string) (types.KgOperationResponse, error) {
	var resp types.KgOperationResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/kg/delete/?name="+url.QueryEscape(name), nil, &resp); err != nil {
		return types.KgOperationResponse{}, err
	}
	return resp, nil
}

// KgCurrent reports which knowledge graph the backend currently serves.
func (c *Client) KgCurrent(ctx context.Context) (types.CurrentKgInfo, error) {
	var info types.CurrentKgInfo
	if err := c.getJSON(ctx, "/kg/current/", &info); err != nil {
		return types.CurrentKgInfo{}, err
	}
	return info, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: backend returned %s", method, path, resp.Status)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

func (c *Client) uploadMultipart(ctx context.Context, path string, files map[string]io.Reader) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, r := range files {
		part, err := w.CreateFormFile("files", name)
		if err != nil {
			return fmt.Errorf("failed to create multipart field: %w", err)
		}
		if _, err := io.Copy(part, r); err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: backend returned %s", path, resp.Status)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
