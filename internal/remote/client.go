package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-collect-sync/internal/models"
	"github.com/noah-isme/sma-collect-sync/pkg/config"
	appErrors "github.com/noah-isme/sma-collect-sync/pkg/errors"
	"github.com/noah-isme/sma-collect-sync/pkg/storage"
)

// Client implements Store over the platform's HTTP/JSON API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a client from config.
func NewClient(cfg config.RemoteConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// envelope mirrors the platform API response contract.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) FetchCollection(ctx context.Context, collectionID int32) (models.Collection, error) {
	var out models.Collection
	path := fmt.Sprintf("/collections/%d", collectionID)
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) FetchRecord(ctx context.Context, collectionID int32, recordID int64) (models.Record, error) {
	var out models.Record
	path := fmt.Sprintf("/collections/%d/records/%d", collectionID, recordID)
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

type pagePayload struct {
	Records    []models.Record `json:"records"`
	TotalCount int64           `json:"totalCount"`
	MaxCount   int64           `json:"maxCount"`
}

func (c *Client) FetchPage(ctx context.Context, collectionID int32, q PageQuery) (Page, error) {
	values := url.Values{}
	values.Set("page", strconv.Itoa(q.Page))
	if q.PerPage > 0 {
		values.Set("perPage", strconv.Itoa(q.PerPage))
	}
	if q.GroupID != 0 {
		values.Set("groupId", strconv.FormatInt(int64(q.GroupID), 10))
	}
	var payload pagePayload
	path := fmt.Sprintf("/collections/%d/records?%s", collectionID, values.Encode())
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return Page{}, err
	}
	return Page{Records: payload.Records, TotalCount: payload.TotalCount, MaxCount: payload.MaxCount}, nil
}

func (c *Client) SearchPage(ctx context.Context, collectionID int32, q PageQuery) (Page, error) {
	body := map[string]interface{}{
		"search":   q.Search,
		"advanced": q.Advanced,
		"page":     q.Page,
		"perPage":  q.PerPage,
		"groupId":  q.GroupID,
	}
	var payload pagePayload
	path := fmt.Sprintf("/collections/%d/records/search", collectionID)
	if err := c.doJSON(ctx, http.MethodPost, path, body, &payload); err != nil {
		return Page{}, err
	}
	return Page{Records: payload.Records, TotalCount: payload.TotalCount, MaxCount: payload.MaxCount}, nil
}

func (c *Client) SubmitAdd(ctx context.Context, collectionID int32, fields []models.FieldMutation, groupID int32) (int64, error) {
	body := map[string]interface{}{
		"fields":  fields,
		"groupId": groupID,
	}
	var payload struct {
		RecordID int64 `json:"recordId"`
	}
	path := fmt.Sprintf("/collections/%d/records", collectionID)
	if err := c.doJSON(ctx, http.MethodPost, path, body, &payload); err != nil {
		return 0, err
	}
	return payload.RecordID, nil
}

func (c *Client) SubmitEdit(ctx context.Context, recordID int64, fields []models.FieldMutation) error {
	body := map[string]interface{}{"fields": fields}
	path := fmt.Sprintf("/records/%d", recordID)
	return c.doJSON(ctx, http.MethodPut, path, body, nil)
}

func (c *Client) SubmitDelete(ctx context.Context, recordID int64) error {
	path := fmt.Sprintf("/records/%d", recordID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) SubmitApprove(ctx context.Context, recordID int64, approve bool) error {
	body := map[string]interface{}{"approve": approve}
	path := fmt.Sprintf("/records/%d/approval", recordID)
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) UploadFile(ctx context.Context, collectionID int32, recordID int64, fieldID int32, file storage.StagedFile) (models.FileRef, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", file.Name)
	if err != nil {
		return models.FileRef{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "build upload request")
	}
	src, err := os.Open(file.Path)
	if err != nil {
		return models.FileRef{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "open staged file")
	}
	defer src.Close() //nolint:errcheck
	if _, err := io.Copy(part, src); err != nil {
		return models.FileRef{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "read staged file")
	}
	if err := writer.Close(); err != nil {
		return models.FileRef{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "finish upload request")
	}

	path := fmt.Sprintf("/collections/%d/records/%d/fields/%d/files", collectionID, recordID, fieldID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return models.FileRef{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "build upload request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var ref models.FileRef
	if err := c.send(req, &ref); err != nil {
		return models.FileRef{}, err
	}
	return ref, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "encode request")
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out interface{}) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrConnectivity.Code, appErrors.ErrConnectivity.Status, appErrors.ErrConnectivity.Message)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrConnectivity.Code, appErrors.ErrConnectivity.Status, "read response")
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		// The site did not complete the request; retry later.
		return appErrors.Clone(appErrors.ErrConnectivity, fmt.Sprintf("site returned %d", resp.StatusCode))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var env envelope
		message := fmt.Sprintf("site returned %d", resp.StatusCode)
		if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil && env.Error.Message != "" {
			message = env.Error.Message
		}
		if resp.StatusCode == http.StatusNotFound {
			return appErrors.Clone(appErrors.ErrNotFound, message)
		}
		return appErrors.Clone(appErrors.ErrRemoteRejection, message)
	}

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return appErrors.Wrap(err, appErrors.ErrConnectivity.Code, appErrors.ErrConnectivity.Status, "decode response")
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return appErrors.Wrap(err, appErrors.ErrConnectivity.Code, appErrors.ErrConnectivity.Status, "decode response data")
	}
	return nil
}
