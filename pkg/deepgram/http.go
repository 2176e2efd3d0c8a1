package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

const userAgent = "deepgram-voice-go/1.0"

// postJSON sends body as JSON to the REST endpoint and returns the raw
// response body.
func (c *Client) postJSON(ctx context.Context, path string, q *Query, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("deepgram: marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, buildURL(c.config.baseURL, path, q), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, req)
}

// postMultipart streams r as the file part of a multipart form.
func (c *Client) postMultipart(ctx context.Context, path string, q *Query, field, filename, contentType string, r io.Reader) ([]byte, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
		h.Set("Content-Type", contentType)
		part, err := writer.CreatePart(h)
		if err != nil {
			pw.CloseWithError(err)
			errCh <- fmt.Errorf("deepgram: create form file: %w", err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			errCh <- fmt.Errorf("deepgram: copy audio: %w", err)
			return
		}
		err = writer.Close()
		pw.CloseWithError(err)
		errCh <- err
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, buildURL(c.config.baseURL, path, q), pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	body, err := c.do(ctx, req)
	pr.Close()
	if writeErr := <-errCh; writeErr != nil && err == nil {
		return nil, writeErr
	}
	return body, err
}

// do sends the request and returns the body of a 2xx response. Any other
// status becomes an *Error.
func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", c.authHeader().Get("Authorization"))
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.config.httpClient.Do(req)
	if err != nil {
		if aborted := abortCause(ctx); aborted != nil {
			return nil, aborted
		}
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if aborted := abortCause(ctx); aborted != nil {
			return nil, aborted
		}
		return nil, fmt.Errorf("deepgram: read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseHTTPError(resp, body)
	}
	return body, nil
}

func parseHTTPError(resp *http.Response, body []byte) error {
	apiErr := &Error{HTTPStatus: resp.StatusCode}
	if json.Unmarshal(body, apiErr) != nil || apiErr.ErrMsg == "" {
		apiErr.ErrCode = ""
		apiErr.Body = string(body)
	}
	if apiErr.RequestID == "" {
		apiErr.RequestID = resp.Header.Get("dg-request-id")
	}
	return apiErr
}

// abortCause returns ErrRequestAborted when ctx was cancelled by a newer
// request of the same kind.
func abortCause(ctx context.Context) error {
	if errors.Is(context.Cause(ctx), ErrRequestAborted) {
		return ErrRequestAborted
	}
	return nil
}
