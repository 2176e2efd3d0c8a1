package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ReaderConfig configures a Reader.
type ReaderConfig struct {
	// Options holds default analysis options.
	Options *ReadOptions

	OnBeforeAnalyze  func()
	OnAnalyzeSuccess func(*ReadResponse)
	OnAnalyzeError   func(error)
}

// ReadInput is the text to analyze, given inline or as a URL.
type ReadInput struct {
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

// ReadResponse is the result of a text intelligence request.
type ReadResponse struct {
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Results  ReadResults     `json:"results"`

	// Raw is the complete response body.
	Raw json.RawMessage `json:"-"`
}

type ReadResults struct {
	Summary    *ReadSummary    `json:"summary,omitempty"`
	Topics     json.RawMessage `json:"topics,omitempty"`
	Intents    json.RawMessage `json:"intents,omitempty"`
	Sentiments json.RawMessage `json:"sentiments,omitempty"`
}

type ReadSummary struct {
	Text string `json:"text"`
}

// Reader runs text intelligence analyses: summaries, topics, intents and
// sentiment.
type Reader struct {
	client *Client
	config ReaderConfig

	slot abortSlot
}

// NewReader creates a Reader.
func NewReader(client *Client, config ReaderConfig) *Reader {
	if client == nil {
		panic("deepgram: nil client")
	}
	if config.OnBeforeAnalyze == nil {
		config.OnBeforeAnalyze = noop
	}
	if config.OnAnalyzeSuccess == nil {
		config.OnAnalyzeSuccess = func(*ReadResponse) {}
	}
	if config.OnAnalyzeError == nil {
		config.OnAnalyzeError = noopErr
	}
	return &Reader{client: client, config: config}
}

// Analyze runs the selected analyses on input. A newer call aborts an
// in-flight one; the aborted call returns ErrRequestAborted and fires no
// callbacks.
func (r *Reader) Analyze(ctx context.Context, input ReadInput, opts *ReadOptions) (*ReadResponse, error) {
	r.config.OnBeforeAnalyze()
	start := time.Now()
	resp, err := r.analyze(ctx, input, opts)
	r.client.metrics().observeRequest("read", start, err)
	if errors.Is(err, ErrRequestAborted) {
		return nil, err
	}
	if err != nil {
		r.config.OnAnalyzeError(err)
		return nil, err
	}
	r.config.OnAnalyzeSuccess(resp)
	return resp, nil
}

func (r *Reader) analyze(ctx context.Context, input ReadInput, override *ReadOptions) (*ReadResponse, error) {
	if strings.TrimSpace(input.Text) == "" && strings.TrimSpace(input.URL) == "" {
		return nil, fmt.Errorf("%w: either text or url is required", ErrInvalidInput)
	}
	if err := r.client.checkCredential(); err != nil {
		return nil, err
	}
	opts, err := mergeOptions(r.config.Options, override)
	if err != nil {
		return nil, err
	}

	ctx, done := r.slot.begin(ctx)
	defer done()

	body, err := r.client.postJSON(ctx, "/read", opts.Query(), input)
	if err != nil {
		return nil, err
	}
	if aborted := abortCause(ctx); aborted != nil {
		return nil, aborted
	}

	var resp ReadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode read response: %v", ErrProtocol, err)
	}
	resp.Raw = body
	return &resp, nil
}

// Abort cancels the in-flight analysis, if any.
func (r *Reader) Abort() {
	r.slot.abort()
}
