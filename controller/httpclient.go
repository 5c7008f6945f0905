package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/pravega/readergroup/rgerr"
	"github.com/pravega/readergroup/stream"
	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPClient implements Controller over a JSON/HTTP RPC surface, using
// fasthttp for the transport (the domain stack's HTTP client of choice)
// and a caller-supplied Backoff for RetryableUpstream classification.
type HTTPClient struct {
	baseURL string
	client  *fasthttp.Client
	backoff Backoff
	timeout time.Duration
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &fasthttp.Client{Name: "readergroup-controller-client"},
		backoff: DefaultBackoff(),
		timeout: 5 * time.Second,
	}
}

func (c *HTTPClient) WithBackoff(b Backoff) *HTTPClient { c.backoff = b; return c }
func (c *HTTPClient) WithTimeout(d time.Duration) *HTTPClient { c.timeout = d; return c }

func (c *HTTPClient) GetSegmentsAtTime(ctx context.Context, s stream.Stream, t int64) (stream.StreamCut, error) {
	var out stream.StreamCut
	err := c.backoff.Retry(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.getSegmentsAtTime(s, t)
		return err
	})
	return out, err
}

func (c *HTTPClient) getSegmentsAtTime(s stream.Stream, t int64) (stream.StreamCut, error) {
	req := struct {
		Stream stream.Stream `json:"stream"`
		Time   int64         `json:"time"`
	}{s, t}
	var resp stream.StreamCut
	if err := c.do("getSegmentsAtTime", req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *HTTPClient) GetSuccessors(ctx context.Context, cut stream.StreamCut) (Successors, error) {
	var out Successors
	err := c.backoff.Retry(ctx, func(ctx context.Context) error {
		return c.do("getSuccessors", cut, &out)
	})
	return out, err
}

func (c *HTTPClient) GetSegments(ctx context.Context, from, to stream.StreamCut) ([]stream.Segment, error) {
	var out []stream.Segment
	req := struct {
		From stream.StreamCut `json:"from"`
		To   stream.StreamCut `json:"to"`
	}{from, to}
	err := c.backoff.Retry(ctx, func(ctx context.Context) error {
		return c.do("getSegments", req, &out)
	})
	return out, err
}

func (c *HTTPClient) AddSubscriber(ctx context.Context, s stream.Stream, subscriberID string, gen uint64) error {
	return c.subscriberCall(ctx, "addSubscriber", s, subscriberID, nil, gen)
}

func (c *HTTPClient) UpdateSubscriberStreamCut(ctx context.Context, s stream.Stream, subscriberID string, cut stream.StreamCut, gen uint64) error {
	return c.subscriberCall(ctx, "updateSubscriberStreamCut", s, subscriberID, cut, gen)
}

func (c *HTTPClient) DeleteSubscriber(ctx context.Context, s stream.Stream, subscriberID string, gen uint64) error {
	return c.subscriberCall(ctx, "deleteSubscriber", s, subscriberID, nil, gen)
}

func (c *HTTPClient) subscriberCall(ctx context.Context, verb string, s stream.Stream, subscriberID string, cut stream.StreamCut, gen uint64) error {
	req := struct {
		Stream       stream.Stream    `json:"stream"`
		SubscriberID string           `json:"subscriberId"`
		Cut          stream.StreamCut `json:"cut,omitempty"`
		Generation   uint64           `json:"generation"`
	}{s, subscriberID, cut, gen}
	return c.backoff.Retry(ctx, func(ctx context.Context) error {
		return c.do(verb, req, nil)
	})
}

func (c *HTTPClient) SegmentLength(ctx context.Context, seg stream.Segment) (int64, error) {
	var out struct {
		Length int64 `json:"length"`
	}
	err := c.backoff.Retry(ctx, func(ctx context.Context) error {
		return c.do("segmentLength", seg, &out)
	})
	return out.Length, err
}

// do performs a single POST /v1/controller/<verb> request with a JSON
// body and, if resp is non-nil, unmarshals the JSON response into it.
// Connection-level failures, 5xx and 429 responses are classified
// RetryableUpstream so Backoff.Retry knows to try again; 404 maps to
// rgerr.ErrInvalidStream and any other 4xx is returned as a plain error.
func (c *HTTPClient) do(verb string, body, resp any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return rgerr.NewFatal("controller: marshal request", err)
	}

	req := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(httpResp)

	req.SetRequestURI(c.baseURL + "/v1/controller/" + verb)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	if err := c.client.DoTimeout(req, httpResp, c.timeout); err != nil {
		return rgerr.NewRetryable(verb, err)
	}
	if sc := httpResp.StatusCode(); sc >= 500 || sc == fasthttp.StatusTooManyRequests {
		return rgerr.NewRetryable(verb, fmt.Errorf("status %d", sc))
	}
	if sc := httpResp.StatusCode(); sc == fasthttp.StatusNotFound {
		return fmt.Errorf("controller: %s: %w", verb, rgerr.ErrInvalidStream)
	}
	if sc := httpResp.StatusCode(); sc >= 400 {
		return fmt.Errorf("controller: %s: status %d: %s", verb, sc, httpResp.Body())
	}

	if resp == nil || len(httpResp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(httpResp.Body(), resp); err != nil {
		return rgerr.NewFatal("controller: unmarshal response", err)
	}
	return nil
}
