package doris

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const formatUrlTemp = `%s://%s/api/%s/%s/_stream_load`

const (
	StatusSuccess        = "Success"
	StatusPublishTimeout = "Publish Timeout"
	StatusLabelExists    = "Label Already Exists"
)

var (
	ErrConfigHostEmpty   = errors.New("host is empty")
	ErrConfigDBNameEmpty = errors.New("db name is empty")
	ErrConfigTableEmpty  = errors.New("table name is empty")
	ErrStreamLoad        = errors.New("stream load failed")
)

type Option func(req *request)

type LoadConfig struct {
	IsHttps   bool
	Host      string
	DBName    string
	TableName string
	User      string
	Password  string
	Timeout   time.Duration
}

func (lc *LoadConfig) check() error {
	if len(lc.Host) == 0 {
		return ErrConfigHostEmpty
	}
	if len(lc.DBName) == 0 {
		return ErrConfigDBNameEmpty
	}
	if len(lc.TableName) == 0 {
		return ErrConfigTableEmpty
	}
	if len(lc.User) == 0 {
		lc.User = "root"
	}
	return nil
}

func (lc *LoadConfig) getScheme() string {
	if lc.IsHttps {
		return "https"
	}
	return "http"
}

func (lc *LoadConfig) url() string {
	return fmt.Sprintf(formatUrlTemp, lc.getScheme(), lc.Host, lc.DBName, lc.TableName)
}

// LoadResult is the response body of a stream load.
type LoadResult struct {
	TxnId            int64  `json:"TxnId"`
	Label            string `json:"Label"`
	Status           string `json:"Status"`
	Message          string `json:"Message"`
	NumberLoadedRows int64  `json:"NumberLoadedRows"`
	ErrorURL         string `json:"ErrorURL"`
}

// Loaded reports whether the rows of the label are in the table, a label
// loaded by an earlier attempt counts.
func (r *LoadResult) Loaded() bool {
	switch r.Status {
	case StatusSuccess, StatusPublishTimeout, StatusLabelExists:
		return true
	default:
		return false
	}
}

type request struct {
	config LoadConfig
	header map[string]string
	body   []byte
}

func newRequest(config LoadConfig, body []byte, options ...Option) *request {
	req := &request{config: config, header: map[string]string{}, body: body}
	for _, v := range options {
		v(req)
	}
	return req
}

var (
	mtx  = new(sync.Mutex)
	pool = map[LoadConfig]*http.Client{}
)

var defaultTrans = http.DefaultTransport.(*http.Transport)

func (rq *request) getHttpClient() *http.Client {
	mtx.Lock()
	defer mtx.Unlock()
	if c, ok := pool[rq.config]; ok {
		return c
	}
	trans := defaultTrans.Clone()
	trans.DisableKeepAlives = true
	c := &http.Client{
		Transport: trans,
		// frontends redirect stream loads to a backend, credentials must follow
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			req.SetBasicAuth(rq.config.User, rq.config.Password)
			return nil
		},
		Timeout: rq.config.Timeout,
	}
	pool[rq.config] = c
	return c
}

func (rq *request) load(ctx context.Context) (*LoadResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, rq.config.url(), bytes.NewReader(rq.body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Expect", "100-continue")
	for k, v := range rq.header {
		httpReq.Header.Set(k, v)
	}
	httpReq.SetBasicAuth(rq.config.User, rq.config.Password)
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(rq.body)), nil
	}

	httpRes, err := rq.getHttpClient().Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpRes.Body.Close()
	res, err := io.ReadAll(httpRes.Body)
	if err != nil {
		return nil, err
	}
	if httpRes.StatusCode != http.StatusOK {
		return nil, errors.WithMessagef(ErrStreamLoad, "status code %d, body: %s", httpRes.StatusCode, res)
	}
	result := &LoadResult{}
	if err := json.Unmarshal(res, result); err != nil {
		return nil, errors.WithMessagef(ErrStreamLoad, "malformed response %q", res)
	}
	if !result.Loaded() {
		return result, errors.WithMessagef(ErrStreamLoad, "status %s: %s %s", result.Status, result.Message, result.ErrorURL)
	}
	return result, nil
}

// WithJSON loads the body as a json array of objects.
func WithJSON() Option {
	return func(req *request) {
		req.header["format"] = "json"
		req.header["strip_outer_array"] = "true"
	}
}

func WithCustomHeader(key, value string) Option {
	return func(req *request) {
		req.header[key] = value
	}
}

func WithMaxFilterRatio(maxFilterRatio string) Option {
	return func(req *request) {
		req.header["max_filter_ratio"] = maxFilterRatio
	}
}

func WithColumns(columns string) Option {
	return func(req *request) {
		req.header["columns"] = columns
	}
}

// WithLabel makes the load idempotent, doris rejects a second load of a label.
func WithLabel(label string) Option {
	return func(req *request) {
		req.header["label"] = label
	}
}
