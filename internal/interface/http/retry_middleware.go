package http

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yanqian/qa-trainer/internal/infra/config"
)

var errBodyTooLarge = errors.New("request body exceeds retry limit")

// withRetry replays requests that end in a 5xx response. Bodies are
// buffered up to retryBodyLimit; excluded paths and non-idempotent
// methods other than POST pass straight through.
func withRetry(handler http.Handler, cfg config.RetryConfig, logger *slog.Logger) http.Handler {
	if !cfg.Enabled || cfg.MaxAttempts <= 1 {
		return handler
	}
	exclusions := make(map[string]struct{}, len(cfg.Exclude))
	for _, path := range cfg.Exclude {
		exclusions[path] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, skip := exclusions[r.URL.Path]; skip || !retryableMethod(r.Method) {
			handler.ServeHTTP(w, r)
			return
		}
		bodyBytes, err := readRequestBody(r)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, errBodyTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			http.Error(w, err.Error(), status)
			return
		}

		for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
			if attempt > 1 {
				delay := cfg.BaseBackoff << (attempt - 2)
				select {
				case <-r.Context().Done():
					http.Error(w, r.Context().Err().Error(), http.StatusServiceUnavailable)
					return
				case <-time.After(delay):
				}
			}

			recorder := newRetryResponseRecorder()
			reqCopy := r.Clone(r.Context())
			reqCopy.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			reqCopy.ContentLength = int64(len(bodyBytes))

			handler.ServeHTTP(recorder, reqCopy)
			if !recorder.retryable() || attempt == cfg.MaxAttempts {
				if attempt > 1 {
					recorder.header.Set("X-Retry-Attempts", strconv.Itoa(attempt))
				}
				recorder.commit(w)
				return
			}

			logger.Warn("transient failure, retrying request", "path", r.URL.Path, "status", recorder.status, "attempt", attempt)
		}
	})
}

const retryBodyLimit = 4 << 20

func retryableMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodPost
}

func readRequestBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, retryBodyLimit+1))
	if err != nil {
		return nil, err
	}
	if len(data) > retryBodyLimit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// retryResponseRecorder buffers one attempt so a failed one is never
// sent to the client.
type retryResponseRecorder struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newRetryResponseRecorder() *retryResponseRecorder {
	return &retryResponseRecorder{header: make(http.Header)}
}

func (r *retryResponseRecorder) Header() http.Header { return r.header }

func (r *retryResponseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *retryResponseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(b)
}

func (r *retryResponseRecorder) Flush() {}

func (r *retryResponseRecorder) retryable() bool {
	return r.status >= http.StatusInternalServerError
}

func (r *retryResponseRecorder) commit(w http.ResponseWriter) {
	dst := w.Header()
	for k, values := range r.header {
		dst[k] = append([]string(nil), values...)
	}
	if r.status == 0 {
		r.status = http.StatusOK
	}
	w.WriteHeader(r.status)
	if r.body.Len() > 0 {
		_, _ = w.Write(r.body.Bytes())
	}
}
