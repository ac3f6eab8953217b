package lag

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dray-io/brokerstats/internal/logging"
	"github.com/dray-io/brokerstats/internal/metrics"
)

// Path is where NewHandler is usually mounted.
const Path = "/stats/messages"

// Response codes.
const (
	CodeSuccess          = "SUCCESS"
	CodeTopicNotExist    = "TOPIC_NOT_EXIST"
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeSystemError      = "SYSTEM_ERROR"
)

// RequestIDHeader carries the request id back to the caller.
const RequestIDHeader = "X-Request-Id"

// Response is the JSON body of every answer.
type Response struct {
	Code   string  `json:"code" yaml:"code"`
	Remark string  `json:"remark,omitempty" yaml:"remark,omitempty"`
	Result *Result `json:"result,omitempty" yaml:"result,omitempty"`
}

// Handler serves lag statistics over HTTP:
//
//	GET /stats/messages?topic=T&consumerGroup=G[&fromTime=ms][&toTime=ms]
type Handler struct {
	agg     *Aggregator
	logger  *logging.Logger
	metrics *metrics.LagMetrics
}

// NewHandler creates a handler answering from agg.
func NewHandler(agg *Aggregator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Global()
	}
	return &Handler{agg: agg, logger: logger.Named("lag.http")}
}

// WithMetrics sets the query metrics.
func (h *Handler) WithMetrics(m *metrics.LagMetrics) *Handler {
	h.metrics = m
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)
	ctx := logging.WithRequestIDCtx(r.Context(), requestID)
	logger := logging.ContextLogger(ctx, h.logger)

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		h.write(w, logger, http.StatusMethodNotAllowed, Response{Code: CodeInvalidParameter, Remark: "method not allowed"})
		h.metrics.RecordQuery(metrics.LagStatusBadRequest, time.Since(start).Seconds(), 0)
		return
	}

	req, err := parseRequest(r)
	if err != nil {
		h.write(w, logger, http.StatusBadRequest, Response{Code: CodeInvalidParameter, Remark: err.Error()})
		h.metrics.RecordQuery(metrics.LagStatusBadRequest, time.Since(start).Seconds(), 0)
		return
	}

	result, err := h.agg.Statistics(ctx, req)
	switch {
	case err == nil:
		h.write(w, logger, http.StatusOK, Response{Code: CodeSuccess, Result: result})
		h.metrics.RecordQuery(metrics.LagStatusSuccess, time.Since(start).Seconds(), result.QueuesScanned)
	case errors.Is(err, ErrTopicNotExist):
		h.write(w, logger, http.StatusNotFound, Response{Code: CodeTopicNotExist, Remark: err.Error()})
		h.metrics.RecordQuery(metrics.LagStatusTopicNotExist, time.Since(start).Seconds(), 0)
	case errors.Is(err, ErrInvalidRequest):
		h.write(w, logger, http.StatusBadRequest, Response{Code: CodeInvalidParameter, Remark: err.Error()})
		h.metrics.RecordQuery(metrics.LagStatusBadRequest, time.Since(start).Seconds(), 0)
	default:
		logger.Errorf("lag query failed", map[string]any{
			"topic": req.Topic,
			"group": req.Group,
			"error": err.Error(),
		})
		h.write(w, logger, http.StatusInternalServerError, Response{Code: CodeSystemError, Remark: err.Error()})
		h.metrics.RecordQuery(metrics.LagStatusFailure, time.Since(start).Seconds(), 0)
	}
}

func (h *Handler) write(w http.ResponseWriter, logger *logging.Logger, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Warnf("failed to write response", map[string]any{"error": err.Error()})
	}
}

func parseRequest(r *http.Request) (Request, error) {
	q := r.URL.Query()
	req := Request{
		Topic: q.Get("topic"),
		Group: q.Get("consumerGroup"),
	}
	if req.Topic == "" || req.Group == "" {
		return req, ErrInvalidRequest
	}
	var err error
	if req.FromTime, err = parseMillis(q.Get("fromTime")); err != nil {
		return req, errors.New("lag: invalid fromTime")
	}
	if req.ToTime, err = parseMillis(q.Get("toTime")); err != nil {
		return req, errors.New("lag: invalid toTime")
	}
	return req, nil
}

func parseMillis(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
