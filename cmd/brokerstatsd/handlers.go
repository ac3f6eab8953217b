package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dray-io/brokerstats/internal/lag"
	"github.com/dray-io/brokerstats/internal/logging"
	"github.com/dray-io/brokerstats/internal/offsets"
	"github.com/dray-io/brokerstats/internal/stats"
	"github.com/dray-io/brokerstats/internal/topics"
)

const (
	incPath       = "/stats/inc"
	itemsPath     = "/stats/items"
	reportingPath = "/stats/reporting"

	topicsPath       = "/admin/topics"
	queuesPath       = "/admin/queues"
	appendPath       = "/admin/queues/append"
	timingPath       = "/admin/queues/timing"
	offsetsPath      = "/admin/offsets"
	commitOffsetPath = "/admin/offsets/commit"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// decodePost reads a JSON body into v. It answers the request itself and
// returns false when the request is unusable.
func decodePost(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func withQueryTimeout(h http.Handler, timeout time.Duration) http.Handler {
	if timeout <= 0 {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

type incRequest struct {
	Kind   string  `json:"kind"`
	Object string  `json:"object"`
	Values []int64 `json:"values"`
}

// incHandler records increments on behalf of processes that do not embed
// the statistics manager.
type incHandler struct {
	manager *stats.Manager
}

func (h *incHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req incRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.Object == "" {
		writeError(w, http.StatusBadRequest, errors.New("object is required"))
		return
	}
	if !h.manager.Inc(req.Kind, req.Object, req.Values...) {
		writeError(w, http.StatusNotFound, errors.New("unknown kind "+strconv.Quote(req.Kind)))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type itemView struct {
	Kind        string           `json:"kind"`
	Object      string           `json:"object"`
	InvokeTimes int64            `json:"invokeTimes"`
	Values      map[string]int64 `json:"values"`
	LastUpdate  time.Time        `json:"lastUpdate"`
}

type itemsHandler struct {
	manager *stats.Manager
}

func (h *itemsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	kind := r.URL.Query().Get("kind")

	views := []itemView{}
	for _, item := range h.manager.Items() {
		if kind != "" && item.Kind() != kind {
			continue
		}
		snap := item.Snapshot()
		values := make(map[string]int64, len(snap.Names))
		for i, name := range snap.Names {
			values[name] = snap.Values[i]
		}
		views = append(views, itemView{
			Kind:        snap.Kind,
			Object:      snap.Object,
			InvokeTimes: snap.InvokeTimes,
			Values:      values,
			LastUpdate:  item.LastUpdate(),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// reportingHandler toggles periodic reporting on every reporter:
// GET returns the state, POST ?enabled=true|false changes it.
type reportingHandler struct {
	reporters []*stats.IncrementReporter
	logger    *logging.Logger
}

func (h *reportingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("enabled must be true or false"))
			return
		}
		for _, rep := range h.reporters {
			rep.SetEnabled(enabled)
		}
		h.logger.Infof("reporting toggled", map[string]any{"enabled": enabled})
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	enabled := len(h.reporters) > 0 && h.reporters[0].Enabled()
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

type createTopicRequest struct {
	Name           string            `json:"name"`
	ReadQueueNums  int32             `json:"readQueueNums"`
	WriteQueueNums int32             `json:"writeQueueNums"`
	Config         map[string]string `json:"config,omitempty"`
}

type appendRequest struct {
	Topic   string `json:"topic"`
	QueueID int32  `json:"queueId"`
	Count   int    `json:"count"`
	// StoreTimeMs, when set, stamps every appended message.
	StoreTimeMs int64 `json:"storeTimeMs,omitempty"`
}

type timingRequest struct {
	Topic string `json:"topic"`
	Delta int64  `json:"delta"`
}

type queueOffset struct {
	Topic   string `json:"topic"`
	QueueID int32  `json:"queueId"`
	Offset  int64  `json:"offset"`
}

// commitRequest commits either one offset or, when Offsets is set, a
// batch for the group.
type commitRequest struct {
	Group       string        `json:"group"`
	Topic       string        `json:"topic,omitempty"`
	QueueID     int32         `json:"queueId,omitempty"`
	Offset      int64         `json:"offset,omitempty"`
	Offsets     []queueOffset `json:"offsets,omitempty"`
	RetentionMs int64         `json:"retentionMs,omitempty"`
}

type queueView struct {
	QueueID   int32 `json:"queueId"`
	MinOffset int64 `json:"minOffset"`
	MaxOffset int64 `json:"maxOffset"`
}

func queryQueueID(r *http.Request) (int32, error) {
	v, err := strconv.ParseInt(r.URL.Query().Get("queueId"), 10, 32)
	if err != nil {
		return 0, errors.New("queueId must be an integer")
	}
	return int32(v), nil
}

func topicStatus(err error) int {
	switch {
	case errors.Is(err, topics.ErrTopicNotFound):
		return http.StatusNotFound
	case errors.Is(err, topics.ErrTopicExists):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// mountIngest exposes the in-memory lag source for reads and writes so that
// a standalone daemon can be fed by a broker or by tests.
func (d *Daemon) mountIngest() {
	d.server.Handle(topicsPath, http.HandlerFunc(d.serveTopics))
	d.server.Handle(queuesPath, http.HandlerFunc(d.serveQueues))
	d.server.Handle(appendPath, http.HandlerFunc(d.serveAppend))
	d.server.Handle(timingPath, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req timingRequest
		if !decodePost(w, r, &req) {
			return
		}
		d.queues.AddTimingMessages(req.Topic, req.Delta)
		w.WriteHeader(http.StatusNoContent)
	}))
	d.server.Handle(offsetsPath, http.HandlerFunc(d.serveOffsets))
	d.server.Handle(commitOffsetPath, http.HandlerFunc(d.serveCommit))
}

// serveTopics lists (GET), creates (POST), resizes (PUT) and deletes
// (DELETE ?name=) topics.
func (d *Daemon) serveTopics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		list, err := d.topics.ListTopics(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	case http.MethodPost:
		var req createTopicRequest
		if !decodePost(w, r, &req) {
			return
		}
		topic, err := d.topics.CreateTopic(ctx, topics.CreateTopicRequest{
			Name:           req.Name,
			ReadQueueNums:  req.ReadQueueNums,
			WriteQueueNums: req.WriteQueueNums,
			Config:         req.Config,
			NowMs:          time.Now().UnixMilli(),
		})
		if err != nil {
			writeError(w, topicStatus(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, topic)

	case http.MethodPut:
		var req createTopicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.WriteQueueNums == 0 {
			req.WriteQueueNums = req.ReadQueueNums
		}
		topic, err := d.topics.UpdateQueueNums(ctx, req.Name, req.ReadQueueNums, req.WriteQueueNums)
		if err != nil {
			writeError(w, topicStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, topic)

	case http.MethodDelete:
		name := r.URL.Query().Get("name")
		if err := d.topics.DeleteTopic(ctx, name); err != nil {
			writeError(w, topicStatus(err), err)
			return
		}
		d.forgetTopic(name)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, POST, PUT, DELETE")
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

// serveQueues reports the offset bounds of every written queue of ?topic=.
func (d *Daemon) serveQueues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	topic := r.URL.Query().Get("topic")
	views := []queueView{}
	for _, id := range d.queues.QueueIDs(topic) {
		minOffset, err := d.queues.MinOffset(r.Context(), topic, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		maxOffset, err := d.queues.MaxOffset(r.Context(), topic, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		views = append(views, queueView{QueueID: id, MinOffset: minOffset, MaxOffset: maxOffset})
	}
	writeJSON(w, http.StatusOK, views)
}

func (d *Daemon) serveAppend(w http.ResponseWriter, r *http.Request) {
	var req appendRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	exists, err := d.topics.TopicExists(r.Context(), req.Topic)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, topics.ErrTopicNotFound)
		return
	}

	var last int64
	if req.StoreTimeMs > 0 {
		for i := 0; i < req.Count && err == nil; i++ {
			last, err = d.queues.Append(req.Topic, req.QueueID, req.StoreTimeMs)
		}
	} else {
		last, err = d.queues.AppendNow(req.Topic, req.QueueID, req.Count)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	d.manager.Inc("TOPIC_PUT_NUMS", req.Topic, int64(req.Count))
	d.ticks.Flow(putTicksName(req.Topic), int64(req.Count))
	writeJSON(w, http.StatusOK, map[string]int64{"lastOffset": last})
}

func putTicksName(topic string) string {
	return "put." + topic
}

// forgetTopic drops the per-topic items and perf counters of a deleted topic.
func (d *Daemon) forgetTopic(name string) {
	d.manager.Remove("TOPIC_PUT_NUMS", name)
	d.manager.Remove(lag.StatsKind, name)
	d.ticks.Remove(putTicksName(name))
	d.ticks.Remove(lag.TicksName(name))
}

// serveOffsets lists a group's offsets (GET ?group=) or deletes one
// (DELETE ?group=&topic=&queueId=).
func (d *Daemon) serveOffsets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	group := q.Get("group")
	switch r.Method {
	case http.MethodGet:
		list, err := d.offsets.ListGroupOffsets(r.Context(), group)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	case http.MethodDelete:
		queueID, err := queryQueueID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := d.offsets.DeleteOffset(r.Context(), group, q.Get("topic"), queueID); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, DELETE")
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (d *Daemon) serveCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if !decodePost(w, r, &req) {
		return
	}
	now := time.Now().UnixMilli()

	if len(req.Offsets) > 0 {
		reqs := make([]offsets.CommitRequest, len(req.Offsets))
		for i, o := range req.Offsets {
			reqs[i] = offsets.CommitRequest{
				Topic:           o.Topic,
				QueueID:         o.QueueID,
				Offset:          o.Offset,
				RetentionTimeMs: req.RetentionMs,
				NowMs:           now,
			}
		}
		committed, err := d.offsets.CommitOffsets(r.Context(), req.Group, reqs)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, committed)
		return
	}

	committed, err := d.offsets.CommitOffset(r.Context(), offsets.CommitRequest{
		Group:           req.Group,
		Topic:           req.Topic,
		QueueID:         req.QueueID,
		Offset:          req.Offset,
		RetentionTimeMs: req.RetentionMs,
		NowMs:           now,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, committed)
}
