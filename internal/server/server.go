package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hanpama/graphtensor/internal/batchgraph"
	"github.com/hanpama/graphtensor/internal/data"
	"github.com/hanpama/graphtensor/internal/dataset"
	"github.com/hanpama/graphtensor/internal/egograph"
	eventbus "github.com/hanpama/graphtensor/internal/eventbus"
	events "github.com/hanpama/graphtensor/internal/events"
	"github.com/hanpama/graphtensor/internal/pipeline"
	reqid "github.com/hanpama/graphtensor/internal/reqid"
	"github.com/hanpama/graphtensor/internal/wire"
)

// Handler is an http.Handler serving the tuples of one dataset.
//
//	GET  /schema                          declared tuple schema
//	POST /next                            next tuple as protojson, 204 once exhausted
//	POST /batchgraph?alias=pos_src        batch graph summary of the last tuple
//	POST /egograph?source=a&neighbor=b    ego graph summary of the last tuple
type Handler struct {
	ds     *dataset.Dataset
	schema *wire.Schema
	opt    Options
	mux    *http.ServeMux

	mu   sync.Mutex
	last *dataset.Element
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a handler pulling from ds and encoding tuples with s. It
// initializes the dataset iterator.
func New(ds *dataset.Dataset, s *wire.Schema, opts ...Option) (*Handler, error) {
	if len(s.Specs()) != len(ds.OutputSpecs()) {
		return nil, fmt.Errorf("server: wire schema has %d positions, dataset declares %d", len(s.Specs()), len(ds.OutputSpecs()))
	}
	if err := ds.Iterator().Initialize(context.Background()); err != nil {
		return nil, err
	}
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	h := &Handler{ds: ds, schema: s, opt: op, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /schema", h.serveSchema)
	h.mux.HandleFunc("POST /next", h.serveNext)
	h.mux.HandleFunc("POST /batchgraph", h.serveBatchGraph)
	h.mux.HandleFunc("POST /egograph", h.serveEgoGraph)
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, _ = reqid.NewContext(ctx)
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: rec.status, Bytes: rec.bytes, Duration: time.Since(start)})
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}
	if r.Method == http.MethodOptions {
		rec.WriteHeader(http.StatusNoContent)
		return
	}
	h.mux.ServeHTTP(rec, r.WithContext(ctx))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// ------------------ Routes ------------------

type tensorInfo struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []int  `json:"shape"` // -1 marks an unknown dimension
}

type schemaResponse struct {
	Mode      string       `json:"mode"`
	PosSize   int          `json:"pos_size,omitempty"`
	EdgeTypes []string     `json:"edge_types,omitempty"`
	Tensors   []tensorInfo `json:"tensors"`
}

func (h *Handler) serveSchema(w http.ResponseWriter, r *http.Request) {
	names := h.schema.Names()
	specs := h.schema.Specs()
	out := schemaResponse{
		Mode:      h.ds.Mode().String(),
		PosSize:   h.ds.PosSize(),
		EdgeTypes: h.ds.EdgeTypes(),
		Tensors:   make([]tensorInfo, len(specs)),
	}
	for i, s := range specs {
		out.Tensors[i] = tensorInfo{Name: names[i], DType: s.DType.String(), Shape: s.Shape}
	}
	writeJSON(w, http.StatusOK, out, h.opt.Pretty)
}

func (h *Handler) serveNext(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	el, err := h.ds.Next(r.Context())
	if err == nil {
		h.last = el
	}
	h.mu.Unlock()
	if errors.Is(err, io.EOF) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	body, err := h.schema.MarshalJSON(el.Values())
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

var errNoTuple = errors.New("server: no tuple pulled yet; POST /next first")

func (h *Handler) lastElement(ctx context.Context) (*dataset.Element, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return nil, errNoTuple
	}
	return h.last.WithContext(ctx), nil
}

type batchGraphResponse struct {
	Kind      string         `json:"kind"`
	NumGraphs int            `json:"num_graphs"`
	Nodes     map[string]int `json:"nodes"`
	Edges     map[string]int `json:"edges"`
}

func (h *Handler) serveBatchGraph(w http.ResponseWriter, r *http.Request) {
	el, err := h.lastElement(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	g, err := el.BatchGraph(r.URL.Query().Get("alias"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if g == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, h.summarizeBatch(g), h.opt.Pretty)
}

func (h *Handler) summarizeBatch(g batchgraph.Graph) batchGraphResponse {
	out := batchGraphResponse{
		Kind:      g.Kind().String(),
		NumGraphs: g.NumGraphs(),
		Nodes:     map[string]int{},
		Edges:     map[string]int{},
	}
	switch g := g.(type) {
	case *batchgraph.BatchGraph:
		l := h.ds.Layout()
		out.Nodes[l.NodeTypes()[0]] = g.NumNodes()
		out.Edges[l.EdgeTypes()[0]] = g.NumEdges()
	case *batchgraph.HeteroBatchGraph:
		for _, t := range g.NodeTypes() {
			out.Nodes[t] = g.Nodes[t].Len()
		}
		for _, t := range g.EdgeTypes() {
			out.Edges[t] = g.EdgeIndex[t].Dim(1)
		}
	}
	return out
}

type roleInfo struct {
	Type string `json:"type"`
	Rows int    `json:"rows"`
}

type egoGraphResponse struct {
	Hops    int        `json:"hops"`
	NbrNums []int      `json:"nbr_nums"`
	Src     roleInfo   `json:"src"`
	Nbrs    []roleInfo `json:"nbrs"`
	Edges   []roleInfo `json:"edges"`
}

func (h *Handler) serveEgoGraph(w http.ResponseWriter, r *http.Request) {
	el, err := h.lastElement(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	q := r.URL.Query()
	g, err := el.EgoGraph(q.Get("source"), q["neighbor"]...)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarizeEgo(g), h.opt.Pretty)
}

func summarizeEgo(g *egograph.EgoGraph) egoGraphResponse {
	roles := func(ds []*data.Data, schema []egograph.Schema) []roleInfo {
		out := make([]roleInfo, len(ds))
		for i, d := range ds {
			out[i] = roleInfo{Type: schema[i].Type, Rows: rows(d)}
		}
		return out
	}
	return egoGraphResponse{
		Hops:    g.Hops(),
		NbrNums: g.NbrNums,
		Src:     roleInfo{Type: g.NodeSchema[0].Type, Rows: rows(g.Src)},
		Nbrs:    roles(g.Nbrs, g.NodeSchema[1:]),
		Edges:   roles(g.Edges, g.EdgeSchema),
	}
}

// rows counts a bundle by ids, or by destination ids for edges without ids.
func rows(d *data.Data) int {
	if n := d.Len(); n > 0 || d.DstIDs.IsZero() {
		return n
	}
	return d.DstIDs.Rows()
}

// ------------------ Response formatting ------------------

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dataset.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, errNoTuple), errors.Is(err, pipeline.ErrNotInitialized):
		status = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, errorResponse{Error: err.Error()}, h.opt.Pretty)
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
