// 包 api：向导会话的 JSON HTTP 接口；路由集中注册，主入口只负责挂载到 API_BASE
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"listing-map/internal/drawing"
	"listing-map/internal/geolocate"
	"listing-map/internal/layer"
	"listing-map/internal/mapview"
	"listing-map/internal/metrics"
	"listing-map/internal/render"
	"listing-map/internal/snap"
	"listing-map/internal/wizard"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/paulmach/orb"
)

var errNoViewport = errors.New("viewport not reported yet")

const defaultMaxUpload = 16 << 20

type Handler struct {
	reg       *Registry
	store     layer.Store
	maxUpload int64
}

func NewHandler(reg *Registry, store layer.Store) *Handler {
	return &Handler{reg: reg, store: store, maxUpload: defaultMaxUpload}
}

// BuildRoutes 构建 API 路由：会话、图层、健康检查与指标
func BuildRoutes(reg *Registry, store layer.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	NewHandler(reg, store).RegisterRoutes(r)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": reg.Len()})
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.createSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.getSession)
		r.Delete("/", h.deleteSession)
		r.Post("/events", h.postEvent)
		r.Post("/viewport", h.postViewport)
		r.Get("/snap", h.getSnap)
		r.Post("/snap/enabled", h.postSnapEnabled)
		r.Post("/drawing/start", h.drawingStart)
		r.Post("/drawing/point", h.drawingPoint)
		r.Post("/drawing/finish", h.drawingFinish)
		r.Post("/drawing/radius", h.drawingRadius)
		r.Post("/drawing/cancel", h.drawingCancel)
		r.Post("/drawing/complete", h.drawingComplete)
		r.Post("/upload", h.upload)
		r.Post("/upload/move", h.uploadMove)
		r.Post("/upload/finish", h.uploadFinish)
		r.Post("/details", h.submitDetails)
		r.Post("/locate", h.locate)
		r.Get("/overlay", h.getOverlay)
	})
	r.Get("/layers/{id}", h.getLayer)
}

type snapView struct {
	Enabled       bool               `json:"enabled"`
	Effectiveness snap.Effectiveness `json:"effectiveness"`
	MinZoom       float64            `json:"min_zoom"`
	ThresholdPx   float64            `json:"threshold_px"`
}

// sessionView 会话快照；读取时会取走待展示的提示
type sessionView struct {
	ID      string           `json:"id"`
	State   wizard.State     `json:"state"`
	Drawing drawing.Snapshot `json:"drawing"`
	Snap    snapView         `json:"snap"`
	Start   *orb.Point       `json:"start,omitempty"`
	Notices []string         `json:"notices,omitempty"`
}

func (h *Handler) view(s *session) sessionView {
	idx := s.c.Snap()
	v := sessionView{
		ID:      s.id,
		State:   s.c.State(),
		Drawing: s.c.Drawing(),
		Snap: snapView{
			Enabled:       idx.Enabled(),
			Effectiveness: idx.Effectiveness(),
			MinZoom:       idx.MinZoom(),
			ThresholdPx:   idx.ThresholdPx(),
		},
		Notices: s.c.Notices(),
	}
	if p, ok := s.c.StartPoint(); ok {
		v.Start = &p
	}
	return v
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session, bool) {
	s, err := h.reg.get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return s, true
}

// reply 出错写错误，否则返回会话快照
func (h *Handler) reply(w http.ResponseWriter, r *http.Request, s *session, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(s))
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	s := h.reg.create()
	writeJSON(w, http.StatusCreated, h.view(s))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		h.reply(w, r, s, nil)
	}
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.reg.drop(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) postEvent(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var e wizard.Event
	if err := decodeJSON(r, &e); err != nil || e.Type == "" {
		writeError(w, r, errBadRequest)
		return
	}
	_, err := s.c.Dispatch(r.Context(), e)
	if e.Type == wizard.Close || e.Type == wizard.Back {
		s.setHover(nil)
	}
	h.reply(w, r, s, err)
}

func (h *Handler) postViewport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var v mapview.Viewport
	if err := decodeJSON(r, &v); err != nil {
		writeError(w, r, err)
		return
	}
	if err := v.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	s.setViewport(v)
	s.c.ViewportChanged(v)
	h.reply(w, r, s, nil)
}

func (h *Handler) postSnapEnabled(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Enabled == nil {
		writeError(w, r, errBadRequest)
		return
	}
	s.c.SetSnapEnabled(*body.Enabled)
	h.reply(w, r, s, nil)
}

func parsePixel(r *http.Request) (mapview.Pixel, error) {
	x, err1 := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
	y, err2 := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
	if err1 != nil || err2 != nil {
		return mapview.Pixel{}, errBadRequest
	}
	return mapview.Pixel{X: x, Y: y}, nil
}

type snapReply struct {
	Result  snap.Result    `json:"result"`
	Overlay render.Overlay `json:"overlay"`
}

// getSnap 悬停查询：返回吸附结果与预览叠加层
func (h *Handler) getSnap(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	px, err := parsePixel(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, ok := s.viewport()
	if !ok {
		writeError(w, r, errNoViewport)
		return
	}
	res := s.c.Hover(px, v)
	s.setHover(&res)
	writeJSON(w, http.StatusOK, snapReply{Result: res, Overlay: render.Build(s.c.Drawing(), &res)})
}

func (h *Handler) drawingStart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Shape string `json:"shape"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	shape, err := drawing.ParseShape(body.Shape)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.setHover(nil)
	h.reply(w, r, s, s.c.StartDrawing(shape))
}

type pointBody struct {
	X   *float64 `json:"x"`
	Y   *float64 `json:"y"`
	Lon *float64 `json:"lon"`
	Lat *float64 `json:"lat"`
}

// drawingPoint 像素坐标走点击流程（吸附/闭合），经纬度坐标直接追加
func (h *Handler) drawingPoint(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body pointBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	switch {
	case body.Lon != nil && body.Lat != nil:
		h.reply(w, r, s, s.c.AddPoint(orb.Point{*body.Lon, *body.Lat}))
	case body.X != nil && body.Y != nil:
		v, ok := s.viewport()
		if !ok {
			writeError(w, r, errNoViewport)
			return
		}
		res, err := s.c.Click(mapview.Pixel{X: *body.X, Y: *body.Y}, v)
		if err == nil {
			s.setHover(&res)
		}
		h.reply(w, r, s, err)
	default:
		writeError(w, r, errBadRequest)
	}
}

func (h *Handler) drawingFinish(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		h.reply(w, r, s, s.c.FinishPolygon())
	}
}

func (h *Handler) drawingRadius(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Radius float64 `json:"radius"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	_, err := s.c.SetRadius(body.Radius)
	h.reply(w, r, s, err)
}

func (h *Handler) drawingCancel(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		s.c.CancelDrawing()
		s.setHover(nil)
		h.reply(w, r, s, nil)
	}
}

type layerReply struct {
	LayerID string       `json:"layer_id"`
	Name    string       `json:"name,omitempty"`
	State   wizard.State `json:"state"`
}

func (h *Handler) drawingComplete(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, err := s.c.CompleteDrawing(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.setHover(nil)
	writeJSON(w, http.StatusCreated, layerReply{LayerID: id, State: s.c.State()})
}

// upload 请求体为 GeoJSON，文件名取自 ?name=
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		writeError(w, r, errBadRequest)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload.geojson"
	}
	id, err := s.c.UploadFile(r.Context(), name, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, layerReply{LayerID: id, State: s.c.State()})
}

func (h *Handler) uploadMove(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		DLon float64 `json:"d_lon"`
		DLat float64 `json:"d_lat"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	h.reply(w, r, s, s.c.MoveUploaded(r.Context(), body.DLon, body.DLat))
}

func (h *Handler) uploadFinish(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		h.reply(w, r, s, s.c.FinishPositioning(r.Context()))
	}
}

func (h *Handler) submitDetails(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var d wizard.Details
	if err := decodeJSON(r, &d); err != nil {
		writeError(w, r, err)
		return
	}
	name, err := s.c.SubmitDetails(r.Context(), d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, layerReply{LayerID: s.c.State().AssociatedLayerID, Name: name, State: s.c.State()})
}

type locateReply struct {
	OK      bool       `json:"ok"`
	Point   *orb.Point `json:"point,omitempty"`
	Notices []string   `json:"notices,omitempty"`
}

// locate 未指定 ip 时按请求来源解析
func (h *Handler) locate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		IP string `json:"ip"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	ip := body.IP
	if ip == "" {
		ip = geolocate.ClientIP(r)
	}
	p, found := s.c.Locate(r.Context(), ip)
	out := locateReply{OK: found, Notices: s.c.Notices()}
	if found {
		out.Point = &p
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getOverlay(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	o := render.Build(s.c.Drawing(), s.lastHover())
	if r.URL.Query().Get("format") == "geojson" {
		writeJSON(w, http.StatusOK, o.FeatureCollection())
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) getLayer(w http.ResponseWriter, r *http.Request) {
	l, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l.Feature())
}
