package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"listing-map/internal/drawing"
	"listing-map/internal/geolocate"
	"listing-map/internal/layer"
	"listing-map/internal/logger"
	"listing-map/internal/mapview"
	"listing-map/internal/metrics"
	"listing-map/internal/snap"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrWrongStep     = errors.New("action not valid for current step")
	ErrInvalidEvent  = errors.New("event rejected by current step")
	ErrNoUpload      = errors.New("no uploaded layer to position")
	ErrBadUpload     = errors.New("uploaded file is not valid GeoJSON")
	ErrUnsupported   = errors.New("event must be sent through its dedicated action")
	ErrNothingToDraw = errors.New("no finished drawing")
)

// 一次性提示
const NoticeGeolocationUnavailable = "Η τρέχουσα τοποθεσία δεν είναι διαθέσιμη. Μετακινήστε τον χάρτη χειροκίνητα."

// Deps 由调用方注入的协作者
type Deps struct {
	Store   layer.Store
	Snap    *snap.Index
	Locator geolocate.Locator
	Radius  drawing.RadiusRange
	Logger  *slog.Logger
}

// 文档注释：向导控制器
// 背景：持有状态机状态、绘制会话与吸附索引，并通过注入的图层存储与定位能力执行副作用；顺序固定为“先转移，后副作用”。
// 约束：每个控制器对应一个用户会话，方法由 mu 串行化；存储失败只记录日志并返回错误，状态机保持一致，不会中断会话。
type Controller struct {
	mu      sync.Mutex
	state   State
	session *drawing.Session
	snap    *snap.Index
	store   layer.Store
	locator geolocate.Locator
	log     *slog.Logger

	start       *orb.Point
	notices     []string
	noticeShown map[string]bool
}

func NewController(d Deps) *Controller {
	if d.Store == nil {
		d.Store = layer.NewMemoryStore()
	}
	if d.Snap == nil {
		d.Snap = snap.NewIndex(nil, snap.Options{})
	}
	if d.Locator == nil {
		d.Locator = geolocate.Disabled{}
	}
	if d.Logger == nil {
		d.Logger = logger.Component("wizard")
	}
	return &Controller{
		state:       Initial(),
		session:     drawing.New(d.Radius),
		snap:        d.Snap,
		store:       d.Store,
		locator:     d.Locator,
		log:         d.Logger,
		noticeShown: make(map[string]bool),
	}
}

// fire 纯转移并记录指标
func (c *Controller) fire(e Event) (State, bool) {
	prev := c.state
	next := Transition(prev, e)
	changed := next.Step != prev.Step || (e.Type == FinishFileUpload && next.AssociatedLayerID != prev.AssociatedLayerID)
	metrics.WizardTransitionsTotal.WithLabelValues(string(e.Type), fmt.Sprint(changed)).Inc()
	c.state = next
	if changed {
		c.log.Debug("wizard_transition", "event", e.Type, "from", prev.Step, "to", next.Step)
	}
	return prev, changed
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Drawing() drawing.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Snapshot()
}

func (c *Controller) Snap() *snap.Index { return c.snap }

// StartPoint 定位成功后的默认起点
func (c *Controller) StartPoint() (orb.Point, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.start == nil {
		return orb.Point{}, false
	}
	return *c.start, true
}

// Notices 取出并清空待展示的提示
func (c *Controller) Notices() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.notices
	c.notices = nil
	return out
}

func (c *Controller) notifyOnce(msg string) {
	if c.noticeShown[msg] {
		return
	}
	c.noticeShown[msg] = true
	c.notices = append(c.notices, msg)
}

// Dispatch 处理选择类事件与 BACK/CLOSE；图层相关事件需走各自的动作方法
func (c *Controller) Dispatch(ctx context.Context, e Event) (State, error) {
	switch e.Type {
	case Back:
		return c.Back(ctx), nil
	case Close:
		return c.Close(ctx), nil
	case FinishDrawing, FinishFileUpload, FinishPositioning, SubmitDetails:
		return c.State(), ErrUnsupported
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, changed := c.fire(e); !changed {
		return c.state, ErrInvalidEvent
	}
	return c.state, nil
}

// discardLayer 退出编辑（不提交）并移除图层；失败只记录
func (c *Controller) discardLayer(ctx context.Context, id string, uploaded bool) {
	if id == "" {
		return
	}
	if uploaded {
		if err := c.store.StopEditing(ctx, id, false); err != nil && !errors.Is(err, layer.ErrNotEditing) {
			c.log.Warn("layer_stop_editing_failed", "layer", id, "err", err)
		}
	}
	if err := c.store.RemoveLayer(ctx, id); err != nil {
		c.log.Warn("layer_remove_failed", "layer", id, "err", err)
		return
	}
	metrics.LayersDiscardedTotal.Inc()
	c.log.Debug("layer_discarded", "layer", id, "uploaded", uploaded)
}

// Back 后退并执行对应副作用
func (c *Controller) Back(ctx context.Context) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, _ := c.fire(Event{Type: Back})
	switch prev.Step {
	case StepLocation:
		c.session.Cancel()
		c.discardLayer(ctx, prev.AssociatedLayerID, prev.UploadBacked())
	case StepDetails:
		if prev.UploadBacked() {
			// 上传图层重新进入定位子步骤
			if err := c.store.StartEditing(ctx, prev.AssociatedLayerID); err != nil {
				c.log.Warn("layer_start_editing_failed", "layer", prev.AssociatedLayerID, "err", err)
			}
		} else {
			c.discardLayer(ctx, prev.AssociatedLayerID, false)
		}
		c.session.Cancel()
	}
	return c.state
}

// Close 丢弃未完成的图层，取消绘制并重置吸附索引
func (c *Controller) Close(ctx context.Context) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, _ := c.fire(Event{Type: Close})
	if prev.Step != StepComplete {
		c.discardLayer(ctx, prev.AssociatedLayerID, prev.UploadBacked())
	}
	c.session.Cancel()
	c.snap.Reset()
	return c.state
}

func (c *Controller) requireStep(s Step) error {
	if c.state.Step != s {
		return fmt.Errorf("%w: at %s, need %s", ErrWrongStep, c.state.Step, s)
	}
	return nil
}

// StartDrawing 位置步骤开始绘制，圆形标记按意图预置半径
func (c *Controller) StartDrawing(shape drawing.Shape) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireStep(StepLocation); err != nil {
		return err
	}
	return c.session.StartDrawing(shape, drawing.Intent(c.state.Intent))
}

// AddPoint 直接追加坐标（调用方已完成吸附）
func (c *Controller) AddPoint(p orb.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.AddPoint(p)
}

// Click 指针点击：落在首个顶点上时闭合多边形，否则经吸附后追加
func (c *Controller) Click(pointer mapview.Pixel, proj mapview.Projector) (snap.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.ClosesLoop(pointer, proj, c.snap.ThresholdPx()) {
		first := c.session.Points()[0]
		return snap.Result{ResolvedPoint: first, Anchor: &first, Kind: snap.Vertex}, c.session.Finish()
	}
	res := c.snap.Query(pointer, proj)
	return res, c.session.AddPoint(res.ResolvedPoint)
}

// Hover 指针移动时的吸附预览
func (c *Controller) Hover(pointer mapview.Pixel, proj mapview.Projector) snap.Result {
	return c.snap.Query(pointer, proj)
}

func (c *Controller) FinishPolygon() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Finish()
}

func (c *Controller) SetRadius(v float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.SetRadius(v)
}

func (c *Controller) CancelDrawing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Cancel()
}

// CompleteDrawing 把已完成的绘制交给图层存储，随后 FINISH_DRAWING 并重置会话
func (c *Controller) CompleteDrawing(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireStep(StepLocation); err != nil {
		return "", err
	}
	g, err := c.session.Geometry()
	if err != nil {
		return "", ErrNothingToDraw
	}
	l := &layer.Layer{
		Name:     GenerateName(c.state.NameInput()),
		Geometry: g,
	}
	if c.session.Shape() == drawing.Marker {
		l.Radius = c.session.Radius()
	}
	id, err := c.store.AddConstructedLayer(ctx, l)
	if err != nil {
		c.log.Warn("layer_add_failed", "source", layer.FromDrawing, "err", err)
		return "", err
	}
	metrics.LayersCreatedTotal.WithLabelValues(string(layer.FromDrawing)).Inc()
	// 同一时刻只允许一种几何来源
	if c.state.UploadBacked() {
		c.discardLayer(ctx, c.state.AssociatedLayerID, true)
	}
	c.fire(Event{Type: FinishDrawing, LayerID: id})
	c.session.Cancel()
	return id, nil
}

// parseUpload 接受 FeatureCollection、Feature 或裸 Geometry
func parseUpload(data []byte) (orb.Geometry, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
		var gs orb.Collection
		for _, f := range fc.Features {
			if f != nil && f.Geometry != nil {
				gs = append(gs, f.Geometry)
			}
		}
		switch len(gs) {
		case 0:
			return nil, ErrBadUpload
		case 1:
			return gs[0], nil
		}
		return gs, nil
	}
	if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		return f.Geometry, nil
	}
	if g, err := geojson.UnmarshalGeometry(data); err == nil && g.Coordinates != nil {
		return g.Coordinates, nil
	}
	return nil, ErrBadUpload
}

// UploadFile 解析上传文件 -> AddLayer -> StartEditing -> FINISH_FILE_UPLOAD（进入定位子步骤）
func (c *Controller) UploadFile(ctx context.Context, name string, data []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireStep(StepLocation); err != nil {
		return "", err
	}
	g, err := parseUpload(data)
	if err != nil {
		return "", err
	}
	id, err := c.store.AddLayer(ctx, &layer.Layer{Name: name, Geometry: g})
	if err != nil {
		c.log.Warn("layer_add_failed", "source", layer.FromUpload, "err", err)
		return "", err
	}
	metrics.LayersCreatedTotal.WithLabelValues(string(layer.FromUpload)).Inc()
	if err := c.store.StartEditing(ctx, id); err != nil {
		c.log.Warn("layer_start_editing_failed", "layer", id, "err", err)
	}
	if prev := c.state.AssociatedLayerID; prev != "" {
		c.discardLayer(ctx, prev, c.state.UploadBacked())
	}
	c.session.Cancel()
	c.fire(Event{Type: FinishFileUpload, File: &UploadedFile{Name: name, Size: int64(len(data)), LayerID: id}})
	return id, nil
}

// MoveUploaded 定位子步骤中平移上传图层
func (c *Controller) MoveUploaded(ctx context.Context, dLon, dLat float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireStep(StepLocation); err != nil {
		return err
	}
	if !c.state.UploadBacked() {
		return ErrNoUpload
	}
	l, err := c.store.Get(ctx, c.state.AssociatedLayerID)
	if err != nil {
		return err
	}
	return c.store.UpdateLayer(ctx, l.ID, layer.Patch{Geometry: layer.Translate(l.Geometry, dLon, dLat)})
}

// FinishPositioning 提交定位结果并进入详情步骤
func (c *Controller) FinishPositioning(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireStep(StepLocation); err != nil {
		return err
	}
	if !c.state.UploadBacked() {
		return ErrNoUpload
	}
	if err := c.store.StopEditing(ctx, c.state.AssociatedLayerID, true); err != nil && !errors.Is(err, layer.ErrNotEditing) {
		c.log.Warn("layer_stop_editing_failed", "layer", c.state.AssociatedLayerID, "err", err)
		return err
	}
	c.fire(Event{Type: FinishPositioning})
	return nil
}

// SubmitDetails 转移到完成，随后用生成的名称更新图层
func (c *Controller) SubmitDetails(ctx context.Context, d Details) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireStep(StepDetails); err != nil {
		return "", err
	}
	c.fire(Event{Type: SubmitDetails, Details: &d})
	name := GenerateName(c.state.NameInput())
	if id := c.state.AssociatedLayerID; id != "" {
		if err := c.store.UpdateLayer(ctx, id, layer.Patch{Name: &name}); err != nil {
			c.log.Warn("layer_update_failed", "layer", id, "err", err)
			return name, err
		}
	}
	return name, nil
}

// Locate 单次定位；失败转为一次性提示，不影响其他状态
func (c *Controller) Locate(ctx context.Context, ip string) (orb.Point, bool) {
	p, err := c.locator.Locate(ctx, ip)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.log.Debug("geolocate_failed", "err", err)
		c.notifyOnce(NoticeGeolocationUnavailable)
		return orb.Point{}, false
	}
	c.start = &p
	return p, true
}

// ViewportChanged 转发给吸附索引（内部防抖）
func (c *Controller) ViewportChanged(v mapview.Viewport) {
	c.snap.ViewportChanged(v.Bounds(), v.Zoom())
}

func (c *Controller) SetSnapEnabled(on bool) { c.snap.SetEnabled(on) }
