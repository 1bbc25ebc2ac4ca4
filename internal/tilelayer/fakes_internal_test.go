package tilelayer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
	"weak"

	"github.com/Amund211/tilecore/internal/domain"
	"github.com/Amund211/tilecore/internal/view"
	"github.com/Amund211/tilecore/internal/workpool"
	"github.com/stretchr/testify/require"
)

type mockedTime struct {
	mutex   sync.Mutex
	current time.Time
}

func (m *mockedTime) Now() time.Time {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.current
}

func (m *mockedTime) advance(d time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.current = m.current.Add(d)
}

// fakeSource serves tiles from a map keyed by tile without frame number
type fakeSource struct {
	minZoom int
	maxZoom int
	extent  domain.MapBounds

	mutex     sync.Mutex
	tiles     map[domain.MapTile]*domain.TileData
	errors    map[domain.MapTile]error
	loads     []domain.MapTile
	listeners []domain.ChangeListener

	// When set, LoadTile signals entered and waits for release
	entered chan domain.MapTile
	release chan struct{}
}

func newFakeSource(minZoom, maxZoom int) *fakeSource {
	return &fakeSource{
		minZoom: minZoom,
		maxZoom: maxZoom,
		extent:  domain.WorldBounds,
		tiles:   make(map[domain.MapTile]*domain.TileData),
		errors:  make(map[domain.MapTile]error),
	}
}

func (s *fakeSource) set(tile domain.MapTile, data *domain.TileData) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.tiles[tile.WithFrameNr(0)] = data
}

func (s *fakeSource) setString(tile domain.MapTile, payload string) {
	s.set(tile, domain.NewTileData([]byte(payload), domain.NoExpiry))
}

func (s *fakeSource) MinZoom() int                 { return s.minZoom }
func (s *fakeSource) MaxZoom() int                 { return s.maxZoom }
func (s *fakeSource) DataExtent() domain.MapBounds { return s.extent }

func (s *fakeSource) LoadTile(ctx context.Context, tile domain.MapTile) (*domain.TileData, error) {
	s.mutex.Lock()
	s.loads = append(s.loads, tile)
	entered, release := s.entered, s.release
	s.mutex.Unlock()

	if entered != nil {
		entered <- tile
		<-release
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err, ok := s.errors[tile.WithFrameNr(0)]; ok {
		return nil, err
	}
	return s.tiles[tile.WithFrameNr(0)], nil
}

func (s *fakeSource) AddChangeListener(listener domain.ChangeListener) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *fakeSource) RemoveChangeListener(listener domain.ChangeListener) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for i, other := range s.listeners {
		if other == listener {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *fakeSource) notify(remove bool) {
	s.mutex.Lock()
	listeners := append([]domain.ChangeListener(nil), s.listeners...)
	s.mutex.Unlock()
	for _, listener := range listeners {
		listener.OnTilesChanged(remove)
	}
}

func (s *fakeSource) loadCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.loads)
}

type decodeCall struct {
	tile       domain.MapTile
	sourceTile domain.MapTile
}

// stringDecoder decodes bytes into a string costing one byte per character
type stringDecoder struct {
	mutex sync.Mutex
	calls []decodeCall
}

func (d *stringDecoder) Decode(ctx context.Context, tile, sourceTile domain.MapTile, data []byte) (string, int64, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.calls = append(d.calls, decodeCall{tile: tile, sourceTile: sourceTile})
	if string(data) == "corrupt" {
		return "", 0, fmt.Errorf("corrupt tile %s", tile)
	}
	return string(data), int64(len(data)), nil
}

type submitted struct {
	task     workpool.Task
	priority int
}

// recordingPool queues tasks until the test runs them
type recordingPool struct {
	mutex     sync.Mutex
	rejecting bool
	queue     []submitted
	history   []submitted
}

func (p *recordingPool) Submit(task workpool.Task, priority int) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.rejecting || task.IsCanceled() {
		return false
	}
	p.queue = append(p.queue, submitted{task: task, priority: priority})
	p.history = append(p.history, submitted{task: task, priority: priority})
	return true
}

func (p *recordingPool) submissions() []submitted {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]submitted(nil), p.history...)
}

// runAll runs queued tasks, including those queued while running, on the calling goroutine
func (p *recordingPool) runAll(ctx context.Context) {
	for range 1000 {
		p.mutex.Lock()
		if len(p.queue) == 0 {
			p.mutex.Unlock()
			return
		}
		next := p.queue[0]
		p.queue = p.queue[1:]
		p.mutex.Unlock()

		next.task.Run(ctx)
	}
	panic("tasks keep being submitted")
}

type recordingRenderer struct {
	mutex sync.Mutex
	calls [][]DrawData[string]
}

func (r *recordingRenderer) RefreshTiles(drawData []DrawData[string]) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.calls = append(r.calls, append([]DrawData[string](nil), drawData...))
	return true
}

func (r *recordingRenderer) refreshes() [][]DrawData[string] {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([][]DrawData[string](nil), r.calls...)
}

func (r *recordingRenderer) last() []DrawData[string] {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

type countingRedraw struct {
	mutex sync.Mutex
	count int
}

func (c *countingRedraw) RequestRedraw() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.count++
}

func (c *countingRedraw) requests() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.count
}

type countingLoadListener struct {
	mutex      sync.Mutex
	visible    int
	preloading int
}

func (c *countingLoadListener) OnVisibleTilesLoaded() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.visible++
}

func (c *countingLoadListener) OnPreloadingTilesLoaded() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.preloading++
}

type layerFixture struct {
	layer    *Layer[string]
	source   *fakeSource
	decoder  *stringDecoder
	pool     *recordingPool
	renderer *recordingRenderer
	redraw   *countingRedraw
	time     *mockedTime
}

func newLayerFixture(t *testing.T, source *fakeSource) *layerFixture {
	t.Helper()

	f := &layerFixture{
		source:   source,
		decoder:  &stringDecoder{},
		pool:     &recordingPool{},
		renderer: &recordingRenderer{},
		redraw:   &countingRedraw{},
		time:     &mockedTime{current: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
	}

	layer, err := NewLayer[string](t.Context(), source, f.decoder, f.pool, f.time.Now)
	require.NoError(t, err)
	t.Cleanup(layer.Close)

	layer.SetRenderer(f.renderer)
	layer.SetRedrawRequester(f.redraw)
	f.layer = layer
	return f
}

// worldView shows the whole primary world at the given integer zoom
func worldView(zoom int) view.State {
	size := view.TileSizePixels << zoom
	return view.NewState(domain.MapPos{X: 0.5, Y: 0.5}, float64(zoom), size, size, 0)
}

func (f *layerFixture) put(tile domain.MapTile, payload string, preloading bool) {
	f.layer.mutex.Lock()
	defer f.layer.mutex.Unlock()
	f.layer.cacheLocked(preloading).Put(tile.ID(), payload, int64(len(payload))+ExtraTileFootprint)
}

func (f *layerFixture) cached(tile domain.MapTile, preloading bool) bool {
	f.layer.mutex.Lock()
	defer f.layer.mutex.Unlock()
	return f.layer.existsLocked(tile, preloading)
}

func (f *layerFixture) cacheLen(preloading bool) int {
	f.layer.mutex.Lock()
	defer f.layer.mutex.Unlock()
	return f.layer.cacheLocked(preloading).Len()
}

// resolve runs findTiles for visTiles directly and returns what it produced
func (f *layerFixture) resolve(visTiles []domain.MapTile, preloading bool) *resolution[string] {
	f.layer.mutex.Lock()
	defer f.layer.mutex.Unlock()
	r := &resolution[string]{}
	f.layer.findTilesLocked(r, visTiles, preloading)
	return r
}

func sourceTiles(drawData []DrawData[string]) []domain.MapTile {
	tiles := make([]domain.MapTile, 0, len(drawData))
	for _, d := range drawData {
		tiles = append(tiles, d.SourceTile)
	}
	return tiles
}

func submittedTiles(r *resolution[string]) []domain.MapTile {
	tiles := make([]domain.MapTile, 0, len(r.submissions))
	for _, s := range r.submissions {
		tiles = append(tiles, s.task.tile)
	}
	return tiles
}

func weakNil() weak.Pointer[Layer[string]] {
	return weak.Pointer[Layer[string]]{}
}
