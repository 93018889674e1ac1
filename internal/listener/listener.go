// Package listener implements the single-writer ingest coordinator of
// spec.md §4.7: it is the only component that mutates the summary,
// zone, and event-name indices, and the only source of the outbound
// notification stream consumers subscribe to.
package listener

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	oteltrace "go.opentelemetry.io/otel/trace"

	"tracedb/internal/errs"
	"tracedb/internal/eventindex"
	"tracedb/internal/flowtracker"
	"tracedb/internal/frameindex"
	"tracedb/internal/metrics"
	"tracedb/internal/otelspan"
	"tracedb/internal/registry"
	"tracedb/internal/summaryindex"
	"tracedb/internal/zoneindex"
	"tracedb/pkg/types"
)

// target is the uniform fan-out contract the listener drives; the
// summary index, every zone index, and every event-name index all
// implement it.
type target = types.IngestTarget

// sourceRecord tracks one registered source adapter's timebase and
// context, grounded on the teacher's Monitor registration bookkeeping
// in pkg/types/interfaces.go.
type sourceRecord struct {
	timebase int64
	context  types.ContextInfo
}

// Listener is the database's single writer and outbound notification
// hub. All exported methods except the registered callbacks are only
// ever expected to run from one ingest goroutine, per spec.md §5.
type Listener struct {
	logger *logrus.Logger
	reg    *registry.Registry

	mu sync.RWMutex // guards read-facing accessors against concurrent Start/Stop of source adapters

	sources      []sourceRecord
	haveTimebase bool
	commonBase   int64

	summary *summaryindex.Index
	zones   []*zoneindex.Index
	zoneOf  map[types.ZoneIdentity]int
	events  map[string]*eventindex.Index
	flows   *flowtracker.Tracker

	inserting        bool
	targetList       []target
	batchNewZones    []types.ZoneIdentity
	batchInsertedAny bool
	batchStarted     time.Time
	batchEventCount  int

	totalEventCount uint64
	nextPosition    uint64 // next free position; 1 is the first assignable slot
	nextSeq         uint64 // session-wide ingest sequence handed out in TraceEvent; never reset

	callbacksMu sync.Mutex
	callbacks   []func(types.Notification)

	tracer   *otelspan.Manager
	batchSpan oteltrace.Span
}

// New creates an empty listener. The registry is shared with whatever
// source adapters construct events against it.
func New(reg *registry.Registry, logger *logrus.Logger) *Listener {
	return &Listener{
		logger:       logger,
		reg:          reg,
		summary:      summaryindex.New(6),
		zoneOf:       make(map[types.ZoneIdentity]int),
		events:       make(map[string]*eventindex.Index),
		flows:        flowtracker.New(reg, logger),
		nextPosition: 1,
	}
}

// SetTracer attaches the tracing manager that BeginEventBatch and
// EndEventBatch use to open and close one "ingest.batch" span per
// batch. Optional: a listener with no tracer set just skips spans.
func (l *Listener) SetTracer(m *otelspan.Manager) { l.tracer = m }

// OnNotification registers fn to receive every outbound notification.
// Multiple subscribers are supported (the teacher's hot-reload
// SetCallbacks fixes a single callback set; the listener instead keeps
// a slice, so several consumers can each observe INVALIDATED
// independently — see DESIGN.md).
func (l *Listener) OnNotification(fn func(types.Notification)) {
	l.callbacksMu.Lock()
	defer l.callbacksMu.Unlock()
	l.callbacks = append(l.callbacks, fn)
}

func (l *Listener) notify(n types.Notification) {
	l.callbacksMu.Lock()
	cbs := make([]func(types.Notification), len(l.callbacks))
	copy(cbs, l.callbacks)
	l.callbacksMu.Unlock()
	for _, cb := range cbs {
		cb(n)
	}
}

// SourceAdded registers a source's timebase and emits SOURCES_CHANGED
// then INVALIDATED, per spec.md §4.7.
func (l *Listener) SourceAdded(timebase int64, ctx types.ContextInfo) {
	l.mu.Lock()
	l.sources = append(l.sources, sourceRecord{timebase: timebase, context: ctx})
	if !l.haveTimebase || timebase < l.commonBase {
		l.commonBase = timebase
	}
	l.haveTimebase = true
	l.mu.Unlock()

	l.notify(types.Notification{Kind: types.SourcesChanged})
	l.notify(types.Notification{Kind: types.Invalidated})
}

// SourceError emits SOURCE_ERROR without disturbing ingest state.
func (l *Listener) SourceError(message, detail string) {
	l.notify(types.Notification{Kind: types.SourceError, Message: message, Detail: detail})
}

// BeginEventBatch asserts the listener is not already inserting,
// rebuilds the ordered target list, and enters every target's
// inserting phase.
func (l *Listener) BeginEventBatch(ctx types.ContextInfo) {
	if l.inserting {
		errs.Fatal(errs.CodeIngestProtocol, "listener", "BeginEventBatch", "nested beginEventBatch")
	}
	l.inserting = true
	l.batchNewZones = nil
	l.batchInsertedAny = false
	l.batchStarted = time.Now()
	l.batchEventCount = 0

	if l.tracer != nil {
		_, l.batchSpan = l.tracer.StartBatch(context.Background())
	}

	l.targetList = l.targetList[:0]
	l.targetList = append(l.targetList, l.summary)
	for _, z := range l.zones {
		l.targetList = append(l.targetList, z)
	}
	for _, name := range l.sortedEventIndexNames() {
		l.targetList = append(l.targetList, l.events[name])
	}

	for _, t := range l.targetList {
		t.BeginInserting()
	}
}

func (l *Listener) sortedEventIndexNames() []string {
	names := make([]string, 0, len(l.events))
	for name := range l.events {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TraceEvent fans e out to the current target list, creating a new
// zone index first if e is an unseen wtf.zone#create (spec.md §4.7).
// A new zone is appended to the end of the zones sub-range of the
// in-flight target list, never reordered, so it observes every event
// referencing it later in the same batch but never one that already
// ran through the fan-out.
func (l *Listener) TraceEvent(e types.Event) {
	if !l.inserting {
		errs.Fatal(errs.CodeIngestProtocol, "listener", "TraceEvent", "traceEvent outside a batch")
	}

	e.Seq = l.nextSeq
	l.nextSeq++
	l.batchEventCount++
	metrics.EventsIngestedTotal.Inc()

	if !e.IsInternal() && !e.IsScopeLeave() {
		l.totalEventCount++
	}
	l.batchInsertedAny = true

	if l.reg.ZoneCreate != nil && e.Type == l.reg.ZoneCreate {
		identity := zoneIdentityFromEvent(e)
		if _, exists := l.zoneOf[identity]; !exists {
			l.createZoneLocked(identity)
		}
	}

	l.flows.Observe(e)

	for _, t := range l.targetList {
		t.InsertEvent(e)
	}
}

func zoneIdentityFromEvent(e types.Event) types.ZoneIdentity {
	name, _ := e.Arg("name")
	typ, _ := e.Arg("type")
	loc, _ := e.Arg("location")
	return types.ZoneIdentity{Name: name.AsString(), Type: typ.AsString(), Location: loc.AsString()}
}

// createZoneLocked creates a new zone index, appends it to the zones
// list, inserts it at the end of the in-flight target list's zones
// sub-range (ahead of the event-name indices), and puts it into
// inserting mode so it can receive the rest of the current batch.
func (l *Listener) createZoneLocked(identity types.ZoneIdentity) *zoneindex.Index {
	zoneLabel := fmt.Sprintf("%x", identity.Fingerprint())
	zi := zoneindex.New(identity, l.logger, func(message, detail string) {
		metrics.SourceErrorsTotal.WithLabelValues(zoneLabel).Inc()
		if strings.Contains(message, "rebuild window") {
			metrics.ZoneRebuildWarningsTotal.Inc()
		}
		l.notify(types.Notification{Kind: types.SourceError, Message: message, Detail: detail})
	}, l.reg)
	idx := len(l.zones)
	l.zones = append(l.zones, zi)
	l.zoneOf[identity] = idx
	l.batchNewZones = append(l.batchNewZones, identity)

	zi.BeginInserting()
	// The summary index sits at 0 and the earlier zones at 1..idx, so
	// the new zone goes at idx+1, ahead of the event-name indices.
	at := idx + 1
	l.targetList = append(l.targetList, nil)
	copy(l.targetList[at+1:], l.targetList[at:])
	l.targetList[at] = zi
	return zi
}

// EndEventBatch ends every target's inserting phase in reverse order,
// renumbers positions across zones, and emits ZONES_ADDED/INVALIDATED
// as appropriate (spec.md §4.7).
func (l *Listener) EndEventBatch() {
	if !l.inserting {
		errs.Fatal(errs.CodeIngestProtocol, "listener", "EndEventBatch", "endEventBatch without beginEventBatch")
	}

	for i := len(l.targetList) - 1; i >= 0; i-- {
		l.targetList[i].EndInserting()
	}

	pos := uint64(1)
	for _, zi := range l.zones {
		pos = zi.Renumber(pos)
	}
	l.nextPosition = pos
	positionOf := l.positionLookup()
	for _, ei := range l.events {
		ei.Renumber(positionOf)
	}

	l.inserting = false
	l.targetList = l.targetList[:0]

	metrics.BatchDuration.Observe(time.Since(l.batchStarted).Seconds())
	metrics.BatchEventCount.Observe(float64(l.batchEventCount))
	metrics.ZoneCount.Set(float64(len(l.zones)))
	metrics.FlowCount.Set(float64(l.flows.Count()))
	var openScopes int
	for _, zi := range l.zones {
		openScopes += zi.OpenScopeCount()
	}
	metrics.OpenScopeCount.Set(float64(openScopes))

	if len(l.batchNewZones) > 0 {
		l.notify(types.Notification{Kind: types.ZonesAdded, Zones: append([]types.ZoneIdentity(nil), l.batchNewZones...)})
	}
	if l.batchInsertedAny {
		l.notify(types.Notification{Kind: types.Invalidated})
	}

	if l.batchSpan != nil {
		l.batchSpan.End()
		l.batchSpan = nil
	}
}

const (
	minInt64 = -1 << 63
	maxInt64 = 1<<63 - 1
)

// positionLookup builds a Seq -> Position map from the now-renumbered
// zone indices, used to refresh event-name indices (which hold their
// own copies of the same logical events, tagged with the same Seq at
// ingest time) without re-deriving the zone/enter/leave match.
func (l *Listener) positionLookup() func(types.Event) uint64 {
	bySeq := make(map[uint64]uint64)
	for _, zi := range l.zones {
		zi.ForEach(minInt64, maxInt64, func(e types.Event) bool {
			bySeq[e.Seq] = e.Position
			return true
		})
	}
	return func(e types.Event) uint64 {
		if pos, ok := bySeq[e.Seq]; ok {
			return pos
		}
		return e.Position
	}
}

// Sources returns the registered source timebases, in registration order.
func (l *Listener) Sources() []int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]int64, len(l.sources))
	for i, s := range l.sources {
		out[i] = s.timebase
	}
	return out
}

func (l *Listener) TotalEventCount() uint64 { return l.totalEventCount }

// Timebase returns the commonTimebase: the minimum timebase across
// every registered source.
func (l *Listener) Timebase() (int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.commonBase, l.haveTimebase
}

func (l *Listener) FirstEventTime() (int64, bool) { return l.summary.FirstEventTime() }
func (l *Listener) LastEventTime() (int64, bool)  { return l.summary.LastEventTime() }
func (l *Listener) SummaryIndex() *summaryindex.Index { return l.summary }

func (l *Listener) ZoneIndices() []*zoneindex.Index {
	out := make([]*zoneindex.Index, len(l.zones))
	copy(out, l.zones)
	return out
}

// FirstFrameIndex returns the frame index of the first-registered
// zone, if any zone exists.
func (l *Listener) FirstFrameIndex() (*frameindex.Index, bool) {
	if len(l.zones) == 0 {
		return nil, false
	}
	return l.zones[0].Frames(), true
}

func (l *Listener) FrameIndexForZone(identity types.ZoneIdentity) (*frameindex.Index, bool) {
	idx, ok := l.zoneOf[identity]
	if !ok {
		return nil, false
	}
	return l.zones[idx].Frames(), true
}

func (l *Listener) Flows() *flowtracker.Tracker { return l.flows }

// CreateEventIndex is idempotent: a second call with the same name
// returns the first index. A freshly created index is back-filled
// from every existing zone index's event list (spec.md §9 open
// question; see DESIGN.md for the chosen semantics). An index created
// while a batch is open also joins that batch's target list, so it
// observes the rest of the batch.
func (l *Listener) CreateEventIndex(name string) *eventindex.Index {
	if ix, ok := l.events[name]; ok {
		return ix
	}
	ix := eventindex.New(name)
	var backfill []types.Event
	for _, zi := range l.zones {
		for _, e := range zi.AllEvents() {
			if e.Type != nil && e.Type.Name == name {
				backfill = append(backfill, e)
			}
		}
	}
	if len(backfill) > 0 {
		ix.Backfill(backfill)
	}
	l.events[name] = ix
	if l.inserting {
		ix.BeginInserting()
		l.targetList = append(l.targetList, ix)
	}
	return ix
}

func (l *Listener) GetEventIndex(name string) (*eventindex.Index, bool) {
	ix, ok := l.events[name]
	return ix, ok
}

func (l *Listener) String() string {
	return fmt.Sprintf("listener{zones=%d events=%d total=%d}", len(l.zones), len(l.events), l.totalEventCount)
}
