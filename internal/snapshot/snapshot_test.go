package snapshot

import (
	"testing"

	"github.com/sirupsen/logrus"

	"tracedb/internal/listener"
	"tracedb/internal/registry"
	"tracedb/internal/source"
	"tracedb/pkg/types"
)

func seedListener(t *testing.T) (*listener.Listener, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	l := listener.New(reg, logrus.New())

	identity := types.ZoneIdentity{Name: "worker-1", Type: "goroutine", Location: "host-a"}
	l.BeginEventBatch(types.ContextInfo{"source": "test"})
	l.TraceEvent(source.ZoneCreateEvent(reg, identity, 0))
	l.TraceEvent(source.DecodeEvent(reg, source.WireEvent{
		Time: 10, Type: "wtf.scope#enter",
		Args: map[string]interface{}{"name": "render"},
	}))
	l.TraceEvent(source.DecodeEvent(reg, source.WireEvent{
		Time: 20, Type: "wtf.scope#leave",
	}))
	l.EndEventBatch()
	return l, reg
}

func TestExportImport_ZstdRoundTrip(t *testing.T) {
	l, reg := seedListener(t)
	before := l.TotalEventCount()

	data, err := Export(l, zstdCodec{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	restored := listener.New(reg, logrus.New())
	if err := Import(data, restored, reg); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if restored.TotalEventCount() != before {
		t.Fatalf("restored total = %d, want %d", restored.TotalEventCount(), before)
	}
}

func TestExportImport_AllCodecsRoundTrip(t *testing.T) {
	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			l, reg := seedListener(t)
			data, err := Export(l, codec)
			if err != nil {
				t.Fatalf("Export(%s): %v", name, err)
			}
			restored := listener.New(reg, logrus.New())
			if err := Import(data, restored, reg); err != nil {
				t.Fatalf("Import(%s): %v", name, err)
			}
			if restored.TotalEventCount() != l.TotalEventCount() {
				t.Fatalf("%s: restored total = %d, want %d", name, restored.TotalEventCount(), l.TotalEventCount())
			}
		})
	}
}

func TestImport_RejectsBadMagic(t *testing.T) {
	reg := registry.New()
	l := listener.New(reg, logrus.New())
	if err := Import([]byte("not a snapshot at all"), l, reg); err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestImport_RejectsUnknownCodec(t *testing.T) {
	l, _ := seedListener(t)
	data, err := Export(l, noneCodec{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	data[5] = 7 // corrupt the codec-name length so the name decodes to garbage
	reg := registry.New()
	restored := listener.New(reg, logrus.New())
	if err := Import(data, restored, reg); err == nil {
		t.Fatalf("expected error for corrupted codec name")
	}
}
