package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"tracedb/internal/listener"
	"tracedb/internal/registry"
	"tracedb/internal/source"
	"tracedb/pkg/types"
)

// magic identifies a snapshot file so Import fails fast on garbage
// input instead of handing a codec nonsense bytes to decompress.
var magic = [4]byte{'T', 'R', 'D', 'B'}

const formatVersion = 1

// defaultImportBatchSize bounds how many events Import replays per
// beginEventBatch/endEventBatch cycle, mirroring the source adapters'
// own batch-size tuning rather than replaying the entire snapshot as
// one batch.
const defaultImportBatchSize = 1000

// Export serializes every event currently held by l, in global
// Position order, and compresses the result with codec. The output
// begins with a small header (magic, format version, codec name) so
// Import is self-describing and does not need to be told which codec
// produced a given file.
func Export(l *listener.Listener, codec Codec) ([]byte, error) {
	events := allEventsByPosition(l)

	var raw bytes.Buffer
	for _, e := range events {
		line, err := source.EncodeLine(e)
		if err != nil {
			return nil, err
		}
		raw.Write(line)
	}

	compressed, err := codec.Compress(raw.Bytes())
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.Write(magic[:])
	out.WriteByte(formatVersion)
	name := codec.Name()
	if len(name) > 255 {
		return nil, fmt.Errorf("snapshot: codec name %q too long", name)
	}
	out.WriteByte(byte(len(name)))
	out.WriteString(name)
	var countBuf [8]byte
	binary.BigEndian.PutUint64(countBuf[:], uint64(len(events)))
	out.Write(countBuf[:])
	out.Write(compressed)
	return out.Bytes(), nil
}

func allEventsByPosition(l *listener.Listener) []types.Event {
	var events []types.Event
	for _, zi := range l.ZoneIndices() {
		events = append(events, zi.AllEvents()...)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Position < events[j].Position })
	return events
}

// Import decompresses and replays a snapshot produced by Export,
// feeding events back into l through the normal ingest protocol in
// batches of defaultImportBatchSize. reg must be the same registry l
// was constructed with, so re-interned event types share ids with
// whatever the listener already knows about.
func Import(data []byte, l *listener.Listener, reg *registry.Registry) error {
	if len(data) < len(magic)+1+1+8 {
		return fmt.Errorf("snapshot: truncated header")
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return fmt.Errorf("snapshot: bad magic, not a snapshot file")
	}
	if version := data[4]; version != formatVersion {
		return fmt.Errorf("snapshot: unsupported format version %d", version)
	}
	nameLen := int(data[5])
	offset := 6 + nameLen
	if len(data) < offset+8 {
		return fmt.Errorf("snapshot: truncated header")
	}
	codecName := string(data[6:offset])
	count := binary.BigEndian.Uint64(data[offset : offset+8])
	payload := data[offset+8:]

	codec, err := CodecByName(codecName)
	if err != nil {
		return err
	}
	raw, err := codec.Decompress(payload)
	if err != nil {
		return err
	}

	ctx := types.ContextInfo{"source": "snapshot"}
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var pending []types.Event
	flush := func() {
		if len(pending) == 0 {
			return
		}
		l.BeginEventBatch(ctx)
		for _, e := range pending {
			l.TraceEvent(e)
		}
		l.EndEventBatch()
		pending = pending[:0]
	}

	var imported uint64
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		w, err := source.DecodeLine(line)
		if err != nil {
			return fmt.Errorf("snapshot: decode event %d: %w", imported, err)
		}
		pending = append(pending, source.DecodeEvent(reg, w))
		imported++
		if len(pending) >= defaultImportBatchSize {
			flush()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("snapshot: scan payload: %w", err)
	}
	flush()

	if imported != count {
		return fmt.Errorf("snapshot: header declared %d events, decoded %d", count, imported)
	}
	return nil
}
