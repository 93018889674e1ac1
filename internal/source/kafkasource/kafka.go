// Package kafkasource implements a trace-event source adapter that
// consumes a Kafka topic of newline-delimited JSON trace-event frames,
// grounded on the teacher's internal/sinks/kafka_sink.go (same Sarama
// configuration, batching, and SASL/SCRAM wiring) turned around from
// producer to consumer.
package kafkasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"tracedb/internal/listener"
	"tracedb/internal/registry"
	"tracedb/internal/source"
	"tracedb/pkg/types"
)

// Config configures the Kafka source adapter.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string

	SASLEnabled   bool
	SASLUser      string
	SASLPassword  string
	SASLMechanism string // "SCRAM-SHA-256" or "SCRAM-SHA-512"

	// BatchSize and FlushInterval bound how many decoded events
	// accumulate between beginEventBatch/endEventBatch pairs,
	// mirroring the teacher's producer-side batch/flush tuning.
	BatchSize     int
	FlushInterval time.Duration
}

// Adapter is a types.Source driving one listener from one Kafka
// consumer group.
type Adapter struct {
	cfg      Config
	logger   *logrus.Logger
	listener *listener.Listener
	reg      *registry.Registry
	group    sarama.ConsumerGroup

	batchMu sync.Mutex
	pending []types.Event

	wg sync.WaitGroup
}

func New(cfg Config, l *listener.Listener, reg *registry.Registry, logger *logrus.Logger) (*Adapter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafkasource: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafkasource: no topic configured")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	if cfg.SASLEnabled {
		saramaConfig.Net.SASL.Enable = true
		saramaConfig.Net.SASL.User = cfg.SASLUser
		saramaConfig.Net.SASL.Password = cfg.SASLPassword

		switch cfg.SASLMechanism {
		case "SCRAM-SHA-512":
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			saramaConfig.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &xdgSCRAMClient{HashGeneratorFcn: sha512Generator}
			}
		default:
			saramaConfig.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			saramaConfig.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &xdgSCRAMClient{HashGeneratorFcn: sha256Generator}
			}
		}
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("kafkasource: create consumer group: %w", err)
	}

	return &Adapter{cfg: cfg, logger: logger, listener: l, reg: reg, group: group}, nil
}

// Start blocks until ctx is cancelled, consuming cfg.Topic and
// flushing decoded events into batches on the listener.
func (a *Adapter) Start(ctx context.Context) error {
	a.listener.SourceAdded(0, types.ContextInfo{"topic": a.cfg.Topic, "group": a.cfg.GroupID})
	a.logger.WithFields(logrus.Fields{"topic": a.cfg.Topic, "brokers": a.cfg.Brokers}).Info("kafka source starting")

	a.wg.Add(2)
	go a.consumeLoop(ctx)
	go a.errorLoop(ctx)

	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.flush()
			a.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			a.flush()
		}
	}
}

func (a *Adapter) consumeLoop(ctx context.Context) {
	defer a.wg.Done()
	for {
		if err := a.group.Consume(ctx, []string{a.cfg.Topic}, &consumerHandler{a: a}); err != nil {
			if ctx.Err() != nil {
				return
			}
			a.listener.SourceError("kafka consume error", err.Error())
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (a *Adapter) errorLoop(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-a.group.Errors():
			if !ok {
				return
			}
			a.listener.SourceError("kafka consumer group error", err.Error())
		}
	}
}

func (a *Adapter) Stop() error {
	return a.group.Close()
}

func (a *Adapter) ingestLine(raw []byte) {
	w, err := source.DecodeLine(raw)
	if err != nil {
		a.listener.SourceError("kafka decode error", err.Error())
		return
	}
	e := source.DecodeEvent(a.reg, w)

	a.batchMu.Lock()
	a.pending = append(a.pending, e)
	shouldFlush := len(a.pending) >= a.cfg.BatchSize
	a.batchMu.Unlock()

	if shouldFlush {
		a.flush()
	}
}

func (a *Adapter) flush() {
	a.batchMu.Lock()
	if len(a.pending) == 0 {
		a.batchMu.Unlock()
		return
	}
	batch := a.pending
	a.pending = nil
	a.batchMu.Unlock()

	a.listener.BeginEventBatch(types.ContextInfo{"topic": a.cfg.Topic})
	for _, e := range batch {
		a.listener.TraceEvent(e)
	}
	a.listener.EndEventBatch()
}

// consumerHandler implements sarama.ConsumerGroupHandler, feeding
// every claimed message's value into the adapter's batch buffer and
// marking it consumed immediately (at-most-once from Kafka's
// perspective; the listener's batch boundary is this adapter's own
// durability seam, not Kafka's commit log).
type consumerHandler struct{ a *Adapter }

func (h *consumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		h.a.ingestLine(msg.Value)
		sess.MarkMessage(msg, "")
	}
	return nil
}
