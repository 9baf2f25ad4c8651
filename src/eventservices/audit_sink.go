package eventservices

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
	"github.com/quantfire/signal-dispatch/src/utils"
)

const (
	AdmissionsStream = "admissions"
	FiresStream      = "fires"
	OutcomesStream   = "outcomes"
)

type auditItem struct {
	record eventmodels.OutcomeRecord
	meta   []byte
}

// EsdbAuditSink appends records to append-only EventStoreDB streams, one per
// record kind. Appends are queued and drained by a background goroutine so
// the hot path never blocks on the store.
type EsdbAuditSink struct {
	wg    *sync.WaitGroup
	db    *esdb.Client
	queue *eventmodels.FIFOQueue[auditItem]
}

func NewEsdbAuditSink(wg *sync.WaitGroup, url string) (*EsdbAuditSink, error) {
	settings, err := esdb.ParseConnectionString(url)
	if err != nil {
		return nil, fmt.Errorf("NewEsdbAuditSink: failed to parse connection string: %w", err)
	}

	db, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("NewEsdbAuditSink: failed to create client: %w", err)
	}

	return &EsdbAuditSink{
		wg:    wg,
		db:    db,
		queue: eventmodels.NewFIFOQueue[auditItem]("EsdbAuditSink", 999),
	}, nil
}

func (s *EsdbAuditSink) Record(ctx context.Context, record eventmodels.OutcomeRecord) {
	var meta []byte
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		if bytes, err := utils.SerializeTraceContext(sc); err == nil {
			meta = bytes
		}
	}

	s.queue.Enqueue(auditItem{record: record, meta: meta})
}

func streamFor(kind eventmodels.OutcomeKind) string {
	switch kind {
	case eventmodels.OutcomeKindAdmission:
		return AdmissionsStream
	case eventmodels.OutcomeKindFire:
		return FiresStream
	default:
		return OutcomesStream
	}
}

func (s *EsdbAuditSink) append(ctx context.Context, item auditItem) error {
	data, err := json.Marshal(item.record)
	if err != nil {
		return fmt.Errorf("EsdbAuditSink:append(): failed to marshal record: %w", err)
	}

	eventData := esdb.EventData{
		ContentType: esdb.ContentTypeJson,
		EventType:   string(item.record.Kind),
		Data:        data,
	}

	if item.meta != nil {
		eventData.Metadata = item.meta
	}

	if _, err := s.db.AppendToStream(ctx, streamFor(item.record.Kind), esdb.AppendToStreamOptions{}, eventData); err != nil {
		return fmt.Errorf("EsdbAuditSink:append(): failed to append to stream: %w", err)
	}

	return nil
}

// flush drains whatever is still queued at shutdown. The run context is
// already cancelled by then, so appends get a fresh short-lived one.
func (s *EsdbAuditSink) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		item, ok := s.queue.Dequeue()
		if !ok {
			return
		}

		if err := s.append(ctx, item); err != nil {
			log.Errorf("EsdbAuditSink: %v", err)
		}
	}
}

func (s *EsdbAuditSink) Start(ctx context.Context) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		for {
			select {
			case item := <-s.queue.C():
				if err := s.append(ctx, item); err != nil {
					// Audit is best effort: a failed append never blocks
					// or fails the originating request.
					log.Errorf("EsdbAuditSink: %v", err)
				}

			case <-ctx.Done():
				log.Info("stopping EsdbAuditSink consumer")
				s.flush()
				return
			}
		}
	}()
}

// ReadOutcomes replays an audit stream from the start, for export tooling.
func (s *EsdbAuditSink) ReadOutcomes(ctx context.Context, stream string, maxCount uint64) ([]eventmodels.OutcomeRecord, error) {
	return ReadOutcomeStream(ctx, s.db, stream, maxCount)
}

func ReadOutcomeStream(ctx context.Context, db *esdb.Client, stream string, maxCount uint64) ([]eventmodels.OutcomeRecord, error) {
	readStream, err := db.ReadStream(ctx, stream, esdb.ReadStreamOptions{}, maxCount)
	if err != nil {
		return nil, fmt.Errorf("ReadOutcomeStream: failed to read stream %v: %w", stream, err)
	}
	defer readStream.Close()

	var records []eventmodels.OutcomeRecord
	for {
		event, err := readStream.Recv()
		if err != nil {
			break
		}

		var record eventmodels.OutcomeRecord
		if err := json.Unmarshal(event.OriginalEvent().Data, &record); err != nil {
			log.Warnf("ReadOutcomeStream: skipping malformed event: %v", err)
			continue
		}

		records = append(records, record)
	}

	return records, nil
}
