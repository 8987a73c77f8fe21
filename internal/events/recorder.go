package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blackjack-auth/internal/bucketing"
	"blackjack-auth/internal/client"
	"blackjack-auth/internal/config"
	"blackjack-auth/internal/models"
	"blackjack-auth/internal/util"
)

const insertEventQuery = `
    INSERT INTO login_events (
        event_bucket, account_key, role, event_date, event_time, event_type, details
    ) VALUES (?, ?, ?, ?, ?, ?, ?)`

// Recorder fans security events out to Kafka, ClickHouse, and Elasticsearch.
// Every sink is best effort: a dead pipeline must never block or fail a
// login. Sinks are nil when their backend was unavailable at startup.
type Recorder struct {
	producer   *client.KafkaProducer
	clickhouse *client.ClickHouseClient
	es         *client.ESClient
	buckets    *bucketing.Manager
	auditIndex string

	now func() time.Time
}

func NewRecorder(
	cfg *config.Config,
	producer *client.KafkaProducer,
	clickhouse *client.ClickHouseClient,
	es *client.ESClient,
	buckets *bucketing.Manager,
) *Recorder {
	return &Recorder{
		producer:   producer,
		clickhouse: clickhouse,
		es:         es,
		buckets:    buckets,
		auditIndex: cfg.Elasticsearch.AuditIndex,
		now:        time.Now,
	}
}

// Record builds the event and dispatches it in the background. The caller's
// context is not reused so an aborted request still gets its audit trail.
func (r *Recorder) Record(accountKey, role, eventType, details string) {
	now := r.now().UTC()
	event := models.SecurityEvent{
		EventBucket: r.buckets.EventBucket(accountKey),
		AccountKey:  accountKey,
		Role:        role,
		EventDate:   r.buckets.DateBucket(now),
		EventTime:   now,
		EventType:   eventType,
		Details:     details,
	}

	go r.dispatch(event)
}

func (r *Recorder) dispatch(event models.SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(event)
	if err != nil {
		util.Error("Failed to encode security event", zap.Error(err))
		return
	}

	if r.producer != nil {
		if err := r.producer.Publish(ctx, event.AccountKey, payload); err != nil {
			util.Warn("Failed to publish security event to Kafka",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		}
	}

	if r.clickhouse != nil {
		err := r.clickhouse.Exec(ctx, insertEventQuery,
			event.EventBucket, event.AccountKey, event.Role,
			event.EventDate, event.EventTime, event.EventType, event.Details)
		if err != nil {
			util.Warn("Failed to insert security event into ClickHouse",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		}
	}

	if r.es != nil {
		res, err := r.es.IndexDocument(ctx, r.auditIndex, uuid.New().String(), event)
		if err != nil {
			util.Warn("Failed to index security event",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		} else {
			res.Body.Close()
		}
	}
}

// ErrAuditUnavailable is returned when the audit index has no backing client.
var ErrAuditUnavailable = errors.New("audit index unavailable")

// RecentEvents queries the audit index for an account's newest events.
func (r *Recorder) RecentEvents(ctx context.Context, accountKey string, limit int) ([]models.SecurityEvent, error) {
	if r.es == nil {
		return nil, ErrAuditUnavailable
	}
	if limit <= 0 {
		limit = 20
	}

	query := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"account_key.keyword": accountKey,
			},
		},
		"sort": []map[string]interface{}{
			{"event_time": map[string]string{"order": "desc"}},
		},
	}

	res, err := r.es.Search(ctx, r.auditIndex, query)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("audit search failed: %s", res.String())
	}

	var body struct {
		Hits struct {
			Hits []struct {
				Source models.SecurityEvent `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode audit search response: %w", err)
	}

	events := make([]models.SecurityEvent, 0, len(body.Hits.Hits))
	for _, hit := range body.Hits.Hits {
		events = append(events, hit.Source)
	}
	return events, nil
}
