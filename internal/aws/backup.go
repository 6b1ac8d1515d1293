package aws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-courier-orders/internal/orders"
)

// ErrMirrorIncomplete is returned when some records could not be mirrored.
var ErrMirrorIncomplete = errors.New("mirror incomplete")

// MirrorReport summarizes one mirror pass.
type MirrorReport struct {
	Put       int
	Unchanged int
	Deleted   int
	Throttled int
	Failed    int
}

// TableMirror copies order records into a DynamoDB table after each flush.
// The table is write-only from the service's point of view; nothing is ever
// read back. Records unchanged since the last successful put are skipped
// and orders that disappeared from the store are deleted.
type TableMirror struct {
	client    DynamoDBAPI
	tableName string
	logger    *slog.Logger

	mu     sync.Mutex
	synced map[string]orders.Record
	last   MirrorReport
}

// NewTableMirror returns a mirror writing to tableName.
func NewTableMirror(client DynamoDBAPI, tableName string, logger *slog.Logger) *TableMirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &TableMirror{
		client:    client,
		tableName: tableName,
		logger:    logger,
		synced:    make(map[string]orders.Record),
	}
}

// Mirror writes list to the table. A failure on one record does not stop
// the others; the pass returns ErrMirrorIncomplete if any failed.
func (m *TableMirror) Mirror(ctx context.Context, list []orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var report MirrorReport
	var lastErr error
	seen := make(map[string]struct{}, len(list))

	for _, o := range list {
		rec := orders.ToRecord(o)
		seen[rec.ID] = struct{}{}
		if prev, ok := m.synced[rec.ID]; ok && reflect.DeepEqual(prev, rec) {
			report.Unchanged++
			continue
		}
		if err := m.put(ctx, rec); err != nil {
			m.classify(&report, err)
			lastErr = err
			continue
		}
		m.synced[rec.ID] = rec
		report.Put++
	}

	for id := range m.synced {
		if _, ok := seen[id]; ok {
			continue
		}
		if err := m.delete(ctx, id); err != nil {
			m.classify(&report, err)
			lastErr = err
			continue
		}
		delete(m.synced, id)
		report.Deleted++
	}

	m.last = report
	if report.Failed+report.Throttled > 0 {
		m.logger.Warn("order mirror pass incomplete", "put", report.Put, "deleted", report.Deleted,
			"throttled", report.Throttled, "failed", report.Failed, "error", lastErr)
		return fmt.Errorf("%w: %d throttled, %d failed: %v", ErrMirrorIncomplete, report.Throttled, report.Failed, lastErr)
	}
	if report.Put+report.Deleted > 0 {
		m.logger.Debug("order mirror pass complete", "put", report.Put, "deleted", report.Deleted, "unchanged", report.Unchanged)
	}
	return nil
}

// LastReport returns the summary of the most recent pass.
func (m *TableMirror) LastReport() MirrorReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *TableMirror) put(ctx context.Context, rec orders.Record) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = m.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: sdkaws.String(m.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put item %s: %w", rec.ID, err)
	}
	return nil
}

func (m *TableMirror) delete(ctx context.Context, id string) error {
	_, err := m.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: sdkaws.String(m.tableName),
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	return nil
}

// classify counts err as throttled when DynamoDB asked us to back off and
// as failed otherwise.
func (m *TableMirror) classify(report *MirrorReport, err error) {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ProvisionedThroughputExceededException", "ThrottlingException", "RequestLimitExceeded":
			report.Throttled++
			return
		}
	}
	report.Failed++
}
