package aws

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// mockDynamo is a minimal in-memory DynamoDB supporting PutItem and DeleteItem.
type mockDynamo struct {
	mu      sync.Mutex
	table   map[string]map[string]types.AttributeValue
	puts    int
	deletes int
	failFor map[string]error // order_id -> error returned by PutItem
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		table:   make(map[string]map[string]types.AttributeValue),
		failFor: make(map[string]error),
	}
}

func (m *mockDynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := in.Item["order_id"].(*types.AttributeValueMemberS).Value
	if err, ok := m.failFor[key]; ok {
		return nil, err
	}
	m.table[key] = in.Item
	m.puts++
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := in.Key["order_id"].(*types.AttributeValueMemberS).Value
	delete(m.table, key)
	m.deletes++
	return &dyn.DeleteItemOutput{}, nil
}

// mockSQS records every message sent.
type mockSQS struct {
	mu   sync.Mutex
	sent []*sqs.SendMessageInput
	err  error
}

func (m *mockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.sent = append(m.sent, in)
	return &sqs.SendMessageOutput{}, nil
}

func (m *mockSQS) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// mockCloudWatch records PutMetricData inputs.
type mockCloudWatch struct {
	mu     sync.Mutex
	inputs []*cloudwatch.PutMetricDataInput
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}
