package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"planai-api/domain"
	"planai-api/store"
)

// Source reads the current state of an entity at push time. Mirroring is
// last-write-wins: whatever the entity looks like when the push happens is
// what lands remotely.
type Source interface {
	ProjectByID(id string) (domain.Project, bool)
	StepByID(projectID, stepID string) (domain.Step, bool)
	LearningByID(id string) (domain.Learning, bool)
	CodeIssueByID(id string) (domain.CodeIssue, bool)
	TaskByID(id string) (domain.Task, bool)
	VoiceNoteByID(id string) (domain.VoiceNote, bool)
}

type tableClient interface {
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
}

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Remote mirrors entity state to a cloud table and announces each change
// on a queue so other devices can converge.
type Remote struct {
	table  tableClient
	queue  queueClient
	source Source
}

// NewRemote creates a Remote from the given connection string.
func NewRemote(connStr, tableName, queueName string, source Source) (*Remote, error) {
	if source == nil {
		return nil, errors.New("storage: source is required")
	}
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Remote{table: svc.NewClient(tableName), queue: q, source: source}, nil
}

// entityRow is the generic table row: one entity per row, payload as JSON.
type entityRow struct {
	aztables.Entity
	Kind string `json:"Kind"`
	Data string `json:"Data"`
}

// Push implements mirror.Remote: upsert or delete the entity row, then
// announce the change on the queue.
func (r *Remote) Push(ctx context.Context, ch store.Change) error {
	if ch.Op == "deleted" {
		if _, err := r.table.DeleteEntity(ctx, ch.Entity, ch.EntityID, nil); err != nil && !isNotFound(err) {
			return err
		}
	} else {
		payload, ok, err := r.resolve(ch)
		if err != nil {
			return err
		}
		if ok {
			row := entityRow{
				Entity: aztables.Entity{PartitionKey: ch.Entity, RowKey: ch.EntityID},
				Kind:   ch.Entity,
				Data:   string(payload),
			}
			data, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if _, err := r.table.UpsertEntity(ctx, data, nil); err != nil {
				return err
			}
		}
		// Entity already gone locally: nothing to upsert, the follow-up
		// delete change will clean the row.
	}

	msg, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	if _, err := r.queue.EnqueueMessage(ctx, string(msg), nil); err != nil {
		return err
	}
	return nil
}

func (r *Remote) resolve(ch store.Change) ([]byte, bool, error) {
	var (
		v  any
		ok bool
	)
	switch ch.Entity {
	case "project":
		v, ok = get(r.source.ProjectByID(ch.EntityID))
	case "step":
		v, ok = get(r.source.StepByID(ch.ParentID, ch.EntityID))
	case "learning":
		v, ok = get(r.source.LearningByID(ch.EntityID))
	case "code-issue":
		v, ok = get(r.source.CodeIssueByID(ch.EntityID))
	case "task":
		v, ok = get(r.source.TaskByID(ch.EntityID))
	case "voice-note":
		v, ok = get(r.source.VoiceNoteByID(ch.EntityID))
	default:
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func get[T any](v T, ok bool) (any, bool) {
	return v, ok
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
