// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package db

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodbstreams"
)

const streamPollPeriod = time.Second

// StreamPoller tails the Scores table's DynamoDB stream and hands each
// batch of records to a handler as ChangeEvents. A handler error is the
// host-retry boundary: the batch is retried on the next poll rather than
// advancing past it.
type StreamPoller struct {
	svc       *dynamodbstreams.DynamoDBStreams
	streamArn string
	handler   func(context.Context, []ChangeEvent) error
	log       *slog.Logger
}

func NewStreamPoller(session *session.Session, streamArn string, handler func(context.Context, []ChangeEvent) error, log *slog.Logger) *StreamPoller {
	return &StreamPoller{
		svc:       dynamodbstreams.New(session),
		streamArn: streamArn,
		handler:   handler,
		log:       log,
	}
}

// Run polls until ctx is done. Shards are consumed sequentially from
// LATEST; this backend needs liveness, not replay.
func (p *StreamPoller) Run(ctx context.Context) error {
	desc, err := p.svc.DescribeStreamWithContext(ctx, &dynamodbstreams.DescribeStreamInput{
		StreamArn: aws.String(p.streamArn),
	})
	if err != nil {
		return err
	}

	iterators := make([]*string, 0, len(desc.StreamDescription.Shards))
	for _, shard := range desc.StreamDescription.Shards {
		out, err := p.svc.GetShardIteratorWithContext(ctx, &dynamodbstreams.GetShardIteratorInput{
			StreamArn:         aws.String(p.streamArn),
			ShardId:           shard.ShardId,
			ShardIteratorType: aws.String(dynamodbstreams.ShardIteratorTypeLatest),
		})
		if err != nil {
			return err
		}
		iterators = append(iterators, out.ShardIterator)
	}

	ticker := time.NewTicker(streamPollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for i, iterator := range iterators {
			if iterator == nil {
				continue
			}

			out, err := p.svc.GetRecordsWithContext(ctx, &dynamodbstreams.GetRecordsInput{
				ShardIterator: iterator,
			})
			if err != nil {
				p.log.Error("stream read failed", "error", err)
				continue
			}

			if len(out.Records) > 0 {
				events := make([]ChangeEvent, 0, len(out.Records))
				for _, record := range out.Records {
					event := ChangeEvent{EventName: EventName(aws.StringValue(record.EventName))}
					if record.Dynamodb != nil && record.Dynamodb.NewImage != nil {
						if err := dynamodbattribute.UnmarshalMap(record.Dynamodb.NewImage, &event.Record); err != nil {
							p.log.Warn("stream record decode failed", "error", err)
						}
					}
					events = append(events, event)
				}

				if err := p.handler(ctx, events); err != nil {
					// Batch-level failure: keep the iterator so the batch
					// is retried, mirroring the host platform's retry.
					p.log.Error("stream batch failed", "error", err, "records", len(events))
					continue
				}
			}

			iterators[i] = out.NextShardIterator
		}
	}
}
