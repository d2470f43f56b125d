package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"mealsense"
)

// S3FeedbackStore implements FeedbackStore backed by S3, one object per record.

type S3FeedbackStore struct {
	bucket string
	prefix string
	s3     *s3.Client
}

func NewS3FeedbackStore(s3Client *s3.Client, bucket, prefix string) *S3FeedbackStore {
	return &S3FeedbackStore{
		bucket: bucket,
		prefix: prefix,
		s3:     s3Client,
	}
}

func (s *S3FeedbackStore) Save(ctx context.Context, feedbackID string, fb mealsense.UserFeedback) error {
	body, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback record: %w", err)
	}

	key := path.Join(s.prefix, feedbackID+".json")
	_, err = s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put feedback object to S3: %w", err)
	}
	return nil
}
