package batchbackend

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	batchtypes "github.com/aws/aws-sdk-go-v2/service/batch/types"
)

// AWSBatch submits jobs to an AWS Batch job queue, one container
// overriding the envelope as environment variables.
type AWSBatch struct {
	Client         *batch.Client
	JobQueue       string
	JobDefinition  string
}

func NewAWSBatch(client *batch.Client, jobQueue, jobDefinition string) *AWSBatch {
	return &AWSBatch{Client: client, JobQueue: jobQueue, JobDefinition: jobDefinition}
}

func (b *AWSBatch) Submit(ctx context.Context, in SubmitInput) (string, error) {
	env := make([]batchtypes.KeyValuePair, 0, len(in.Envelope))
	for k, v := range in.Envelope {
		env = append(env, batchtypes.KeyValuePair{Name: aws.String(k), Value: aws.String(v)})
	}
	out, err := b.Client.SubmitJob(ctx, &batch.SubmitJobInput{
		JobName:       aws.String(in.JobName),
		JobQueue:      aws.String(b.JobQueue),
		JobDefinition: aws.String(b.JobDefinition),
		Timeout:       &batchtypes.JobTimeout{AttemptDurationSeconds: aws.Int32(in.TimeoutSecs)},
		ContainerOverrides: &batchtypes.ContainerOverrides{
			Environment: env,
			Memory:      aws.Int32(in.MemoryMiB),
			Vcpus:       aws.Int32(int32(in.VCPUs)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("batchbackend: aws batch submit_job: %w", err)
	}
	return aws.ToString(out.JobId), nil
}

func (b *AWSBatch) Describe(ctx context.Context, backendJobID string) (Status, error) {
	out, err := b.Client.DescribeJobs(ctx, &batch.DescribeJobsInput{Jobs: []string{backendJobID}})
	if err != nil {
		return "", fmt.Errorf("batchbackend: aws batch describe_jobs: %w", err)
	}
	if len(out.Jobs) == 0 {
		return "", fmt.Errorf("batchbackend: job %s not found", backendJobID)
	}
	return mapAWSBatchStatus(out.Jobs[0].Status), nil
}

func (b *AWSBatch) Terminate(ctx context.Context, backendJobID, reason string) error {
	_, err := b.Client.TerminateJob(ctx, &batch.TerminateJobInput{
		JobId:  aws.String(backendJobID),
		Reason: aws.String(reason),
	})
	if err != nil {
		return fmt.Errorf("batchbackend: aws batch terminate_job: %w", err)
	}
	return nil
}

func mapAWSBatchStatus(s batchtypes.JobStatus) Status {
	switch s {
	case batchtypes.JobStatusSubmitted, batchtypes.JobStatusPending:
		return StatusPending
	case batchtypes.JobStatusRunnable:
		return StatusRunnable
	case batchtypes.JobStatusStarting:
		return StatusStarting
	case batchtypes.JobStatusRunning:
		return StatusRunning
	case batchtypes.JobStatusSucceeded:
		return StatusSucceeded
	case batchtypes.JobStatusFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}
