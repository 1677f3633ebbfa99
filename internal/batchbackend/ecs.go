package batchbackend

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

// ECSRunTask is an alternate batch backend for deployments that run the
// worker as a one-off Fargate task instead of an AWS Batch job,
// selected by configuration (spec's DOMAIN STACK: "alternate RunTask-
// based batch backend").
type ECSRunTask struct {
	Client         *ecs.Client
	Cluster        string
	TaskDefinition string
	ContainerName  string
	Subnets        []string
	SecurityGroups []string
}

func (e *ECSRunTask) Submit(ctx context.Context, in SubmitInput) (string, error) {
	env := make([]ecstypes.KeyValuePair, 0, len(in.Envelope))
	for k, v := range in.Envelope {
		env = append(env, ecstypes.KeyValuePair{Name: aws.String(k), Value: aws.String(v)})
	}
	out, err := e.Client.RunTask(ctx, &ecs.RunTaskInput{
		Cluster:        aws.String(e.Cluster),
		TaskDefinition: aws.String(e.TaskDefinition),
		LaunchType:     ecstypes.LaunchTypeFargate,
		NetworkConfiguration: &ecstypes.NetworkConfiguration{
			AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
				Subnets:        e.Subnets,
				SecurityGroups: e.SecurityGroups,
				AssignPublicIp: ecstypes.AssignPublicIpDisabled,
			},
		},
		Overrides: &ecstypes.TaskOverride{
			ContainerOverrides: []ecstypes.ContainerOverride{
				{Name: aws.String(e.ContainerName), Environment: env},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("batchbackend: ecs run_task: %w", err)
	}
	if len(out.Tasks) == 0 {
		return "", fmt.Errorf("batchbackend: ecs run_task returned no tasks")
	}
	return aws.ToString(out.Tasks[0].TaskArn), nil
}

func (e *ECSRunTask) Describe(ctx context.Context, backendJobID string) (Status, error) {
	out, err := e.Client.DescribeTasks(ctx, &ecs.DescribeTasksInput{
		Cluster: aws.String(e.Cluster),
		Tasks:   []string{backendJobID},
	})
	if err != nil {
		return "", fmt.Errorf("batchbackend: ecs describe_tasks: %w", err)
	}
	if len(out.Tasks) == 0 {
		return "", fmt.Errorf("batchbackend: task %s not found", backendJobID)
	}
	return mapECSStatus(out.Tasks[0]), nil
}

func (e *ECSRunTask) Terminate(ctx context.Context, backendJobID, reason string) error {
	_, err := e.Client.StopTask(ctx, &ecs.StopTaskInput{
		Cluster: aws.String(e.Cluster),
		Task:    aws.String(backendJobID),
		Reason:  aws.String(reason),
	})
	if err != nil {
		return fmt.Errorf("batchbackend: ecs stop_task: %w", err)
	}
	return nil
}

func mapECSStatus(task ecstypes.Task) Status {
	switch aws.ToString(task.LastStatus) {
	case "PROVISIONING", "PENDING":
		return StatusPending
	case "ACTIVATING":
		return StatusStarting
	case "RUNNING":
		return StatusRunning
	case "DEPROVISIONING", "STOPPING":
		return StatusRunning
	case "STOPPED":
		if task.StopCode == ecstypes.TaskStopCodeEssentialContainerExited {
			for _, c := range task.Containers {
				if aws.ToInt32(c.ExitCode) != 0 {
					return StatusFailed
				}
			}
			return StatusSucceeded
		}
		return StatusFailed
	default:
		return StatusPending
	}
}
