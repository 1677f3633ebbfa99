package siem

import (
	"context"
	"encoding/json"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// LambdaSink is a UDMSink implementation that hands the converted
// records to a downstream findings-ingest Lambda instead of a Chronicle
// endpoint, the delivery path the event-driven multi-account flow uses
// when the SIEM lives behind the customer's own ingestion function.
// Invocation is async (Event type): the sink only confirms the queue
// accepted the payload, it never waits for ingestion.
type LambdaSink struct {
	Client       *lambda.Client
	FunctionName string
}

func (s *LambdaSink) Submit(ctx context.Context, credentialsKey string, payload any) error {
	body, err := json.Marshal(struct {
		CredentialsKey string `json:"credentials_key,omitempty"`
		Records        any    `json:"records"`
	}{credentialsKey, payload})
	if err != nil {
		return fmt.Errorf("siem: encode lambda ingest payload: %w", err)
	}

	out, err := s.Client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   awssdk.String(s.FunctionName),
		InvocationType: types.InvocationTypeEvent,
		Payload:        body,
	})
	if err != nil {
		return fmt.Errorf("siem: invoke ingest function %s: %w", s.FunctionName, err)
	}
	if out.StatusCode >= 400 {
		return fmt.Errorf("siem: ingest function %s returned status %d", s.FunctionName, out.StatusCode)
	}
	return nil
}
