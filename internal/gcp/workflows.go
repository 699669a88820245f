package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
)

// WorkflowLauncher starts executions of one Cloud Workflow.
type WorkflowLauncher struct {
	client *executions.Client
	parent string
}

// NewWorkflowLauncher targets projects/<project>/locations/<location>/workflows/<id>.
func NewWorkflowLauncher(ctx context.Context, projectID, location, workflowID string) (*WorkflowLauncher, error) {
	if projectID == "" || location == "" || workflowID == "" {
		return nil, fmt.Errorf("NewWorkflowLauncher: projectID, location and workflowID cannot be empty")
	}
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &WorkflowLauncher{
		client: client,
		parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID),
	}, nil
}

// StartExecution creates an execution with payload marshaled as its argument
// and returns the execution name.
func (w *WorkflowLauncher) StartExecution(ctx context.Context, payload any) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	exec, err := w.client.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent: w.parent,
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return exec.GetName(), nil
}

func (w *WorkflowLauncher) Close() error {
	return w.client.Close()
}
