// Package mcpserver exposes job submission, listing, and cancellation
// as MCP tools: one register* func per concern, a thin handler that
// pulls typed arguments out of request.GetArguments(), and
// mcp.NewToolResultError
// for domain failures rather than a Go error (which would surface as a
// protocol-level failure instead of a tool result the model can read).
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/riftscan/sentinel/internal/apierr"
	"github.com/riftscan/sentinel/internal/submission"
)

// ServerContext bundles the dependencies every tool handler needs.
type ServerContext struct {
	Controller *submission.Controller
	Log        *zap.Logger
}

// New builds the MCP server and registers every tool this module
// exposes. Callers serve it over stdio (cmd/mcp.go).
func New(sc *ServerContext) *mcpsrv.MCPServer {
	s := mcpsrv.NewMCPServer("sentinel", "1.0.0", mcpsrv.WithToolCapabilities(true))
	registerJobTools(s, sc)
	return s
}

func registerJobTools(s *mcpsrv.MCPServer, sc *ServerContext) {
	submitTool := mcp.NewTool("submit_scan",
		mcp.WithDescription("Submit a standard cloud security scan job for a tenant"),
		mcp.WithString("tenant_name", mcp.Required(), mcp.Description("Tenant to scan")),
		mcp.WithString("owner", mcp.Required(), mcp.Description("Requester identity recorded on the job")),
		mcp.WithString("regions", mcp.Description("Comma-separated list of regions to scan (optional, defaults to all active regions)")),
		mcp.WithString("rulesets", mcp.Description("Comma-separated rule set names (optional, defaults to the tenant's active rule sets)")),
	)
	s.AddTool(submitTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleSubmitScan(ctx, req, sc)
	})

	listTool := mcp.NewTool("list_scans",
		mcp.WithDescription("List cloud security scan jobs for a customer"),
		mcp.WithString("customer", mcp.Required(), mcp.Description("Customer the caller is scoped to")),
		mcp.WithString("tenants", mcp.Description("Comma-separated tenant names to filter by (optional)")),
	)
	s.AddTool(listTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListScans(ctx, req, sc)
	})

	cancelTool := mcp.NewTool("cancel_scan",
		mcp.WithDescription("Terminate a running or queued scan job"),
		mcp.WithString("customer", mcp.Required(), mcp.Description("Customer the caller is scoped to")),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job to terminate")),
		mcp.WithString("requested_by", mcp.Description("Identity requesting the termination, recorded on the job's failure reason")),
	)
	s.AddTool(cancelTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleCancelScan(ctx, req, sc)
	})
}

func handleSubmitScan(ctx context.Context, req mcp.CallToolRequest, sc *ServerContext) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	tenantName, _ := args["tenant_name"].(string)
	owner, _ := args["owner"].(string)
	regionsStr, _ := args["regions"].(string)
	rulesetsStr, _ := args["rulesets"].(string)

	job, err := sc.Controller.SubmitStandard(ctx, submission.StandardRequest{
		TenantName:   tenantName,
		Owner:        owner,
		Regions:      splitCSVOrNil(regionsStr),
		RuleSetNames: splitCSVOrNil(rulesetsStr),
	})
	if err != nil {
		return mcp.NewToolResultError(toolError(err, "submit scan")), nil
	}
	return jsonResult(job)
}

func handleListScans(ctx context.Context, req mcp.CallToolRequest, sc *ServerContext) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	customer, _ := args["customer"].(string)
	tenantsStr, _ := args["tenants"].(string)

	jobs, err := sc.Controller.List(ctx, customer, splitCSVOrNil(tenantsStr))
	if err != nil {
		return mcp.NewToolResultError(toolError(err, "list scans")), nil
	}
	return jsonResult(jobs)
}

func handleCancelScan(ctx context.Context, req mcp.CallToolRequest, sc *ServerContext) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	customer, _ := args["customer"].(string)
	jobID, _ := args["job_id"].(string)
	requestedBy, _ := args["requested_by"].(string)

	if err := sc.Controller.Terminate(ctx, customer, nil, jobID, requestedBy); err != nil {
		return mcp.NewToolResultError(toolError(err, "cancel scan")), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("job %s terminated", jobID)), nil
}

func toolError(err error, action string) string {
	if apiErr, ok := apierr.As(err); ok {
		return fmt.Sprintf("%s failed: %s", action, apiErr.Message)
	}
	return fmt.Sprintf("%s failed: %v", action, err)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func splitCSVOrNil(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
