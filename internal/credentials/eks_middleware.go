package credentials

import (
	"context"

	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// addEKSClusterIDHeader stamps the x-k8s-aws-id header the EKS control
// plane's IAM authenticator webhook requires on the presigned
// GetCallerIdentity URL.
func addEKSClusterIDHeader(clusterID string) func(*middleware.Stack) error {
	return func(stack *middleware.Stack) error {
		return stack.Build.Add(middleware.BuildMiddlewareFunc("AddEKSClusterIDHeader", func(
			ctx context.Context, in middleware.BuildInput, next middleware.BuildHandler,
		) (middleware.BuildOutput, middleware.Metadata, error) {
			if req, ok := in.Request.(*smithyhttp.Request); ok {
				req.Header.Add("x-k8s-aws-id", clusterID)
			}
			return next.HandleBuild(ctx, in)
		}), middleware.Before)
	}
}
