package runner

import (
	"errors"

	"github.com/aws/smithy-go"
)

// awsAccessDeniedCodes and awsInvalidCredentialsCodes mirror the error
// code sets Cloud Custodian itself treats specially when iterating AWS
// API calls (botocore ClientError.response['Error']['Code']).
var awsAccessDeniedCodes = map[string]bool{
	"AccessDenied":          true,
	"AccessDeniedException": true,
	"UnauthorizedOperation": true,
	"Forbidden":             true,
}

var awsInvalidCredentialsCodes = map[string]bool{
	"InvalidClientTokenId":        true,
	"UnrecognizedClientException": true,
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
	"AuthFailure":                 true,
	"InvalidAccessKeyId":          true,
	"SignatureDoesNotMatch":       true,
}

// AWSClassifier implements Classifier for AWS SDK v2 errors.
type AWSClassifier struct{}

func (AWSClassifier) Classify(err error) (ErrorKind, string) {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case awsInvalidCredentialsCodes[code]:
			return ErrCredentials, apiErr.ErrorMessage()
		case awsAccessDeniedCodes[code]:
			return ErrAccess, apiErr.ErrorMessage()
		default:
			return ErrClient, apiErr.ErrorMessage()
		}
	}
	return ErrInternal, err.Error()
}
