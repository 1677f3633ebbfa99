package runner

import (
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// azureInvalidCredentialsCodes mirrors the ARM/AAD error codes that
// indicate the presented credentials themselves are bad, as opposed to
// a scope/permission problem on otherwise-valid credentials.
var azureInvalidCredentialsCodes = map[string]bool{
	"InvalidAuthenticationTokenTenant": true,
	"AuthenticationFailed":             true,
	"ExpiredAuthenticationToken":       true,
	"InvalidAuthenticationToken":       true,
}

// AzureClassifier implements Classifier for azcore.ResponseError.
type AzureClassifier struct{}

func (AzureClassifier) Classify(err error) (ErrorKind, string) {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		if azureInvalidCredentialsCodes[respErr.ErrorCode] || respErr.StatusCode == 401 {
			return ErrCredentials, respErr.ErrorCode
		}
		return ErrClient, respErr.ErrorCode
	}
	return ErrInternal, err.Error()
}
