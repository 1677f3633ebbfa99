package runner

import (
	"errors"

	"google.golang.org/api/googleapi"
)

// GCPClassifier implements Classifier for google.golang.org/api errors.
// The GCP Go SDKs surface auth failures as a plain transport error
// rather than a structured code, so anything that isn't a *googleapi.
// Error is treated as a credentials problem; a structured 403 is
// ACCESS, any other
// structured HTTP error is CLIENT.
type GCPClassifier struct{}

func (GCPClassifier) Classify(err error) (ErrorKind, string) {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == 403 {
			return ErrAccess, gerr.Message
		}
		return ErrClient, gerr.Message
	}
	return ErrCredentials, err.Error()
}
