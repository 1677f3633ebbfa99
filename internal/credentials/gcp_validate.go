package credentials

import (
	"context"
	"encoding/json"
	"fmt"

	admin "cloud.google.com/go/iam/admin/apiv1"
	"cloud.google.com/go/iam/admin/apiv1/adminpb"
	"google.golang.org/api/option"
)

// ValidateGoogleServiceAccount checks that an inline service-account
// blob names an account that still exists (not deleted or key-rotated
// away) before the worker materializes it to disk and hands it to the
// policy engine. A stale account would otherwise surface much later as
// a CREDENTIALS failure on the first policy of every region.
func ValidateGoogleServiceAccount(ctx context.Context, serviceAccountJSON string) error {
	var sa struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal([]byte(serviceAccountJSON), &sa); err != nil {
		return fmt.Errorf("credentials: decode service account blob: %w", err)
	}
	if sa.ClientEmail == "" {
		return fmt.Errorf("credentials: service account blob has no client_email")
	}

	client, err := admin.NewIamClient(ctx, option.WithCredentialsJSON([]byte(serviceAccountJSON)))
	if err != nil {
		return fmt.Errorf("credentials: build iam admin client: %w", err)
	}
	defer client.Close()

	// "projects/-" lets IAM resolve the owning project from the email.
	_, err = client.GetServiceAccount(ctx, &adminpb.GetServiceAccountRequest{
		Name: "projects/-/serviceAccounts/" + sa.ClientEmail,
	})
	if err != nil {
		return fmt.Errorf("credentials: service account %s lookup: %w", sa.ClientEmail, err)
	}
	return nil
}
