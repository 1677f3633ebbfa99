package siem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/riftscan/sentinel/internal/shards"
)

// ChronicleMode selects between the two UDM conversion shapes.
type ChronicleMode string

const (
	ChronicleEvents   ChronicleMode = "EVENTS"
	ChronicleEntities ChronicleMode = "ENTITIES"
)

// ChronicleClient is a UDMSink implementation against a Chronicle-v2
// style ingestion endpoint.
type ChronicleClient struct {
	Endpoint   string
	CustomerID string
	HTTPClient *http.Client
}

func (c *ChronicleClient) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *ChronicleClient) Submit(ctx context.Context, credentialsKey string, payload any) error {
	body, err := json.Marshal(struct {
		CustomerID string `json:"customer_id"`
		Events     any    `json:"events"`
	}{c.CustomerID, payload})
	if err != nil {
		return fmt.Errorf("siem: encode udm payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/v2/udmevents:batchCreate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Credentials-Key", credentialsKey)

	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("siem: udm submit request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("siem: udm submit returned status %d", resp.StatusCode)
	}
	return nil
}

// UDMEventsConverter and UDMEntitiesConverter are the two convertors
// over the same underlying collection.
type UDMEventsConverter struct{ Tenant string }

type udmEvent struct {
	Tenant     string `json:"tenant"`
	Rule       string `json:"metadata_rule_name"`
	ResourceID string `json:"target_resource_name"`
	Region     string `json:"target_resource_region"`
}

func (c UDMEventsConverter) Convert(col *shards.Collection) (any, error) {
	var out []udmEvent
	for _, idx := range col.ShardIndexes() {
		for _, f := range col.Shard(idx) {
			out = append(out, udmEvent{Tenant: c.Tenant, Rule: f.Rule, ResourceID: f.ResourceID, Region: f.Region})
		}
	}
	return out, nil
}

type UDMEntitiesConverter struct{ Tenant string }

type udmEntity struct {
	Tenant     string `json:"tenant"`
	ResourceID string `json:"entity_resource_name"`
	Region     string `json:"entity_region"`
}

func (c UDMEntitiesConverter) Convert(col *shards.Collection) (any, error) {
	seen := make(map[string]struct{})
	var out []udmEntity
	for _, idx := range col.ShardIndexes() {
		for _, f := range col.Shard(idx) {
			if _, ok := seen[f.ResourceID]; ok {
				continue
			}
			seen[f.ResourceID] = struct{}{}
			out = append(out, udmEntity{Tenant: c.Tenant, ResourceID: f.ResourceID, Region: f.Region})
		}
	}
	return out, nil
}
