package outbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"example.com/matchday/internal/events"
)

// SchemaCatalogEntry ties an event type to the topic, subject and JSON schema it is published under.
type SchemaCatalogEntry struct {
	Topic   string
	Subject string
	Schema  string
}

var (
	rosterChanges = SchemaCatalogEntry{
		Topic:   "roster_events",
		Subject: "roster_events-value",
		Schema:  participantChangedSchema,
	}
	sessionLifecycle = SchemaCatalogEntry{
		Topic:   "session_events",
		Subject: "session_events-value",
		Schema:  sessionCancelledSchema,
	}
)

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeParticipantJoined:   rosterChanges,
	events.TypeParticipantLeft:     rosterChanges,
	events.TypeParticipantPromoted: rosterChanges,
	events.TypeParticipantReplaced: rosterChanges,
	events.TypeSessionCancelled:    sessionLifecycle,
}

// rosterSubjects lists every subject the service publishes to, once each.
func rosterSubjects() []SchemaCatalogEntry {
	return []SchemaCatalogEntry{rosterChanges, sessionLifecycle}
}

// RegistryError is a non-2xx answer from Schema Registry.
type RegistryError struct {
	Subject string
	Status  int
	Body    string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("schema registry: subject %s: status %d: %s", e.Subject, e.Status, e.Body)
}

// SchemaRegistryClient registers the roster and session event schemas with a
// Confluent compatible Schema Registry.
type SchemaRegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureSchema returns the ID of schema under subject, registering it when the
// registry does not know this exact schema yet.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject, schema string) (int, error) {
	id, err := c.post(ctx, subject, "", schema)
	if err == nil {
		return id, nil
	}
	var regErr *RegistryError
	if !errors.As(err, &regErr) || regErr.Status != http.StatusNotFound {
		return 0, err
	}
	return c.post(ctx, subject, "/versions", schema)
}

// post sends schema to /subjects/{subject}{suffix}. Without a suffix the
// registry only looks the schema up; "/versions" registers it.
func (c *SchemaRegistryClient) post(ctx context.Context, subject, suffix, schema string) (int, error) {
	body, err := json.Marshal(struct {
		SchemaType string `json:"schemaType"`
		Schema     string `json:"schema"`
	}{SchemaType: "JSON", Schema: schema})
	if err != nil {
		return 0, err
	}

	endpoint := c.baseURL + "/subjects/" + url.PathEscape(subject) + suffix
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &RegistryError{Subject: subject, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode schema registry response for %s: %w", subject, err)
	}
	return out.ID, nil
}
