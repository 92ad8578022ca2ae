package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

// Config holds test configuration
type Config struct {
	FernURL      string
	KafkaBrokers []string
	EventsTopic  string
	TestTenantID string
}

// DefaultConfig returns default test configuration
func DefaultConfig() Config {
	return Config{
		FernURL:      getEnv("FERN_URL", "http://localhost:3005"),
		KafkaBrokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
		EventsTopic:  getEnv("FERN_EVENTS_TOPIC", "checklist-events"),
		TestTenantID: getEnv("TEST_TENANT_ID", "test-tenant-e2e"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// HTTPClient wraps http.Client with helper methods
type HTTPClient struct {
	client   *http.Client
	baseURL  string
	tenantID string
}

// NewHTTPClient creates a new HTTP client for the service
func NewHTTPClient(baseURL, tenantID string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:  baseURL,
		tenantID: tenantID,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(path string) (*http.Response, error) {
	req, err := http.NewRequest("GET", c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.addHeaders(req)
	return c.client.Do(req)
}

// Post performs a POST request with JSON body
func (c *HTTPClient) Post(path string, body any) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest("POST", c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	c.addHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// Put performs a PUT request with JSON body
func (c *HTTPClient) Put(path string, body any) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest("PUT", c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	c.addHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// Delete performs a DELETE request
func (c *HTTPClient) Delete(path string) (*http.Response, error) {
	req, err := http.NewRequest("DELETE", c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.addHeaders(req)
	return c.client.Do(req)
}

func (c *HTTPClient) addHeaders(req *http.Request) {
	req.Header.Set("X-Tenant-ID", c.tenantID)
	req.Header.Set("X-User-ID", "e2e-test-user")
}

// ParseResponse parses a JSON response into the given type
func ParseResponse[T any](resp *http.Response) (T, error) {
	var result T
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	if err := json.Unmarshal(body, &result); err != nil {
		return result, fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))
	}
	return result, nil
}

// KafkaHelper provides Kafka testing utilities
type KafkaHelper struct {
	brokers []string
}

// NewKafkaHelper creates a new Kafka helper
func NewKafkaHelper(brokers []string) *KafkaHelper {
	return &KafkaHelper{brokers: brokers}
}

// ConsumeMessagesAfter consumes messages from a topic, filtering for messages after a specific time
func (k *KafkaHelper) ConsumeMessagesAfter(ctx context.Context, topic, groupID string, timeout time.Duration, maxMessages int, afterTime time.Time) ([]kafka.Message, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	defer reader.Close()

	messages := make([]kafka.Message, 0, maxMessages)
	deadline := time.Now().Add(timeout)

	for len(messages) < maxMessages && time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
		msg, err := reader.FetchMessage(ctx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				continue // Timeout, try again
			}
			return messages, err
		}

		// Commit all messages to advance offset, but only keep recent ones
		reader.CommitMessages(context.Background(), msg)

		if !afterTime.IsZero() && msg.Time.Before(afterTime) {
			continue // Skip old messages
		}

		messages = append(messages, msg)
	}

	return messages, nil
}

// RequireService skips the test if the service is not available
// Waits up to 10 seconds for service to become ready (handles 503 during startup)
func RequireService(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(10 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url + "/api/v1/health")
		if err != nil {
			t.Skipf("Skipping: service at %s is not available", url)
			return
		}

		status := resp.StatusCode
		resp.Body.Close()

		if status == http.StatusOK {
			return // Service is ready
		}

		if status == http.StatusServiceUnavailable {
			t.Logf("Service at %s is starting (503), waiting...", url)
			time.Sleep(1 * time.Second)
			continue
		}

		t.Skipf("Skipping: service at %s returned status %d", url, status)
		return
	}

	t.Skipf("Skipping: service at %s did not become ready within 10s", url)
}
