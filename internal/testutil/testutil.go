// Package testutil provides shared helpers for HTTP-level tests.
package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/SmartInclusion/SmartInclusion/internal/api"
	"github.com/SmartInclusion/SmartInclusion/internal/messaging"
	"github.com/SmartInclusion/SmartInclusion/internal/models"
	"github.com/SmartInclusion/SmartInclusion/internal/store"
	"github.com/SmartInclusion/SmartInclusion/internal/twiliosms"
)

// TestingT is the subset of testing.TB the assertions use.
type TestingT interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// TestServer bundles a server with the fakes behind it.
type TestServer struct {
	Server *api.Server
	Store  *store.InMemoryStore
	SMS    *twiliosms.MockClient
}

// NewTestServer creates an API server over an in-memory store and a mock SMS client.
func NewTestServer(opts ...api.Option) *TestServer {
	st := store.NewInMemoryStore()
	sms := twiliosms.NewMockClient()
	return &TestServer{
		Server: api.NewServer(st, messaging.NewTwilioService(sms), opts...),
		Store:  st,
		SMS:    sms,
	}
}

// Do serves req through h and returns the recorded response.
func Do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// FormRequest builds a urlencoded form request.
func FormRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// USSDRequest builds a gateway callback for the given phone and accumulated text.
func USSDRequest(phone, text string) *http.Request {
	return FormRequest(http.MethodPost, "/ussd", url.Values{
		"sessionId":   {"ATUid_test"},
		"serviceCode": {"*384*123#"},
		"phoneNumber": {phone},
		"text":        {text},
	})
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TestingT, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t TestingT, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}
	if status, ok := response["status"].(string); !ok {
		t.Errorf("response missing or invalid 'status' field")
	} else if status != expectedStatus {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
	}
	return response
}

// SeedRecords adds one record of each kind.
func SeedRecords(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	if _, err := st.AddFarmer(ctx, models.FarmerRecord{Phone: "+254711000111", Name: "Jane", Location: "Nakuru", FarmSize: "2 hectares", Crops: "Maize,Beans", Livestock: "Goats"}); err != nil {
		t.Fatalf("failed to seed farmer: %v", err)
	}
	if _, err := st.AddCropReport(ctx, models.CropReport{Phone: "+254711000111", Crop: "Maize", Quantity: "100kg"}); err != nil {
		t.Fatalf("failed to seed crop report: %v", err)
	}
	if _, err := st.AddLivestockReport(ctx, models.LivestockReport{Phone: "+254711000111", Animal: "Goats", Count: "10"}); err != nil {
		t.Fatalf("failed to seed livestock report: %v", err)
	}
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
