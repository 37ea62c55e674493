package slipok

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/firstnattapon/24wash-backend/config"
	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.IsTest = true
}

func testConfig(baseURL string) config.SlipOKConfig {
	return config.SlipOKConfig{
		BranchID:       "59844",
		APIKey:         "test-key",
		BaseURL:        baseURL,
		TimeoutSeconds: 2,
		BypassCodes:    []int{1009, 1010},
	}
}

func TestCheckSlip_Success(t *testing.T) {
	var gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("x-authorization")
		gotContentType = r.Header.Get("Content-Type")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "true", r.FormValue("log"))
		_, header, err := r.FormFile("files")
		require.NoError(t, err)
		assert.Equal(t, "slip.jpg", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"amount": 20, "transRef": "T1"},
		})
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	result, err := client.CheckSlip(context.Background(), []byte("fake-jpeg"))
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotAuth)
	assert.Contains(t, gotContentType, "multipart/form-data")
	assert.True(t, result.Success)
	require.NotNil(t, result.Data)
	require.NotNil(t, result.Data.Amount)
	assert.Equal(t, "20", result.Data.Amount.String())
	assert.Equal(t, "T1", result.Data.TransRef)
}

func TestCheckSlip_FractionalAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"amount": 30.01, "transRef": "T2"},
		})
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	result, err := client.CheckSlip(context.Background(), []byte("fake-jpeg"))
	require.NoError(t, err)
	require.NotNil(t, result.Data)
	assert.Equal(t, "30.01", result.Data.Amount.String())
}

func TestCheckSlip_DomainFailureCodes(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode int
	}{
		{"numeric code", http.StatusBadRequest, `{"success":false,"code":1012,"message":"duplicate slip"}`, 1012},
		{"string code", http.StatusBadRequest, `{"success":false,"code":"1009","message":"bank outage"}`, 1009},
		{"unparseable code", http.StatusBadRequest, `{"success":false,"code":"E-X","message":"odd"}`, 0},
		{"missing code", http.StatusBadRequest, `{"success":false,"message":"unknown"}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(testConfig(srv.URL))
			result, err := client.CheckSlip(context.Background(), []byte("img"))
			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.Equal(t, tt.wantCode, int(result.Code))
		})
	}
}

func TestCheckSlip_SuccessFlagIgnoredOnNon200(t *testing.T) {
	// A misbehaving proxy could return success:true with an error status;
	// the flag must not be trusted then.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	result, err := client.CheckSlip(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestCheckSlip_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	client := NewClient(testConfig(srv.URL))
	_, err := client.CheckSlip(context.Background(), []byte("img"))
	assert.Error(t, err)
}

func TestCheckSlip_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	_, err := client.CheckSlip(context.Background(), []byte("img"))
	assert.Error(t, err)
}
