package relayerr_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/llmrelay/relayerr"
)

func TestStatusCode_MapsEachErrorType(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, relayerr.StatusCode(relayerr.NewBadRequest(errors.New("bad"))))
	assert.Equal(t, http.StatusTooManyRequests, relayerr.StatusCode(relayerr.NewRateLimited(errors.New("slow down"), 3)))
	assert.Equal(t, http.StatusServiceUnavailable, relayerr.StatusCode(relayerr.NewQueueFull(errors.New("full"))))
	assert.Equal(t, http.StatusBadGateway, relayerr.StatusCode(relayerr.NewBackendError(errors.New("boom"))))
	assert.Equal(t, http.StatusInternalServerError, relayerr.StatusCode(errors.New("unrecognized")))
}

func TestWriteError_RateLimitedBodyCarriesRetryAfter(t *testing.T) {
	recorder := httptest.NewRecorder()
	relayerr.WriteError(recorder, relayerr.NewRateLimited(errors.New("slow down"), 7))

	require.Equal(t, http.StatusTooManyRequests, recorder.Code)

	var body map[string]map[string]int
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, 7, body["detail"]["retry_after_seconds"])
}

func TestWriteError_PlainErrorBody(t *testing.T) {
	recorder := httptest.NewRecorder()
	relayerr.WriteError(recorder, relayerr.NewBadRequest(errors.New("streaming is not supported")))

	require.Equal(t, http.StatusBadRequest, recorder.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "streaming is not supported", body["detail"])
}
