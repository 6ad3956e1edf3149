package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/comit-network/cnd/swap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteProblem_SetsContentTypeStatusAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteProblem(rec, problemSwapNotFound(swap.NewID()))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, problemContentType, rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Swap not found", body["title"])
	assert.Equal(t, float64(http.StatusNotFound), body["status"])
}

func TestProblemUnsupportedSwap_CarriesUnsupportedParametersField(t *testing.T) {
	p := problemUnsupportedSwap("erc20/erc20")
	rec := httptest.NewRecorder()
	WriteProblem(rec, p)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "erc20/erc20", body["unsupported_parameters"])
	assert.Equal(t, http.StatusBadRequest, p.Status)
}

func TestProblemForSwapError_MapsEachErrKind(t *testing.T) {
	cases := []struct {
		kind swap.ErrKind
		want int
	}{
		{swap.UnsupportedSwap, http.StatusBadRequest},
		{swap.ProtocolDecline, http.StatusBadRequest},
		{swap.PersistenceFailure, http.StatusInternalServerError},
		{swap.LedgerFailure, http.StatusInternalServerError},
	}
	for _, c := range cases {
		err := swap.NewError(c.kind, nil)
		got := problemForSwapError(err)
		assert.Equal(t, c.want, got.Status, c.kind.String())
	}
}
