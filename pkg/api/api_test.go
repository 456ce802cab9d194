package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/absmach/hyperfold/node"
	"github.com/absmach/hyperfold/pkg/aggregator"
	"github.com/absmach/hyperfold/pkg/api"
	pkgerrors "github.com/absmach/hyperfold/pkg/errors"
	"github.com/absmach/hyperfold/pkg/peers"
	"github.com/absmach/hyperfold/pkg/storage"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc string
		err  error
		code int
	}{
		{desc: "validation", err: errors.Join(apiutil.ErrValidation, errors.New("bad")), code: http.StatusBadRequest},
		{desc: "malformed address", err: fmt.Errorf("wrap: %w", peers.ErrMalformedAddress), code: http.StatusBadRequest},
		{desc: "negative batch", err: aggregator.ErrInvalidBatch, code: http.StatusBadRequest},
		{desc: "missing snapshot", err: storage.ErrNotFound, code: http.StatusNotFound},
		{desc: "shape mismatch", err: aggregator.ErrShapeMismatch, code: http.StatusConflict},
		{desc: "stale epoch", err: pkgerrors.ErrStaleEpoch, code: http.StatusConflict},
		{desc: "not root", err: pkgerrors.ErrNotRoot, code: http.StatusForbidden},
		{desc: "not worker", err: node.ErrNotWorker, code: http.StatusForbidden},
		{desc: "orphan", err: node.ErrOrphan, code: http.StatusServiceUnavailable},
		{desc: "self peer", err: node.ErrSelfPeer, code: http.StatusBadRequest},
		{desc: "unexpected", err: errors.New("boom"), code: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			api.EncodeError(context.Background(), tc.err, rec)

			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, api.ContentType, rec.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.err.Error(), body["error"])
		})
	}
}
