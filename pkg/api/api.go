package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/absmach/hyperfold/node"
	"github.com/absmach/hyperfold/pkg/aggregator"
	"github.com/absmach/hyperfold/pkg/algebra"
	pkgerrors "github.com/absmach/hyperfold/pkg/errors"
	"github.com/absmach/hyperfold/pkg/peers"
	"github.com/absmach/hyperfold/pkg/storage"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
)

const (
	OffsetKey = "offset"
	LimitKey  = "limit"
	DefOffset = 0
	DefLimit  = 100

	ContentType = "application/json"

	MaxLimitSize = 100
)

type errorRes struct {
	Error string `json:"error"`
}

func EncodeResponse(_ context.Context, w http.ResponseWriter, response any) error {
	if ar, ok := response.(supermq.Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	return json.NewEncoder(w).Encode(response)
}

func EncodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	switch {
	case errors.Is(err, apiutil.ErrUnsupportedContentType):
		w.WriteHeader(http.StatusUnsupportedMediaType)
	case errors.Is(err, apiutil.ErrValidation),
		errors.Is(err, pkgerrors.ErrEmptyKey),
		errors.Is(err, peers.ErrMalformedAddress),
		errors.Is(err, peers.ErrEmptyID),
		errors.Is(err, peers.ErrUnknownRole),
		errors.Is(err, aggregator.ErrInvalidBatch),
		errors.Is(err, aggregator.ErrNegativeLayer),
		errors.Is(err, aggregator.ErrEmptyContributor),
		errors.Is(err, algebra.ErrDimensionMismatch),
		errors.Is(err, node.ErrSelfPeer),
		errors.Is(err, node.ErrMalformedSeed),
		errors.Is(err, node.ErrEmptyBatch):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, pkgerrors.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, aggregator.ErrShapeMismatch),
		errors.Is(err, pkgerrors.ErrStaleEpoch):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, pkgerrors.ErrNotRoot),
		errors.Is(err, node.ErrNotWorker):
		w.WriteHeader(http.StatusForbidden)
	case errors.Is(err, node.ErrOrphan):
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	if err := json.NewEncoder(w).Encode(errorRes{Error: err.Error()}); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}
