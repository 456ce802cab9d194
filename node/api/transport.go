package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/absmach/hyperfold/node"
	"github.com/absmach/hyperfold/pkg/api"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const epochKey = "epoch"

func MakeHandler(svc node.Service, logger *slog.Logger, svcName, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Get("/info", otelhttp.NewHandler(kithttp.NewServer(
		infoEndpoint(svc),
		decodeEmptyReq,
		api.EncodeResponse,
		opts...,
	), "get-info").ServeHTTP)

	mux.Route("/peers", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listPeersEndpoint(svc),
			decodeEmptyReq,
			api.EncodeResponse,
			opts...,
		), "list-peers").ServeHTTP)
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			registerPeerEndpoint(svc),
			decodeRegisterPeerReq,
			api.EncodeResponse,
			opts...,
		), "register-peer").ServeHTTP)
	})

	mux.Get("/topology", otelhttp.NewHandler(kithttp.NewServer(
		topologyEndpoint(svc),
		decodeEmptyReq,
		api.EncodeResponse,
		opts...,
	), "get-topology").ServeHTTP)

	mux.Get("/aggregation", otelhttp.NewHandler(kithttp.NewServer(
		aggregationStatusEndpoint(svc),
		decodeEmptyReq,
		api.EncodeResponse,
		opts...,
	), "aggregation-status").ServeHTTP)

	mux.Post("/epochs", otelhttp.NewHandler(kithttp.NewServer(
		advanceEpochEndpoint(svc),
		decodeAdvanceEpochReq,
		api.EncodeResponse,
		opts...,
	), "advance-epoch").ServeHTTP)

	mux.Route("/gradients", func(r chi.Router) {
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			submitGradientEndpoint(svc),
			decodeSubmitGradientReq,
			api.EncodeResponse,
			opts...,
		), "submit-gradient").ServeHTTP)
		r.Get("/{epoch}", otelhttp.NewHandler(kithttp.NewServer(
			listGradientsEndpoint(svc),
			decodeListGradientsReq,
			api.EncodeResponse,
			opts...,
		), "list-gradients").ServeHTTP)
	})

	mux.Post("/broadcasts", otelhttp.NewHandler(kithttp.NewServer(
		broadcastEndpoint(svc),
		decodeBroadcastReq,
		api.EncodeResponse,
		opts...,
	), "broadcast").ServeHTTP)

	mux.Route("/snapshots", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listSnapshotsEndpoint(svc),
			decodeListSnapshotsReq,
			api.EncodeResponse,
			opts...,
		), "list-snapshots").ServeHTTP)
		r.Get("/latest", otelhttp.NewHandler(kithttp.NewServer(
			latestSnapshotEndpoint(svc),
			decodeEmptyReq,
			api.EncodeResponse,
			opts...,
		), "latest-snapshot").ServeHTTP)
		r.Get("/{epoch}", otelhttp.NewHandler(kithttp.NewServer(
			getSnapshotEndpoint(svc),
			decodeSnapshotReq,
			api.EncodeResponse,
			opts...,
		), "get-snapshot").ServeHTTP)
	})

	mux.Get("/health", supermq.Health(svcName, instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeEmptyReq(_ context.Context, _ *http.Request) (any, error) {
	return emptyReq{}, nil
}

func decodeRegisterPeerReq(_ context.Context, r *http.Request) (any, error) {
	var req registerPeerReq
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}

	return req, nil
}

func decodeAdvanceEpochReq(_ context.Context, r *http.Request) (any, error) {
	var req advanceEpochReq
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}

	return req, nil
}

func decodeSubmitGradientReq(_ context.Context, r *http.Request) (any, error) {
	var req submitGradientReq
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}

	return req, nil
}

func decodeBroadcastReq(_ context.Context, r *http.Request) (any, error) {
	var req broadcastReq
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}

	return req, nil
}

func decodeSnapshotReq(_ context.Context, r *http.Request) (any, error) {
	epoch, err := strconv.ParseUint(chi.URLParam(r, epochKey), 10, 64)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return snapshotReq{epoch: epoch}, nil
}

func decodeListGradientsReq(_ context.Context, r *http.Request) (any, error) {
	epoch, err := strconv.ParseUint(chi.URLParam(r, epochKey), 10, 64)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return listGradientsReq{epoch: epoch}, nil
}

func decodeListSnapshotsReq(_ context.Context, r *http.Request) (any, error) {
	o, err := apiutil.ReadNumQuery[uint64](r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	l, err := apiutil.ReadNumQuery[uint64](r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return listSnapshotsReq{
		offset: o,
		limit:  l,
	}, nil
}

func decodeJSON(r *http.Request, v any) error {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(err, apiutil.ErrValidation)
	}

	return nil
}
