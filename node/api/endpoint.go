package api

import (
	"context"
	"errors"

	"github.com/absmach/hyperfold/node"
	"github.com/absmach/hyperfold/pkg/aggregator"
	pkgerrors "github.com/absmach/hyperfold/pkg/errors"
	"github.com/absmach/hyperfold/pkg/storage"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

func infoEndpoint(svc node.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(emptyReq)
		if !ok {
			return infoResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return infoResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		info, err := svc.Info(ctx)
		if err != nil {
			return infoResponse{}, err
		}

		return infoResponse{Info: info}, nil
	}
}

func registerPeerEndpoint(svc node.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(registerPeerReq)
		if !ok {
			return registerPeerResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return registerPeerResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		if err := svc.RegisterPeer(ctx, req.ID, req.Address, req.Role); err != nil {
			return registerPeerResponse{}, err
		}

		return registerPeerResponse{ID: req.ID}, nil
	}
}

func listPeersEndpoint(svc node.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(emptyReq)
		if !ok {
			return listPeersResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listPeersResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		list, err := svc.ListPeers(ctx)
		if err != nil {
			return listPeersResponse{}, err
		}

		return listPeersResponse{Total: len(list), Peers: list}, nil
	}
}

func topologyEndpoint(svc node.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(emptyReq)
		if !ok {
			return topologyResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return topologyResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		topo, err := svc.Topology(ctx)
		if err != nil {
			return topologyResponse{}, err
		}

		return topologyResponse{Topology: topo}, nil
	}
}

func advanceEpochEndpoint(svc node.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(advanceEpochReq)
		if !ok {
			return epochResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return epochResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		epoch, err := svc.AdvanceEpoch(ctx, req.Epoch)
		if err != nil {
			return epochResponse{}, err
		}

		return epochResponse{Epoch: epoch}, nil
	}
}

func aggregationStatusEndpoint(svc node.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(emptyReq)
		if !ok {
			return aggregationResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return aggregationResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		status, err := svc.AggregationStatus(ctx)
		if err != nil {
			return aggregationResponse{}, err
		}

		return aggregationResponse{AggregationStatus: status}, nil
	}
}

func submitGradientEndpoint(svc node.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(submitGradientReq)
		if !ok {
			return gradientResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return gradientResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		c := aggregator.Contribution{
			LayerIndex:     req.LayerIndex,
			WeightGradient: req.WeightGradient,
			BiasGradient:   req.BiasGradient,
			BatchSize:      req.BatchSize,
		}
		if len(req.Samples) > 0 {
			folded, err := node.FoldBatch(ctx, req.LayerIndex, req.Samples)
			if err != nil {
				return gradientResponse{}, errors.Join(apiutil.ErrValidation, err)
			}
			c = folded
		}

		res, err := svc.SubmitGradient(ctx, req.Epoch, c)
		if err != nil {
			return gradientResponse{}, err
		}

		return gradientResponse{Status: res.Status, Aggregation: res.Contribution}, nil
	}
}

func broadcastEndpoint(svc node.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(broadcastReq)
		if !ok {
			return snapshotResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return snapshotResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		s, err := svc.Broadcast(ctx, storage.Snapshot{Epoch: req.Epoch, Layers: req.Layers})
		if err != nil {
			return snapshotResponse{}, err
		}

		return snapshotResponse{Snapshot: s, created: true}, nil
	}
}

func getSnapshotEndpoint(svc node.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(snapshotReq)
		if !ok {
			return snapshotResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return snapshotResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		s, err := svc.GetSnapshot(ctx, req.epoch)
		if err != nil {
			return snapshotResponse{}, err
		}

		return snapshotResponse{Snapshot: s}, nil
	}
}

func listGradientsEndpoint(svc node.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listGradientsReq)
		if !ok {
			return listGradientsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listGradientsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		grads, err := svc.ListGradients(ctx, req.epoch)
		if err != nil {
			return listGradientsResponse{}, err
		}

		return listGradientsResponse{
			Epoch:     req.epoch,
			Total:     len(grads),
			Gradients: grads,
		}, nil
	}
}

func latestSnapshotEndpoint(svc node.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(emptyReq)
		if !ok {
			return snapshotResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return snapshotResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		s, err := svc.LatestSnapshot(ctx)
		if err != nil {
			return snapshotResponse{}, err
		}

		return snapshotResponse{Snapshot: s}, nil
	}
}

func listSnapshotsEndpoint(svc node.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listSnapshotsReq)
		if !ok {
			return listSnapshotsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listSnapshotsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListSnapshots(ctx, req.offset, req.limit)
		if err != nil {
			return listSnapshotsResponse{}, err
		}

		return listSnapshotsResponse{SnapshotPage: page}, nil
	}
}
