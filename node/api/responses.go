package api

import (
	"fmt"
	"net/http"

	"github.com/absmach/hyperfold/node"
	"github.com/absmach/hyperfold/pkg/aggregator"
	"github.com/absmach/hyperfold/pkg/peers"
	"github.com/absmach/hyperfold/pkg/storage"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*infoResponse)(nil)
	_ supermq.Response = (*registerPeerResponse)(nil)
	_ supermq.Response = (*listPeersResponse)(nil)
	_ supermq.Response = (*topologyResponse)(nil)
	_ supermq.Response = (*epochResponse)(nil)
	_ supermq.Response = (*aggregationResponse)(nil)
	_ supermq.Response = (*gradientResponse)(nil)
	_ supermq.Response = (*snapshotResponse)(nil)
	_ supermq.Response = (*listSnapshotsResponse)(nil)
	_ supermq.Response = (*listGradientsResponse)(nil)
)

type infoResponse struct {
	node.Info
}

func (i infoResponse) Code() int {
	return http.StatusOK
}

func (i infoResponse) Headers() map[string]string {
	return map[string]string{}
}

func (i infoResponse) Empty() bool {
	return false
}

type registerPeerResponse struct {
	ID string `json:"id"`
}

func (r registerPeerResponse) Code() int {
	return http.StatusCreated
}

func (r registerPeerResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r registerPeerResponse) Empty() bool {
	return true
}

type listPeersResponse struct {
	Total int            `json:"total"`
	Peers []peers.Record `json:"peers"`
}

func (l listPeersResponse) Code() int {
	return http.StatusOK
}

func (l listPeersResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listPeersResponse) Empty() bool {
	return false
}

type topologyResponse struct {
	peers.Topology
}

func (t topologyResponse) Code() int {
	return http.StatusOK
}

func (t topologyResponse) Headers() map[string]string {
	return map[string]string{}
}

func (t topologyResponse) Empty() bool {
	return false
}

type epochResponse struct {
	Epoch uint64 `json:"epoch"`
}

func (e epochResponse) Code() int {
	return http.StatusOK
}

func (e epochResponse) Headers() map[string]string {
	return map[string]string{}
}

func (e epochResponse) Empty() bool {
	return false
}

type aggregationResponse struct {
	node.AggregationStatus
}

func (a aggregationResponse) Code() int {
	return http.StatusOK
}

func (a aggregationResponse) Headers() map[string]string {
	return map[string]string{}
}

func (a aggregationResponse) Empty() bool {
	return false
}

type gradientResponse struct {
	Status      aggregator.Status        `json:"status"`
	Aggregation *aggregator.Contribution `json:"aggregation,omitempty"`
}

func (g gradientResponse) Code() int {
	if g.Status == aggregator.Complete {
		return http.StatusOK
	}

	return http.StatusAccepted
}

func (g gradientResponse) Headers() map[string]string {
	return map[string]string{}
}

func (g gradientResponse) Empty() bool {
	return false
}

type snapshotResponse struct {
	storage.Snapshot
	created bool
}

func (s snapshotResponse) Code() int {
	if s.created {
		return http.StatusCreated
	}

	return http.StatusOK
}

func (s snapshotResponse) Headers() map[string]string {
	if s.created {
		return map[string]string{
			"Location": fmt.Sprintf("/snapshots/%d", s.Epoch),
		}
	}

	return map[string]string{}
}

func (s snapshotResponse) Empty() bool {
	return false
}

type listSnapshotsResponse struct {
	node.SnapshotPage
}

func (l listSnapshotsResponse) Code() int {
	return http.StatusOK
}

func (l listSnapshotsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listSnapshotsResponse) Empty() bool {
	return false
}

type listGradientsResponse struct {
	Epoch     uint64             `json:"epoch"`
	Total     int                `json:"total"`
	Gradients []storage.Gradient `json:"gradients"`
}

func (l listGradientsResponse) Code() int {
	return http.StatusOK
}

func (l listGradientsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listGradientsResponse) Empty() bool {
	return false
}
