package wire_test

import (
	"testing"

	"github.com/absmach/hyperfold/pkg/algebra"
	"github.com/absmach/hyperfold/pkg/wire"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sender = wire.Sender{ID: "worker-7", Address: "10.0.0.7:9000", RoleCode: 0}

func TestSealEncodeDecodeOpen(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc  string
		epoch uint64
		msg   wire.Message
	}{
		{
			desc:  "gossip",
			epoch: 3,
			msg: wire.Gossip{
				SenderID: "worker-7",
				Peers: []wire.PeerBrief{
					{ID: "ps-a", Address: "10.0.1.1:7000", RoleCode: 1},
					{ID: "worker-1", Address: "10.0.0.1:9000", RoleCode: 0},
				},
			},
		},
		{
			desc:  "gradient",
			epoch: 11,
			msg: wire.GradientContribution{
				LayerIndex:     2,
				WeightGradient: []float64{0.5, -1.25, 3},
				BiasGradient:   []float64{0.125},
				BatchSize:      64,
			},
		},
		{
			desc:  "broadcast",
			epoch: 12,
			msg: wire.ParameterBroadcast{
				Epoch: 12,
				Layers: []wire.LayerState{
					{
						LayerIndex: 0,
						Weights:    algebra.Matrix{Rows: 1, Cols: 2, Data: []float64{1, 2}},
						Bias:       algebra.Vector{0.5},
					},
				},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			env, err := wire.Seal(sender, tc.epoch, tc.msg)
			require.NoError(t, err)
			assert.Equal(t, tc.msg.Kind(), env.Kind)

			data, err := wire.Encode(env)
			require.NoError(t, err)

			decoded, err := wire.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, wire.ProtocolVersion, decoded.Version)
			assert.Equal(t, sender.ID, decoded.SenderID)
			assert.Equal(t, sender.Address, decoded.SenderAddress)
			assert.Equal(t, sender.RoleCode, decoded.SenderRole)
			assert.Equal(t, tc.epoch, decoded.Epoch)

			msg, err := wire.Open(decoded)
			require.NoError(t, err)
			assert.Equal(t, tc.msg, msg)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()

	valid, err := wire.Seal(sender, 1, wire.Gossip{SenderID: sender.ID})
	require.NoError(t, err)

	encodeRaw := func(env wire.Envelope) []byte {
		data, err := cbor.Marshal(env)
		require.NoError(t, err)

		return data
	}

	oldVersion := valid
	oldVersion.Version = 1
	unknownKind := valid
	unknownKind.Kind = "inference"
	anonymous := valid
	anonymous.SenderID = ""

	cases := []struct {
		desc string
		data []byte
		err  error
	}{
		{desc: "garbage", data: []byte{0xff, 0x00, 0x13}, err: wire.ErrMalformed},
		{desc: "version mismatch", data: encodeRaw(oldVersion), err: wire.ErrVersionMismatch},
		{desc: "unknown kind", data: encodeRaw(unknownKind), err: wire.ErrUnknownKind},
		{desc: "missing sender", data: encodeRaw(anonymous), err: wire.ErrEmptySender},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			_, err := wire.Decode(tc.data)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestOpenMalformedBody(t *testing.T) {
	t.Parallel()

	env, err := wire.Seal(sender, 1, wire.Gossip{SenderID: sender.ID})
	require.NoError(t, err)
	env.Kind = wire.KindGradient
	env.Body = []byte{0x61, 0x61}

	_, err = wire.Open(env)
	assert.ErrorIs(t, err, wire.ErrMalformed)
}

func TestSealRequiresSender(t *testing.T) {
	t.Parallel()

	_, err := wire.Seal(wire.Sender{}, 0, wire.Gossip{})
	assert.ErrorIs(t, err, wire.ErrEmptySender)
}
