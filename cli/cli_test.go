package cli_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/absmach/hyperfold/cli"
	"github.com/absmach/hyperfold/pkg/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSDK struct {
	sdk.SDK
	added    []sdk.Peer
	advanced []uint64
}

func (f *fakeSDK) AddPeer(p sdk.Peer) error {
	f.added = append(f.added, p)
	return nil
}

func (f *fakeSDK) AdvanceEpoch(epoch uint64) (uint64, error) {
	f.advanced = append(f.advanced, epoch)
	return epoch, nil
}

func (f *fakeSDK) ListGradients(epoch uint64) (sdk.GradientsPage, error) {
	return sdk.GradientsPage{
		Epoch:     epoch,
		Total:     1,
		Gradients: []sdk.CompletedGradient{{Epoch: epoch, LayerIndex: 2, BatchSize: 16}},
	}, nil
}

func (f *fakeSDK) GetSnapshot(uint64) (sdk.Snapshot, error) {
	return sdk.Snapshot{}, errors.New("snapshot missing")
}

func run(t *testing.T, args ...string) (string, string) {
	t.Helper()
	root := cli.NewPeersCmd()
	switch args[0] {
	case "epochs":
		root = cli.NewEpochsCmd()
	case "snapshots":
		root = cli.NewSnapshotsCmd()
	case "aggregation":
		root = cli.NewAggregationCmd()
	}
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args[1:])
	require.NoError(t, root.Execute())

	return out.String(), errOut.String()
}

// Commands share the package level SDK, so these tests run sequentially.
func TestCommands(t *testing.T) {
	fake := &fakeSDK{}
	cli.SetSDK(fake)

	_, _ = run(t, "peers", "add", "ps-a", "10.0.0.1:7000")
	_, _ = run(t, "peers", "add", "w1", "10.0.0.2:7000", "worker")
	require.Len(t, fake.added, 2)
	assert.Equal(t, "parameter_server", fake.added[0].Role)
	assert.Equal(t, "worker", fake.added[1].Role)

	out, _ := run(t, "peers", "add", "only-id")
	assert.Contains(t, out, "usage")
	assert.Len(t, fake.added, 2)

	out, _ = run(t, "epochs", "advance", "7")
	assert.Equal(t, []uint64{7}, fake.advanced)
	assert.Contains(t, out, "7")

	_, errOut := run(t, "epochs", "advance", "seven")
	assert.Contains(t, errOut, "error")

	_, errOut = run(t, "snapshots", "view", "3")
	assert.Contains(t, errOut, "snapshot missing")

	out, _ = run(t, "aggregation", "gradients", "9")
	assert.Contains(t, out, "batch_size")
	assert.Contains(t, out, "16")
}
