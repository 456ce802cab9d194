package storage_test

import (
	"testing"

	"github.com/absmach/hyperfold/pkg/storage"
	"github.com/absmach/hyperfold/pkg/storage/testutil"
)

func TestInMemoryRepository(t *testing.T) {
	testutil.RunRepositoryTests(t, storage.NewInMemoryRepository())
}
