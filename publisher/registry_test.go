package publisher_test

import (
	"testing"

	"github.com/KalanaDananjaya/carbon-apimgt/publisher"
	"github.com/KalanaDananjaya/carbon-apimgt/publisher/publishertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := publisher.NewRegistry()
	assert.Empty(t, r.Names())

	first := &publishertest.Recorder{}
	second := &publishertest.Recorder{}
	r.Register("sqlite", first.Factory(nil))
	r.Register("log", first.Factory(nil))
	r.Register("sqlite", second.Factory(nil))

	assert.Equal(t, []string{"log", "sqlite"}, r.Names())

	p, err := r.Create("sqlite")
	require.NoError(t, err)
	assert.Same(t, second, p)
	assert.Zero(t, second.InitCalls(), "create does not initialize")

	_, err = r.Create("kafka")
	assert.ErrorIs(t, err, publisher.ErrUnknownPublisher)
}
