package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/makerdash/internal/models"
)

func TestPublishReachesSubscribers(t *testing.T) {
	h := NewHub(4)
	a, cancelA := h.Subscribe()
	b, cancelB := h.Subscribe()
	defer cancelA()
	defer cancelB()

	h.Publish(models.Activity{Type: models.ActivityMakerStarted, Maker: "Maker 1"})

	require.Equal(t, "Maker 1", (<-a).Maker)
	require.Equal(t, "Maker 1", (<-b).Maker)
	assert.Equal(t, 2, h.Subscribers())
}

func TestPublishDropsWhenFull(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(models.Activity{Details: "first"})
	h.Publish(models.Activity{Details: "second"})

	assert.Equal(t, "first", (<-ch).Details)
	select {
	case got := <-ch:
		t.Fatalf("unexpected entry %q", got.Details)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, h.Subscribers())

	h.Publish(models.Activity{})
}

func TestCloseEndsSubscribers(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe()
	h.Close()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := h.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}
