package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PushDrain(t *testing.T) {
	q := NewQueue()
	q.Success("Carro cadastrado com sucesso!")
	q.Error("Erro ao cadastrar carro!")

	got := q.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, KindSuccess, got[0].Kind)
	assert.Equal(t, KindError, got[1].Kind)
	assert.Less(t, got[0].ID, got[1].ID)
	assert.Empty(t, q.Drain())
}

func TestQueue_PendingIsBounded(t *testing.T) {
	q := NewQueue()
	for i := 0; i < maxPending+5; i++ {
		q.Success("x")
	}
	pending := q.Pending()
	assert.Len(t, pending, maxPending)
	assert.Equal(t, int64(6), pending[0].ID)
}

func TestQueue_SubscribeAndAck(t *testing.T) {
	q := NewQueue()
	ch, cancel := q.Subscribe()
	defer cancel()

	pushed := q.Push(KindSuccess, "Imagem enviada com sucesso!")

	select {
	case got := <-ch:
		assert.Equal(t, pushed.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive toast")
	}

	assert.Len(t, q.Pending(), 1, "kept until acknowledged")
	q.Ack(pushed.ID)
	assert.Empty(t, q.Pending())
}

func TestQueue_CancelAndClose(t *testing.T) {
	q := NewQueue()
	ch, cancel := q.Subscribe()
	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	ch2, _ := q.Subscribe()
	q.Close()
	q.Close()
	_, open = <-ch2
	assert.False(t, open)

	q.Success("dropped")
	assert.Empty(t, q.Pending())

	ch3, _ := q.Subscribe()
	_, open = <-ch3
	assert.False(t, open, "subscribing to a closed queue yields a closed channel")
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Success("ok")
		}()
	}
	wg.Wait()
	assert.Len(t, q.Drain(), 10)
}
