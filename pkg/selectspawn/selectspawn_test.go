package selectspawn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRaceWorkerErrorWinsAndCancelsWaitDisabled(t *testing.T) {
	wantErr := errors.New("peripheral fault")
	cancelled := false

	err := Race(context.Background(),
		func(ctx context.Context) {
			<-ctx.Done()
			cancelled = true
		},
		func(ctx context.Context) error {
			return wantErr
		},
	)

	assert.Equal(t, wantErr, err)
	assert.True(t, cancelled)
}

func TestRaceWaitDisabledWinsAndCancelsWorker(t *testing.T) {
	released := false

	err := Race(context.Background(),
		func(ctx context.Context) {
			time.Sleep(10 * time.Millisecond)
		},
		func(ctx context.Context) error {
			<-ctx.Done()
			released = true
			return nil
		},
	)

	assert.NoError(t, err)
	assert.True(t, released)
}

func TestRaceWaitsForAllWorkersBeforeReturning(t *testing.T) {
	done := make(chan struct{})

	_ = Race(context.Background(),
		func(ctx context.Context) {},
		func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			close(done)
			return nil
		},
	)

	select {
	case <-done:
	default:
		t.Fatal("Race returned before its worker finished unwinding")
	}
}
