package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tabletop-tracker/internal/logger"
)

func TestShutdownReverseOrder(t *testing.T) {
	m := NewManager(logger.NewNop())

	var order []string
	for _, name := range []string{"camera", "session", "server"} {
		name := name
		m.Register(name, Func(func(context.Context) error {
			order = append(order, name)
			return nil
		}))
	}

	m.Shutdown()
	m.Shutdown()

	assert.Equal(t, []string{"server", "session", "camera"}, order)
	assert.Error(t, m.Context().Err())
	select {
	case <-m.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestShutdownContinuesPastFailuresAndTimeouts(t *testing.T) {
	m := NewManager(logger.NewNop())
	m.SetTimeout(10 * time.Millisecond)

	reached := false
	m.Register("first", Func(func(context.Context) error {
		reached = true
		return nil
	}))
	m.Register("slow", Func(func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return ctx.Err()
	}))
	m.Register("broken", Func(func(context.Context) error {
		return errors.New("broken")
	}))

	m.Shutdown()
	assert.True(t, reached)
}
