package notify

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestFeedRecent(t *testing.T) {
	ctx := context.Background()

	t.Run("empty feed", func(t *testing.T) {
		f := NewFeed(3)
		assert.Empty(t, f.Recent(10))
	})

	t.Run("newest first", func(t *testing.T) {
		f := NewFeed(5)
		for i := 0; i < 3; i++ {
			f.Notify(ctx, Notification{Message: fmt.Sprint(i)})
		}
		got := f.Recent(0)
		assert.Len(t, got, 3)
		assert.Equal(t, "2", got[0].Message)
		assert.Equal(t, "0", got[2].Message)
	})

	t.Run("wraps around when full", func(t *testing.T) {
		f := NewFeed(3)
		for i := 0; i < 7; i++ {
			f.Notify(ctx, Notification{Message: fmt.Sprint(i)})
		}
		got := f.Recent(10)
		assert.Len(t, got, 3)
		assert.Equal(t, []string{"6", "5", "4"}, []string{got[0].Message, got[1].Message, got[2].Message})
	})

	t.Run("limit", func(t *testing.T) {
		f := NewFeed(10)
		for i := 0; i < 4; i++ {
			f.Notify(ctx, Notification{Message: fmt.Sprint(i)})
		}
		got := f.Recent(2)
		assert.Len(t, got, 2)
		assert.Equal(t, "3", got[0].Message)
	})
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewFeed(2), NewFeed(2)
	n := Multi(a, b, NewLogNotifier(zap.NewNop()))

	n.Notify(context.Background(), Notification{Kind: KindSuccess, Level: LevelInfo, Message: "done"})

	assert.Len(t, a.Recent(0), 1)
	assert.Len(t, b.Recent(0), 1)
}
