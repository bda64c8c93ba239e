package bsurf

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"honnef.co/go/bsurf/samples"
	"honnef.co/go/bsurf/spline"
	"honnef.co/go/curve"
)

func TestSession_LastWriteWins(t *testing.T) {
	for _, prepared := range []bool{false, true} {
		g := newTestGrid(t, spline.DefaultConfig())
		ev := newTestEvaluator(t, g.Config(), nil)
		pts := samples.Circle(samples.DefaultCircleCenter, samples.DefaultCircleRadius, samples.DefaultCircleSamples)

		s := NewSession(ev, pts)
		if prepared {
			require.NoError(t, s.Prepare(context.Background()))
		}

		var mu sync.Mutex
		var updates []uint64
		s.OnUpdate = func(gen uint64, positions []curve.Point) {
			mu.Lock()
			defer mu.Unlock()
			updates = append(updates, gen)
		}

		const n = 20
		var last []curve.Point
		for i := range n {
			g.SetOffset(g.Index(4, 4), curve.Vec(float64(i), float64(-i)))
			last = g.Points()
			gen := s.Trigger(context.Background(), last)
			assert.Equal(t, uint64(i+1), gen)
		}
		s.Wait()
		require.NoError(t, s.Err())

		gen, got := s.Positions()
		assert.Equal(t, uint64(n), gen)
		want, err := ev.Evaluate(context.Background(), pts, last)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		// Published generations only ever increase.
		mu.Lock()
		assert.IsIncreasing(t, updates)
		assert.Equal(t, n, len(updates)+s.Discarded())
		mu.Unlock()
	}
}

func TestSession_DiscardsSuperseded(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { SetLogger(nil) })

	ev := newTestEvaluator(t, spline.DefaultConfig(), nil)
	s := NewSession(ev, nil)
	called := 0
	s.OnUpdate = func(uint64, []curve.Point) { called++ }

	s.requested = 3
	old := []curve.Point{curve.Pt(1, 1)}
	s.publish(2, old, nil)
	assert.Equal(1, s.Discarded())
	assert.Zero(called)
	assert.Contains(buf.String(), "discarding superseded evaluation")

	cur := []curve.Point{curve.Pt(2, 2)}
	s.publish(3, cur, nil)
	gen, pos := s.Positions()
	assert.Equal(uint64(3), gen)
	assert.Equal(cur, pos)
	assert.Equal(1, called)

	// A result that was already shown isn't published again.
	s.publish(3, old, nil)
	assert.Equal(2, s.Discarded())
	_, pos = s.Positions()
	assert.Equal(cur, pos)
}

func TestSession_Error(t *testing.T) {
	assert := assert.New(t)

	ev := newTestEvaluator(t, spline.DefaultConfig(), nil)
	s := NewSession(ev, []curve.Point{curve.Pt(300, 300)})
	s.Trigger(context.Background(), make([]curve.Point, 3))
	s.Wait()
	assert.ErrorIs(s.Err(), ErrControlPointCount)
	gen, pos := s.Positions()
	assert.Zero(gen)
	assert.Nil(pos)

	g := newTestGrid(t, spline.DefaultConfig())
	s.Trigger(context.Background(), g.Points())
	s.Wait()
	assert.NoError(s.Err())
	gen, pos = s.Positions()
	assert.Equal(uint64(2), gen)
	assert.Len(pos, 1)
}

func TestSession_SamplesCopied(t *testing.T) {
	ev := newTestEvaluator(t, spline.DefaultConfig(), nil)
	pts := []curve.Point{curve.Pt(300, 300)}
	s := NewSession(ev, pts)
	pts[0] = curve.Pt(0, 0)
	assert.Equal(t, curve.Pt(300, 300), s.samples[0])
}
