package progress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercent(t *testing.T) {
	cases := []struct {
		done, total int64
		want        float64
	}{
		{0, 0, 0},
		{10, 0, 0},
		{0, 100, 0},
		{25, 100, 25},
		{100, 100, 100},
		{150, 100, 100},
		{-5, 100, 0},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, Percent(tc.done, tc.total), 1e-9, "done=%d total=%d", tc.done, tc.total)
	}
}

func TestSpeedAndETA(t *testing.T) {
	assert.Zero(t, Speed(100, 0))
	assert.Zero(t, ETA(100, 200, 0))
	assert.Zero(t, ETA(0, 200, time.Second))

	assert.InDelta(t, 50.0, Speed(100, 2*time.Second), 1e-9)
	assert.Equal(t, 2*time.Second, ETA(100, 200, 2*time.Second))

	// done past total never yields a negative estimate
	assert.Zero(t, ETA(300, 200, time.Second))
}

func TestHumanBytes(t *testing.T) {
	cases := map[float64]string{
		0:                      "0.00 B",
		512:                    "512.00 B",
		1024:                   "1.00 KiB",
		1536:                   "1.50 KiB",
		5 * 1024 * 1024:        "5.00 MiB",
		2 * 1024 * 1024 * 1024: "2.00 GiB",
		3 << 40:                "3.00 TiB",
		5 << 50:                "5120.00 TiB",
		-1:                     "0.00 B",
	}
	for in, want := range cases {
		assert.Equal(t, want, HumanBytes(in))
	}
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "0s", HumanDuration(0))
	assert.Equal(t, "0s", HumanDuration(-time.Minute))
	assert.Equal(t, "4s", HumanDuration(4*time.Second))
	assert.Equal(t, "1m", HumanDuration(time.Minute))
	assert.Equal(t, "1d, 2h, 3m, 4s", HumanDuration(26*time.Hour+3*time.Minute+4*time.Second))
	assert.Equal(t, "2h, 5s", HumanDuration(2*time.Hour+5*time.Second))
}

func TestBar(t *testing.T) {
	assert.Equal(t, "░░░░░░░░░░", Bar(0))
	assert.Equal(t, "████░░░░░░", Bar(45))
	assert.Equal(t, "██████████", Bar(100))
	assert.Equal(t, "██████████", Bar(130))
}

func TestRender(t *testing.T) {
	text := Render(Snapshot{Phase: PhaseUpload, Done: 512 * 1024, Total: 1024 * 1024, Elapsed: 2 * time.Second})

	assert.True(t, strings.HasPrefix(text, "Uploading\n\n"))
	assert.Contains(t, text, "█████░░░░░ 50.00%")
	assert.Contains(t, text, "Progress: 512.00 KiB of 1.00 MiB")
	assert.Contains(t, text, "Speed: 256.00 KiB/s")
	assert.Contains(t, text, "ETA: 2s")
	assert.Contains(t, text, "Elapsed: 2s")
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time           { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type recorder struct {
	texts []string
	err   error
}

func (r *recorder) edit(_ context.Context, text string) error {
	r.texts = append(r.texts, text)
	return r.err
}

func TestReporterThrottlesAndAlwaysFinishes(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	rec := &recorder{}
	rep := newReporter(PhaseDownload, 1000, 5*time.Second, rec.edit, nil, clk.now)
	ctx := context.Background()

	rep.Update(ctx, 100) // first update goes through
	clk.advance(time.Second)
	rep.Update(ctx, 200) // throttled
	clk.advance(time.Second)
	rep.Update(ctx, 300) // throttled
	clk.advance(4 * time.Second)
	rep.Update(ctx, 400) // interval elapsed
	clk.advance(time.Second)
	rep.Update(ctx, 1000) // completion bypasses the limiter

	require.Len(t, rec.texts, 3)
	assert.Contains(t, rec.texts[0], "10.00%")
	assert.Contains(t, rec.texts[1], "40.00%")
	assert.Contains(t, rec.texts[2], "100.00%")

	rep.Update(ctx, 1000)
	rep.Finish(ctx)
	assert.Len(t, rec.texts, 3, "nothing is pushed after completion")
}

func TestReporterPercentNeverDecreases(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	rec := &recorder{}
	rep := newReporter(PhaseUpload, 1000, time.Second, rec.edit, nil, clk.now)
	ctx := context.Background()

	for _, done := range []int64{300, 100, 500, 200, 1000} {
		rep.Update(ctx, done)
		clk.advance(2 * time.Second)
	}

	last := -1.0
	for _, text := range rec.texts {
		var pct float64
		for _, line := range strings.Split(text, "\n") {
			if strings.HasSuffix(line, "%") {
				fields := strings.Fields(line)
				_, err := fmt.Sscan(strings.TrimSuffix(fields[len(fields)-1], "%"), &pct)
				require.NoError(t, err)
			}
		}
		assert.GreaterOrEqual(t, pct, last)
		last = pct
	}
	assert.Equal(t, 100.0, last)
}

func TestReporterSwallowsEditErrorsAndSkipsDuplicates(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	rec := &recorder{err: errors.New("message is not modified")}
	rep := newReporter(PhaseUpload, 0, time.Second, rec.edit, nil, clk.now)
	ctx := context.Background()

	rep.Update(ctx, 10)
	rep.Update(ctx, 10)
	clk.advance(2 * time.Second)
	rep.Finish(ctx)

	assert.Len(t, rec.texts, 2)
}

func TestReporterFinishesWithoutDeclaredSize(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	rec := &recorder{}
	rep := newReporter(PhaseDownload, 0, time.Second, rec.edit, nil, clk.now)
	ctx := context.Background()

	rep.Update(ctx, 1000)
	clk.advance(2 * time.Second)
	rep.Finish(ctx)

	require.Len(t, rec.texts, 2)
	assert.Contains(t, rec.texts[0], "░░░░░░░░░░ 0.00%")
	assert.Contains(t, rec.texts[1], "██████████ 100.00%")
	assert.Contains(t, rec.texts[1], "Progress: 1000.00 B of 1000.00 B")
}

func TestReporterFinishesEmptyTransfer(t *testing.T) {
	rec := &recorder{}
	rep := newReporter(PhaseUpload, 0, time.Second, rec.edit, nil, (&fakeClock{t: time.Unix(0, 0)}).now)

	rep.Finish(context.Background())

	require.Len(t, rec.texts, 1)
	assert.Contains(t, rec.texts[0], "100.00%")
}

func TestReaderCountsBytes(t *testing.T) {
	var seen []int64
	r := NewReader(bytes.NewReader(make([]byte, 10_000)), func(total int64) { seen = append(seen, total) })

	n, err := io.Copy(io.Discard, r)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), n)
	assert.Equal(t, int64(10_000), r.N())
	require.NotEmpty(t, seen)
	assert.Equal(t, int64(10_000), seen[len(seen)-1])
}
