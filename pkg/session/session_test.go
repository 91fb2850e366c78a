package session

import (
	"testing"
	"time"

	. "github.com/TheSlimvReal/posture-client/internal"
	"github.com/TheSlimvReal/posture-client/pkg/frame"
	"github.com/TheSlimvReal/posture-client/pkg/models"
	"github.com/TheSlimvReal/posture-client/pkg/posture"
	"github.com/pkg/errors"
	"gotest.tools/assert"
)

var testTime = time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

func newSession(t *testing.T, opts ...Option) (*Session, *TestListener) {
	l := &TestListener{}
	opts = append([]Option{WithListener(l), withClock(func() time.Time { return testTime })}, opts...)
	s, err := New(opts...)
	assert.NilError(t, err)
	return s, l
}

func ingest(t *testing.T, s *Session, samples ...models.SensorSample) {
	for _, sample := range samples {
		assert.NilError(t, s.Ingest(frame.Encode(sample)))
	}
}

func repeat(sample models.SensorSample, n int) []models.SensorSample {
	out := make([]models.SensorSample, n)
	for i := range out {
		out[i] = sample
	}
	return out
}

func TestIngestAppendsSampleAndVerdict(t *testing.T) {
	s, l := newSession(t)
	ingest(t, s, repeat(models.SensorSample{Left: 1200, Middle: 1200, Right: 1200}, 5)...)

	snap := s.Snapshot()
	assert.Equal(t, len(snap.Samples), 5)
	assert.Equal(t, len(snap.Verdicts), 5)
	for i := 0; i < 4; i++ {
		assert.DeepEqual(t, snap.Verdicts[i], models.PostureVerdict{})
	}
	assert.DeepEqual(t, snap.Verdicts[4], models.PostureVerdict{Backward: true})
	assert.Equal(t, snap.Latest.Seq, uint64(5))
	assert.Equal(t, snap.Latest.ReceivedAt, testTime)

	readings := l.Readings()
	assert.Equal(t, len(readings), 5)
	assert.Equal(t, readings[4].Verdict, models.PostureVerdict{Backward: true})
}

func TestIngestRejectsBadFrame(t *testing.T) {
	s, l := newSession(t)
	ingest(t, s, models.SensorSample{Left: 1, Middle: 2, Right: 3})

	err := s.Ingest([]byte(`{"left":1}`))
	var de *models.DecodeError
	assert.Assert(t, errors.As(err, &de))
	assert.Assert(t, errors.Is(err, models.ErrMissingField))
	assert.Equal(t, len(s.Snapshot().Samples), 1)
	assert.Equal(t, len(l.DecodeErrors()), 1)
	assert.Equal(t, len(l.Readings()), 1)
}

func TestVerdictUsesNewestWindow(t *testing.T) {
	s, _ := newSession(t)
	ingest(t, s, repeat(models.SensorSample{Left: 1100, Middle: 1500, Right: 1800}, 5)...)
	assert.DeepEqual(t, s.Snapshot().Latest.Verdict, models.PostureVerdict{Left: true})

	ingest(t, s, repeat(models.SensorSample{Left: 1500, Middle: 1500, Right: 1500}, 5)...)
	assert.DeepEqual(t, s.Snapshot().Latest.Verdict, models.PostureVerdict{})
}

func TestCalibrate(t *testing.T) {
	s, l := newSession(t)
	ingest(t, s, repeat(models.SensorSample{Left: 1, Middle: 2, Right: 3}, 4)...)

	_, err := s.Calibrate()
	var ih *models.InsufficientHistoryError
	assert.Assert(t, errors.As(err, &ih))
	assert.DeepEqual(t, s.Baseline(), models.DefaultBaseline())
	assert.Equal(t, len(l.Baselines()), 0)

	ingest(t, s, models.SensorSample{Left: 1200, Middle: 1300, Right: 1400})
	ingest(t, s, repeat(models.SensorSample{Left: 1201, Middle: 1301, Right: 1401}, 4)...)
	b, err := s.Calibrate()
	assert.NilError(t, err)
	assert.DeepEqual(t, b, models.Baseline{Left: 1200, Middle: 1300, Right: 1400})
	assert.DeepEqual(t, s.Baseline(), b)
	assert.DeepEqual(t, l.Baselines(), []models.Baseline{b})

	ingest(t, s, models.SensorSample{Left: 1200, Middle: 1300, Right: 1400})
	assert.Assert(t, s.Snapshot().Latest.Verdict.Upright())
}

func TestClearKeepsBaseline(t *testing.T) {
	s, _ := newSession(t)
	ingest(t, s, repeat(models.SensorSample{Left: 1000, Middle: 1000, Right: 1000}, 5)...)
	b, err := s.Calibrate()
	assert.NilError(t, err)
	assert.Equal(t, s.ID(), "")

	s.Clear()
	first := s.ID()
	assert.Assert(t, first != "")
	snap := s.Snapshot()
	assert.Equal(t, len(snap.Samples), 0)
	assert.Equal(t, len(snap.Verdicts), 0)
	assert.Assert(t, snap.Latest == nil)
	assert.DeepEqual(t, snap.Baseline, b)

	s.Clear()
	assert.Assert(t, s.ID() != first)
	ingest(t, s, models.SensorSample{Left: 1, Middle: 1, Right: 1})
	assert.Equal(t, s.Snapshot().Latest.Seq, uint64(1))
}

func TestResetRestoresDefaultBaseline(t *testing.T) {
	configured := models.Baseline{Left: 1400, Middle: 1450, Right: 1400}
	s, _ := newSession(t, WithBaseline(configured))
	assert.DeepEqual(t, s.Baseline(), configured)
	ingest(t, s, repeat(models.SensorSample{Left: 900, Middle: 900, Right: 900}, 5)...)
	_, err := s.Calibrate()
	assert.NilError(t, err)
	s.Clear()

	s.Reset()
	assert.DeepEqual(t, s.Baseline(), configured)
	assert.Equal(t, s.ID(), "")
	assert.Equal(t, len(s.Snapshot().Samples), 0)
}

func TestHistoryIsBounded(t *testing.T) {
	s, _ := newSession(t, WithCapacity(6))
	for i := 0; i < 10; i++ {
		ingest(t, s, models.SensorSample{Left: i, Middle: i, Right: i})
	}
	snap := s.Snapshot()
	assert.Equal(t, len(snap.Samples), 6)
	assert.Equal(t, len(snap.Verdicts), 6)
	assert.Equal(t, snap.Samples[0].Left, 4)
	assert.Equal(t, snap.Samples[5].Left, 9)
	assert.Equal(t, snap.Latest.Seq, uint64(10))

	recent := s.Recent(3)
	assert.Equal(t, len(recent), 3)
	assert.Equal(t, recent[0].Sample.Left, 7)
}

func TestNewValidates(t *testing.T) {
	_, err := New(WithConfig(posture.Config{Window: 0}))
	assert.ErrorContains(t, err, "classifier config issue")
	_, err = New(WithCapacity(3))
	assert.ErrorContains(t, err, "smaller than window")
	s, err := New(WithConfig(posture.Config{Window: 2, LeftRightThreshold: 1, ForwardThreshold: 1}), WithCapacity(2))
	assert.NilError(t, err)
	assert.Equal(t, s.Config().Window, 2)
}

func TestImplementsFrameSink(t *testing.T) {
	var _ models.FrameSink = &Session{}
}
