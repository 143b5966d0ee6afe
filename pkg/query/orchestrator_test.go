package query_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sightline-ai/go-sightline/pkg/frame"
	"github.com/sightline-ai/go-sightline/pkg/query"
	"github.com/sightline-ai/go-sightline/pkg/reason"
	"github.com/sightline-ai/go-sightline/pkg/session"
	"github.com/sightline-ai/go-sightline/pkg/storage"
	"github.com/sightline-ai/go-sightline/pkg/stt"
	"github.com/sightline-ai/go-sightline/pkg/tts"
)

type fixture struct {
	backend  *storage.Memory
	registry *session.Registry
	stt      *stt.Mock
	reason   *reason.Mock
	tts      *tts.Mock
	events   []query.Event
}

func newFixture(t *testing.T, capacity int, opts query.Options) (*fixture, *query.Orchestrator) {
	t.Helper()
	f := &fixture{
		backend: storage.NewMemory(),
		stt:     stt.NewMock("what do you see"),
		reason:  reason.NewMock("a red mug on the table"),
		tts:     tts.NewMock(),
	}
	f.registry = session.NewRegistry(func(string) *frame.Store {
		return frame.NewStore(f.backend, capacity, nil)
	})
	opts.OnEvent = func(ev query.Event) {
		f.events = append(f.events, ev)
	}
	return f, query.New(f.registry, f.backend, f.stt, f.reason, f.tts, opts)
}

// ingestFrame stores image bytes and appends a record for the device.
func (f *fixture) ingestFrame(t *testing.T, deviceID string, ts int64, data []byte) {
	t.Helper()
	loc, err := f.backend.Save(fmt.Sprintf("frames/%s_%d.jpg", deviceID, ts), data)
	require.NoError(t, err)
	f.registry.GetOrCreate(deviceID).Frames.Append(frame.Record{Timestamp: ts, Locator: loc})
}

func (f *fixture) states() []query.State {
	out := make([]query.State, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.State
	}
	return out
}

func TestHandleWithFrame(t *testing.T) {
	f, o := newFixture(t, 10, query.Options{})
	f.ingestFrame(t, "cam-a", 1, []byte("jpeg-t1"))
	f.ingestFrame(t, "cam-a", 2, []byte("jpeg-t2"))

	res, err := o.Handle(context.Background(), query.Request{DeviceID: "cam-a", Audio: []byte("wav")})
	require.NoError(t, err)

	assert.Equal(t, "what do you see", res.Transcript)
	assert.Equal(t, "a red mug on the table", res.Answer)
	assert.NotEmpty(t, res.Audio)
	assert.True(t, res.HasFrame)
	assert.EqualValues(t, 2, res.FrameTimestamp)

	// Reasoning saw the latest frame's bytes.
	require.NotNil(t, f.reason.LastCall())
	assert.Equal(t, []byte("jpeg-t2"), f.reason.LastCall().Image)

	// Synthesis saw the reasoning answer.
	assert.Equal(t, []string{"a red mug on the table"}, f.tts.Calls())

	assert.Equal(t, []query.State{
		query.StateReceived,
		query.StateTranscribed,
		query.StateReasoned,
		query.StateSynthesized,
		query.StateDone,
	}, f.states())
}

func TestHandleUnseenDeviceWithoutFrames(t *testing.T) {
	f, o := newFixture(t, 10, query.Options{})

	res, err := o.Handle(context.Background(), query.Request{DeviceID: "cam-c", Audio: []byte("wav")})
	require.NoError(t, err)

	assert.False(t, res.HasFrame)
	assert.NotEmpty(t, res.Audio)

	// Reasoning ran with no image argument.
	require.NotNil(t, f.reason.LastCall())
	assert.Nil(t, f.reason.LastCall().Image)
	assert.Equal(t, "what do you see", f.reason.LastCall().Question)
}

func TestAnnounceMissingFrame(t *testing.T) {
	f, o := newFixture(t, 10, query.Options{AnnounceMissingFrame: true})

	_, err := o.Handle(context.Background(), query.Request{DeviceID: "cam-c", Audio: []byte("wav")})
	require.NoError(t, err)

	q := f.reason.LastCall().Question
	assert.Contains(t, q, "No camera frame is available")
	assert.Contains(t, q, "what do you see")
}

func TestNoAudio(t *testing.T) {
	_, o := newFixture(t, 10, query.Options{})
	_, err := o.Handle(context.Background(), query.Request{DeviceID: "cam-a"})
	assert.ErrorIs(t, err, query.ErrNoAudio)
}

func TestScratchAudioCleanedUp(t *testing.T) {
	t.Run("after success", func(t *testing.T) {
		f, o := newFixture(t, 10, query.Options{})
		_, err := o.Handle(context.Background(), query.Request{DeviceID: "d", Audio: []byte("wav")})
		require.NoError(t, err)
		assert.Equal(t, 0, f.backend.Len())
	})

	t.Run("after stage failure", func(t *testing.T) {
		f, o := newFixture(t, 10, query.Options{})
		f.reason.GenerateFunc = func(context.Context, string, []byte) (string, error) {
			return "", &reason.ModelError{Message: "busy"}
		}
		_, err := o.Handle(context.Background(), query.Request{DeviceID: "d", Audio: []byte("wav")})
		require.Error(t, err)
		assert.Equal(t, 0, f.backend.Len())
	})
}

func TestStageFailures(t *testing.T) {
	t.Run("transcription", func(t *testing.T) {
		f, o := newFixture(t, 10, query.Options{})
		boom := errors.New("asr offline")
		f.stt.TranscribeFunc = func(context.Context, io.Reader, string) (string, error) {
			return "", boom
		}

		_, err := o.Handle(context.Background(), query.Request{DeviceID: "d", Audio: []byte("wav")})
		require.Error(t, err)
		assert.Equal(t, query.StageTranscribe, query.StageOf(err))
		assert.ErrorIs(t, err, boom)

		// Later stages never ran.
		assert.Empty(t, f.reason.Calls())
		assert.Empty(t, f.tts.Calls())
	})

	t.Run("reasoning protocol violation", func(t *testing.T) {
		f, o := newFixture(t, 10, query.Options{})
		f.reason.GenerateFunc = func(context.Context, string, []byte) (string, error) {
			return "", fmt.Errorf("%w: {\"done\":true}", reason.ErrProtocol)
		}

		_, err := o.Handle(context.Background(), query.Request{DeviceID: "d", Audio: []byte("wav")})
		require.Error(t, err)
		assert.Equal(t, query.StageReason, query.StageOf(err))
		assert.ErrorIs(t, err, reason.ErrProtocol)
		assert.Empty(t, f.tts.Calls())
	})

	t.Run("synthesis", func(t *testing.T) {
		f, o := newFixture(t, 10, query.Options{})
		boom := errors.New("voice gone")
		f.tts.SynthesizeFunc = func(context.Context, string) (*tts.AudioResult, error) {
			return nil, boom
		}

		_, err := o.Handle(context.Background(), query.Request{DeviceID: "d", Audio: []byte("wav")})
		require.Error(t, err)
		assert.Equal(t, query.StageSynthesize, query.StageOf(err))
	})

	t.Run("failure emits failed state", func(t *testing.T) {
		f, o := newFixture(t, 10, query.Options{})
		f.reason.GenerateFunc = func(context.Context, string, []byte) (string, error) {
			return "", errors.New("nope")
		}
		o.Handle(context.Background(), query.Request{DeviceID: "d", Audio: []byte("wav")})

		last := f.events[len(f.events)-1]
		assert.Equal(t, query.StateFailed, last.State)
		assert.Equal(t, query.StageReason, last.Stage)
		assert.NotEmpty(t, last.Error)
	})
}

func TestStageTimeout(t *testing.T) {
	f, o := newFixture(t, 10, query.Options{TTSTimeout: 10 * time.Millisecond})
	tts.WithLatency(f.tts, 200*time.Millisecond)

	_, err := o.Handle(context.Background(), query.Request{DeviceID: "d", Audio: []byte("wav")})
	require.Error(t, err)
	assert.True(t, query.IsTimeout(err))
	assert.Equal(t, query.StageSynthesize, query.StageOf(err))
}

func TestConcurrentIngestDoesNotSwitchFrames(t *testing.T) {
	f, o := newFixture(t, 2, query.Options{})
	f.ingestFrame(t, "cam-a", 1, []byte("jpeg-t1"))
	f.ingestFrame(t, "cam-a", 2, []byte("jpeg-t2"))

	// While transcription is in flight, newer frames arrive and push
	// the snapshotted frame out of the buffer.
	f.stt.TranscribeFunc = func(context.Context, io.Reader, string) (string, error) {
		f.ingestFrame(t, "cam-a", 3, []byte("jpeg-t3"))
		f.ingestFrame(t, "cam-a", 4, []byte("jpeg-t4"))
		return "what do you see", nil
	}

	res, err := o.Handle(context.Background(), query.Request{DeviceID: "cam-a", Audio: []byte("wav")})
	require.NoError(t, err)

	// The pipeline used the frame that was latest when it started.
	assert.EqualValues(t, 2, res.FrameTimestamp)
	assert.Equal(t, []byte("jpeg-t2"), f.reason.LastCall().Image)

	// With the query done, the evicted frame's blob is released.
	assert.False(t, f.backend.Has("frames/cam-a_2.jpg"))
	assert.True(t, f.backend.Has("frames/cam-a_3.jpg"))
	assert.True(t, f.backend.Has("frames/cam-a_4.jpg"))
}

func TestVanishedFrameBlobDegradesToAudioOnly(t *testing.T) {
	f, o := newFixture(t, 10, query.Options{})
	f.registry.GetOrCreate("d").Frames.Append(frame.Record{
		Timestamp: 1,
		Locator:   storage.NewLocator("frames/never-written.jpg"),
	})

	res, err := o.Handle(context.Background(), query.Request{DeviceID: "d", Audio: []byte("wav")})
	require.NoError(t, err)
	assert.False(t, res.HasFrame)
	assert.Nil(t, f.reason.LastCall().Image)
}

func TestMetrics(t *testing.T) {
	f, o := newFixture(t, 10, query.Options{})

	o.Handle(context.Background(), query.Request{DeviceID: "d", Audio: []byte("wav")})

	f.reason.GenerateFunc = func(context.Context, string, []byte) (string, error) {
		return "", errors.New("nope")
	}
	o.Handle(context.Background(), query.Request{DeviceID: "d", Audio: []byte("wav")})

	m := o.Metrics()
	assert.EqualValues(t, 2, m.QueriesTotal)
	assert.EqualValues(t, 1, m.QueriesFailed)
}
