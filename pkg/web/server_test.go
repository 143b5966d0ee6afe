package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
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
	"github.com/sightline-ai/go-sightline/pkg/web"
)

type stack struct {
	backend  *storage.Memory
	registry *session.Registry
	stt      *stt.Mock
	reason   *reason.Mock
	tts      *tts.Mock
	server   *web.Server
}

func newStack(t *testing.T) *stack {
	t.Helper()
	s := &stack{
		backend: storage.NewMemory(),
		stt:     stt.NewMock("what is this"),
		reason:  reason.NewMock("it is a mug"),
		tts:     tts.NewMock(),
	}
	s.registry = session.NewRegistry(func(string) *frame.Store {
		return frame.NewStore(s.backend, 10, nil)
	})
	orch := query.New(s.registry, s.backend, s.stt, s.reason, s.tts, query.Options{})
	s.server = web.NewServer(web.Config{
		Registry:     s.registry,
		Backend:      s.backend,
		Orchestrator: orch,
		STT:          s.stt,
		Reason:       s.reason,
		TTS:          s.tts,
	})
	return s
}

// multipartBody builds a form with optional device_id and one file field.
func multipartBody(t *testing.T, deviceID, field, filename string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if deviceID != "" {
		require.NoError(t, w.WriteField("device_id", deviceID))
	}
	if field != "" {
		fw, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func post(t *testing.T, s *stack, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	resp, err := s.server.App().Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func TestImageStream(t *testing.T) {
	t.Run("ingests a frame", func(t *testing.T) {
		s := newStack(t)
		body, ct := multipartBody(t, "cam-1", "image", "frame.jpg", []byte("jpeg-bytes"))
		resp := post(t, s, "/image_stream", body, ct)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		sess := s.registry.GetOrCreate("cam-1")
		require.Equal(t, 1, sess.Frames.Len())

		h, ok := sess.Frames.Latest()
		require.True(t, ok)
		defer h.Release()
		data, err := storage.ReadAll(s.backend, h.Record().Locator)
		require.NoError(t, err)
		assert.Equal(t, []byte("jpeg-bytes"), data)
	})

	t.Run("rejects missing image", func(t *testing.T) {
		s := newStack(t)
		body, ct := multipartBody(t, "cam-1", "", "", nil)
		resp := post(t, s, "/image_stream", body, ct)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, 0, s.registry.GetOrCreate("cam-1").Frames.Len())
	})

	t.Run("rapid ingests never collide", func(t *testing.T) {
		s := newStack(t)
		for i := 0; i < 5; i++ {
			body, ct := multipartBody(t, "cam-1", "image", "frame.jpg", []byte{byte(i)})
			resp := post(t, s, "/image_stream", body, ct)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}
		// All five blobs exist despite identical second-resolution
		// timestamps.
		assert.Equal(t, 5, s.backend.Len())
		assert.Equal(t, 5, s.registry.GetOrCreate("cam-1").Frames.Len())
	})

	t.Run("falls back to network origin for device id", func(t *testing.T) {
		s := newStack(t)
		body, ct := multipartBody(t, "", "image", "frame.jpg", []byte("x"))
		resp := post(t, s, "/image_stream", body, ct)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 1, s.registry.Len())
	})
}

func TestQuery(t *testing.T) {
	t.Run("returns synthesized audio", func(t *testing.T) {
		s := newStack(t)

		body, ct := multipartBody(t, "cam-1", "image", "f.jpg", []byte("jpeg"))
		post(t, s, "/image_stream", body, ct)

		body, ct = multipartBody(t, "cam-1", "audio", "q.wav", []byte("wav"))
		resp := post(t, s, "/query", body, ct)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

		audio, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.NotEmpty(t, audio)

		// The pipeline saw the ingested frame.
		require.NotNil(t, s.reason.LastCall())
		assert.Equal(t, []byte("jpeg"), s.reason.LastCall().Image)
	})

	t.Run("works for an unseen device without frames", func(t *testing.T) {
		s := newStack(t)
		body, ct := multipartBody(t, "cam-new", "audio", "q.wav", []byte("wav"))
		resp := post(t, s, "/query", body, ct)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotNil(t, s.reason.LastCall())
		assert.Nil(t, s.reason.LastCall().Image)
	})

	t.Run("rejects missing audio", func(t *testing.T) {
		s := newStack(t)
		body, ct := multipartBody(t, "cam-1", "", "", nil)
		resp := post(t, s, "/query", body, ct)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var payload map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.Equal(t, "no_audio", payload["error"])
	})

	t.Run("maps protocol violations", func(t *testing.T) {
		s := newStack(t)
		s.reason.GenerateFunc = func(context.Context, string, []byte) (string, error) {
			return "", reason.ErrProtocol
		}

		body, ct := multipartBody(t, "cam-1", "audio", "q.wav", []byte("wav"))
		resp := post(t, s, "/query", body, ct)

		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		var payload map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.Equal(t, "reasoning_protocol", payload["error"])
	})

	t.Run("maps collaborator-reported failures", func(t *testing.T) {
		s := newStack(t)
		s.reason.GenerateFunc = func(context.Context, string, []byte) (string, error) {
			return "", &reason.ModelError{Message: "overloaded"}
		}

		body, ct := multipartBody(t, "cam-1", "audio", "q.wav", []byte("wav"))
		resp := post(t, s, "/query", body, ct)

		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		var payload map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.Equal(t, "reasoning_failed", payload["error"])
	})

	t.Run("maps stage timeouts", func(t *testing.T) {
		s := newStack(t)
		orch := query.New(s.registry, s.backend, s.stt, s.reason,
			tts.WithLatency(tts.NewMock(), 200*time.Millisecond),
			query.Options{TTSTimeout: 10 * time.Millisecond})
		srv := web.NewServer(web.Config{
			Registry:     s.registry,
			Backend:      s.backend,
			Orchestrator: orch,
			STT:          s.stt,
			Reason:       s.reason,
			TTS:          s.tts,
		})

		body, ct := multipartBody(t, "cam-1", "audio", "q.wav", []byte("wav"))
		req, err := http.NewRequest(http.MethodPost, "/query", body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", ct)
		resp, err := srv.App().Test(req, 5000)
		require.NoError(t, err)

		assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
		var payload map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.Equal(t, "stage_timeout", payload["error"])
		assert.Equal(t, "synthesize", payload["stage"])
	})
}

func TestStatusEndpoints(t *testing.T) {
	s := newStack(t)

	body, ct := multipartBody(t, "cam-1", "image", "f.jpg", []byte("jpeg"))
	post(t, s, "/image_stream", body, ct)
	body, ct = multipartBody(t, "cam-1", "audio", "q.wav", []byte("wav"))
	post(t, s, "/query", body, ct)

	t.Run("status", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/api/status", nil)
		resp, err := s.server.App().Test(req, 5000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var payload struct {
			Devices        int `json:"devices"`
			FramesIngested int `json:"frames_ingested"`
			Queries        struct {
				QueriesTotal int `json:"queries_total"`
			} `json:"queries"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.Equal(t, 1, payload.Devices)
		assert.Equal(t, 1, payload.FramesIngested)
		assert.Equal(t, 1, payload.Queries.QueriesTotal)
	})

	t.Run("devices", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/api/devices", nil)
		resp, err := s.server.App().Test(req, 5000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var devices []web.DeviceInfo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&devices))
		require.Len(t, devices, 1)
		assert.Equal(t, "cam-1", devices[0].DeviceID)
		assert.Equal(t, 1, devices[0].Frames)
	})

	t.Run("healthz healthy", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
		resp, err := s.server.App().Test(req, 5000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("healthz degraded", func(t *testing.T) {
		s := newStack(t)
		s.reason.HealthFunc = func(context.Context) error {
			return &reason.APIError{StatusCode: 500, Message: "down"}
		}
		req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
		resp, err := s.server.App().Test(req, 5000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}
