package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sightline-ai/go-sightline/pkg/frame"
	"github.com/sightline-ai/go-sightline/pkg/query"
	"github.com/sightline-ai/go-sightline/pkg/reason"
)

// deviceID resolves the device identifier for a request, falling back
// to the caller's network origin when no explicit ID was sent.
func (s *Server) deviceID(c *fiber.Ctx) string {
	if id := c.FormValue("device_id"); id != "" {
		return id
	}
	return c.IP()
}

// sanitizeKeyPart makes a device ID safe to embed in a storage key.
func sanitizeKeyPart(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, id)
}

// handleImageStream ingests one frame into the device's rolling buffer.
func (s *Server) handleImageStream(c *fiber.Ctx) error {
	deviceID := s.deviceID(c)

	fh, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no_image"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no_image"})
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil || len(data) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no_image"})
	}

	// The sequence suffix keeps concurrent ingests from overwriting
	// each other when timestamps collide at second resolution.
	ts := time.Now().Unix()
	key := fmt.Sprintf("frames/%s_%d_%06d.jpg", sanitizeKeyPart(deviceID), ts, s.ingestSeq.Add(1))

	loc, err := s.cfg.Backend.Save(key, data)
	if err != nil {
		s.logger.Error("failed to store frame", "device_id", deviceID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage_failed"})
	}

	sess := s.cfg.Registry.GetOrCreate(deviceID)
	sess.Frames.Append(frame.Record{Timestamp: ts, Locator: loc})
	s.framesIngested.Add(1)

	if s.cfg.Events != nil {
		s.cfg.Events.BroadcastJSON(fiber.Map{
			"type":      "frame_ingested",
			"device_id": deviceID,
			"timestamp": ts,
			"bytes":     len(data),
		})
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

// handleQuery runs one voice query through the pipeline and returns
// the synthesized answer audio.
func (s *Server) handleQuery(c *fiber.Ctx) error {
	deviceID := s.deviceID(c)

	fh, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no_audio"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no_audio"})
	}
	audio, err := io.ReadAll(f)
	f.Close()
	if err != nil || len(audio) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no_audio"})
	}

	res, err := s.cfg.Orchestrator.Handle(c.UserContext(), query.Request{
		DeviceID: deviceID,
		Audio:    audio,
	})
	if err != nil {
		return s.queryError(c, err)
	}

	c.Set("Content-Type", res.Format.Encoding.ContentType())
	c.Set("X-Request-ID", res.RequestID)
	return c.Send(res.Audio)
}

// queryError maps pipeline failures to machine-readable statuses.
func (s *Server) queryError(c *fiber.Ctx, err error) error {
	if errors.Is(err, query.ErrNoAudio) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no_audio"})
	}

	if query.IsTimeout(err) {
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
			"error": "stage_timeout",
			"stage": string(query.StageOf(err)),
		})
	}

	switch query.StageOf(err) {
	case query.StageTranscribe:
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "transcription_failed"})
	case query.StageReason:
		code := "reasoning_failed"
		if errors.Is(err, reason.ErrProtocol) {
			code = "reasoning_protocol"
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": code})
	case query.StageSynthesize:
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "synthesis_failed"})
	}

	var storageErr *query.StorageError
	if errors.As(err, &storageErr) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage_failed"})
	}

	s.logger.Error("unclassified query failure", "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal"})
}

// handleHealthz reports collaborator reachability.
func (s *Server) handleHealthz(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := fiber.Map{}
	healthy := true
	for name, check := range map[string]func(context.Context) error{
		"stt":    s.cfg.STT.Health,
		"reason": s.cfg.Reason.Health,
		"tts":    s.cfg.TTS.Health,
	} {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	status := fiber.StatusOK
	if !healthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"checks": checks})
}

// handleStatus returns server-wide counters.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	m := s.cfg.Orchestrator.Metrics()
	clients := 0
	if s.cfg.Events != nil {
		clients = s.cfg.Events.ClientCount()
	}
	return c.JSON(fiber.Map{
		"uptime_seconds":  int64(time.Since(s.started).Seconds()),
		"devices":         s.cfg.Registry.Len(),
		"frames_ingested": s.framesIngested.Load(),
		"event_clients":   clients,
		"queries":         m,
	})
}

// DeviceInfo is one device's entry in the /api/devices payload.
type DeviceInfo struct {
	DeviceID        string `json:"device_id"`
	Frames          int    `json:"frames"`
	LatestTimestamp int64  `json:"latest_timestamp,omitempty"`
	FirstSeen       string `json:"first_seen"`
}

// handleDevices lists known devices and their frame buffers.
func (s *Server) handleDevices(c *fiber.Ctx) error {
	sessions := s.cfg.Registry.Snapshot()
	out := make([]DeviceInfo, 0, len(sessions))
	for _, sess := range sessions {
		info := DeviceInfo{
			DeviceID:  sess.DeviceID,
			Frames:    sess.Frames.Len(),
			FirstSeen: sess.CreatedAt.UTC().Format(time.RFC3339),
		}
		if recs := sess.Frames.Records(); len(recs) > 0 {
			info.LatestTimestamp = recs[len(recs)-1].Timestamp
		}
		out = append(out, info)
	}
	return c.JSON(out)
}
