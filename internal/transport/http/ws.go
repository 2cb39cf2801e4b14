package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chorus-server-go/internal/contracts/providers"
	"chorus-server-go/internal/domain/voices"
)

const streamWriteTimeout = 10 * time.Second

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamEnvelope is one websocket frame of a streamed synthesis. Data is
// base64 encoded by the JSON marshaller. Exactly one frame carries is_last;
// a frame with error set ends the stream early.
type streamEnvelope struct {
	Sequence int    `json:"seq"`
	Data     []byte `json:"data,omitempty"`
	IsLast   bool   `json:"is_last,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleSynthesizeStream upgrades the connection, reads one synthesis request
// frame and streams the rendered audio back chunk by chunk.
func (s *Service) handleSynthesizeStream(c *gin.Context) {
	socket, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WarnTag("Stream", "websocket upgrade failed: %v", err)
		return
	}
	defer socket.Close()

	_, payload, err := socket.ReadMessage()
	if err != nil {
		return
	}

	var req providers.SynthesisRequest
	if err := sonic.Unmarshal(payload, &req); err != nil {
		s.writeStreamError(socket, "invalid request frame: "+err.Error())
		return
	}
	req.Options.Language = voices.Normalize(req.Options.Language)

	// Cancelling on return unblocks the producer when the client goes away
	// mid-stream.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	chunks, err := s.synth.SynthesizeStream(ctx, req)
	if err != nil {
		s.logger.WarnTag("Stream", "stream synthesis failed: %v", err)
		s.writeStreamError(socket, err.Error())
		return
	}

	for chunk := range chunks {
		if chunk.Err != nil {
			s.writeStreamError(socket, chunk.Err.Error())
			return
		}
		frame := streamEnvelope{
			Sequence: chunk.Sequence,
			Data:     chunk.Data,
			IsLast:   chunk.IsLast,
		}
		if err := s.writeStreamFrame(socket, frame); err != nil {
			s.logger.WarnTag("Stream", "client write failed: %v", err)
			return
		}
	}

	socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(streamWriteTimeout))
}

func (s *Service) writeStreamFrame(socket *websocket.Conn, frame streamEnvelope) error {
	data, err := sonic.Marshal(frame)
	if err != nil {
		return err
	}
	socket.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return socket.WriteMessage(websocket.TextMessage, data)
}

func (s *Service) writeStreamError(socket *websocket.Conn, message string) {
	frame := streamEnvelope{Error: message, IsLast: true}
	if err := s.writeStreamFrame(socket, frame); err != nil {
		s.logger.WarnTag("Stream", "cannot deliver stream error: %v", err)
	}
}
