package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/worker"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// conn serialises writes to one socket; gorilla allows a single writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(resp worker.Response, frame int) error {
	var (
		data []byte
		err  error
	)
	if frame == websocket.BinaryMessage {
		data, err = worker.EncodeResponseMsgpack(nil, resp)
	} else {
		data, err = json.Marshal(resp)
	}
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(frame, data)
}

func (s *Server) handleSocket(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	cn := &conn{ws: ws}
	var wg sync.WaitGroup
	defer wg.Wait()

	// Requests still running when the client disconnects are canceled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := s.logger.With("remote", c.RealIP())
	log.Debug("socket opened")
	if err := cn.send(s.host.Ready(), websocket.TextMessage); err != nil {
		return nil
	}

	for {
		frame, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("socket read failed", "err", err)
			}
			log.Debug("socket closed")
			return nil
		}

		req, err := decodeFrame(frame, data)
		if err != nil {
			if err := cn.send(worker.ErrorResponse(req.ID, err), frame); err != nil {
				return nil
			}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := <-s.host.Submit(ctx, req)
			if err := cn.send(resp, frame); err != nil {
				log.Debug("socket write failed", "id", req.ID, "err", err)
			}
		}()
	}
}

func decodeFrame(frame int, data []byte) (worker.Request, error) {
	switch frame {
	case websocket.BinaryMessage:
		return decodeRequest(data, true)
	case websocket.TextMessage:
		return decodeRequest(data, false)
	default:
		return worker.Request{}, kernel.Errorf(kernel.KindProtocol, "socket", "unsupported frame type %d", frame)
	}
}
