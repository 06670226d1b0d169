package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"hedra-avatar-agent/internal/app/server/types"
	log "hedra-avatar-agent/logger"

	"github.com/gorilla/websocket"
)

var ErrConnClosed = errors.New("connection is closed")

const readTimeout = 120 * time.Second

// WebSocketConn 实现 types.IConn 接口，适配 WebSocket 连接
type WebSocketConn struct {
	ctx    context.Context
	cancel context.CancelFunc

	onCloseCbList []func(room string)
	closeOnce     sync.Once

	conn *websocket.Conn
	room string

	recvCmdChan   chan []byte
	recvAudioChan chan []byte

	// 连接状态标记
	isClosed bool
	sync.RWMutex
}

// NewWebSocketConn 创建连接并启动读协程，读失败时自动关闭
func NewWebSocketConn(conn *websocket.Conn, room string) *WebSocketConn {
	ctx, cancel := context.WithCancel(context.Background())
	instance := &WebSocketConn{
		ctx:           ctx,
		cancel:        cancel,
		conn:          conn,
		room:          room,
		recvCmdChan:   make(chan []byte, 100),
		recvAudioChan: make(chan []byte, 100),
	}

	go instance.readLoop()
	return instance
}

func (w *WebSocketConn) readLoop() {
	defer w.Close()
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		_ = w.conn.SetReadDeadline(time.Now().Add(readTimeout))
		msgType, data, err := w.conn.ReadMessage()
		if err != nil {
			if !w.IsClosed() {
				log.Infof("房间 %s 读取消息结束: %v", w.room, err)
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			select {
			case w.recvCmdChan <- data:
			default:
				log.Errorf("recv cmd channel is full")
			}
		case websocket.BinaryMessage:
			select {
			case w.recvAudioChan <- data:
			default:
				log.Errorf("recv audio channel is full")
			}
		}
	}
}

func (w *WebSocketConn) write(msgType int, data []byte) error {
	w.Lock()
	defer w.Unlock()

	if w.isClosed {
		return ErrConnClosed
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *WebSocketConn) SendCmd(msg []byte) error {
	if err := w.write(websocket.TextMessage, msg); err != nil {
		log.Errorf("send cmd error: %v", err)
		return err
	}
	return nil
}

func (w *WebSocketConn) SendAudio(audio []byte) error {
	if err := w.write(websocket.BinaryMessage, audio); err != nil {
		log.Errorf("send audio error: %v", err)
		return err
	}
	return nil
}

func (w *WebSocketConn) recv(ch chan []byte, timeout int) ([]byte, error) {
	timer := time.NewTimer(time.Duration(timeout) * time.Second)
	defer timer.Stop()
	select {
	case msg := <-ch:
		return msg, nil
	case <-w.ctx.Done():
		return nil, ErrConnClosed
	case <-timer.C:
		return nil, errors.New("timeout")
	}
}

func (w *WebSocketConn) RecvCmd(timeout int) ([]byte, error) {
	return w.recv(w.recvCmdChan, timeout)
}

func (w *WebSocketConn) RecvAudio(timeout int) ([]byte, error) {
	return w.recv(w.recvAudioChan, timeout)
}

// Close 可重复调用，关闭回调只执行一次
func (w *WebSocketConn) Close() error {
	w.Lock()
	if w.isClosed {
		w.Unlock()
		return nil
	}
	w.isClosed = true
	w.cancel()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := w.conn.Close()
	cbs := append([]func(string){}, w.onCloseCbList...)
	w.Unlock()

	w.closeOnce.Do(func() {
		for _, cb := range cbs {
			if cb != nil {
				cb(w.room)
			}
		}
	})
	return err
}

func (w *WebSocketConn) OnClose(cb func(room string)) {
	w.Lock()
	defer w.Unlock()
	w.onCloseCbList = append(w.onCloseCbList, cb)
}

func (w *WebSocketConn) GetRoom() string {
	return w.room
}

func (w *WebSocketConn) GetTransportType() string {
	return types.TransportTypeWebsocket
}

// IsClosed 检查连接是否已关闭
func (w *WebSocketConn) IsClosed() bool {
	w.RLock()
	defer w.RUnlock()
	return w.isClosed
}
