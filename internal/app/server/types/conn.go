package types

// IConn 与协议无关的媒体连接，一个连接对应一个房间的 agent 会话

const (
	TransportTypeWebsocket = "websocket"
)

type IConn interface {
	// 发送命令/信令数据
	SendCmd(msg []byte) error
	// 接收命令/信令数据，timeout 单位秒
	RecvCmd(timeout int) ([]byte, error)
	// 发送语音数据
	SendAudio(audio []byte) error
	// 接收语音数据，timeout 单位秒
	RecvAudio(timeout int) ([]byte, error)

	GetRoom() string

	Close() error
	OnClose(func(room string))

	GetTransportType() string
}

type OnNewConnection func(conn IConn)
