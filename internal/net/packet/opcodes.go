package packet

// Protocol version served (1.20.1).
const ProtocolVersion = 763

// Client → server, handshake state.
const (
	C_HANDSHAKE = 0x00
)

// Client → server, login state.
const (
	C_LOGIN_START = 0x00
)

// Client → server, play state.
const (
	C_PLAY_TELEPORT_CONFIRM   = 0x00
	C_PLAY_CHAT_COMMAND       = 0x04
	C_PLAY_INTERACT_ENTITY    = 0x10
	C_PLAY_KEEP_ALIVE         = 0x12
	C_PLAY_POSITION_ON_GROUND = 0x14
	C_PLAY_FULL               = 0x15
	C_PLAY_LOOK_ON_GROUND     = 0x16
	C_PLAY_PLAYER_ACTION      = 0x1D
	C_PLAY_PLAYER_COMMAND     = 0x1E
	C_PLAY_SWING_ARM          = 0x2F
)

// Server → client, login state.
const (
	S_LOGIN_SUCCESS     = 0x02
	S_LOGIN_COMPRESSION = 0x03
)

// Server → client, play state.
const (
	S_PLAY_KEEP_ALIVE    = 0x23
	S_PLAY_CHUNK_DATA    = 0x24
	S_PLAY_SYNC_POSITION = 0x3C
	S_PLAY_CENTER_CHUNK  = 0x4E
	S_PLAY_SYSTEM_CHAT   = 0x64
)
