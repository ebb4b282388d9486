package wire

// HelloMessage is the crypto handshake frame a client sends first on a
// front or back socket connection when crypto is enabled: its own
// Curve25519 public key, checked against the broker's roster and IP
// allow-list before any data frame is accepted (spec §4.2.3).
type HelloMessage struct {
	PublicKey string `json:"public_key"`
}

// HelloAck is the broker's reply to HelloMessage: whether the connection
// was admitted, and why not when it was refused.
type HelloAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
