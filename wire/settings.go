package wire

// SettingsRequest is the request frame shape for the broker's REQ/REP
// settings service (spec §4.3): a client library version, a verb
// ("settings" or "timecode"), and for "settings" the requesting agent's
// name. ClientPublicKey is present only when the client has crypto
// installed, and is checked against the broker's roster and IP allow-list
// before any settings are served (spec §4.2.3). Shared by
// broker.SettingsService (server) and agent (client).
type SettingsRequest struct {
	ClientVersion   string `json:"client_version"`
	Verb            string `json:"verb"`
	AgentName       string `json:"agent_name,omitempty"`
	ClientPublicKey string `json:"client_public_key,omitempty"`
}

// SettingsResponse mirrors the three-shapes-of-reply table in spec §4.3.
// When the broker has crypto enabled, TOML/Attachment/Timecode travel only
// inside Sealed — see SettingsPayload — so a client missing from the
// roster cannot read them even if it manages to reach the socket.
// CredentialDenied distinguishes an authorization failure from every other
// Error so the agent can surface it as a CredentialError.
type SettingsResponse struct {
	BrokerVersion    string  `json:"broker_version"`
	TOML             string  `json:"toml,omitempty"`
	Attachment       []byte  `json:"attachment,omitempty"`
	Timecode         float64 `json:"timecode,omitempty"`
	Error            string  `json:"error,omitempty"`
	Sealed           []byte  `json:"sealed,omitempty"`
	CredentialDenied bool    `json:"credential_denied,omitempty"`
}

// SettingsPayload is the plaintext shape sealed into SettingsResponse.Sealed
// when the broker has crypto enabled.
type SettingsPayload struct {
	TOML       string  `json:"toml,omitempty"`
	Attachment []byte  `json:"attachment,omitempty"`
	Timecode   float64 `json:"timecode,omitempty"`
}
