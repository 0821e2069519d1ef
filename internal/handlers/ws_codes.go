package handlers

// Custom WebSocket close codes used by the presence handler. More specific
// reasons for closure than the standard codes.
const (
	BadSubprotocolError = 3000 // Client connected with an unsupported subprotocol.
	InvalidLobbyIDError = 3001 // Target lobby ID in the WS URL does not exist or is invalid.
)
