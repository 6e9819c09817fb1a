package ir

// Version constants for the document schema and the server.
const (
	// DocumentSchema identifies the structural pipeline document format.
	DocumentSchema = "https://ta2.dev/schemas/pipeline/v1"

	// ProtocolVersion is the TA2/TA3 protocol version reported by Hello.
	ProtocolVersion = "2018.7.7"

	// ServerVersion is the TA2 server version.
	ServerVersion = "0.3.0"

	// UserAgent is reported by Hello and stamped into pipeline sources.
	UserAgent = "ta2-go"
)
