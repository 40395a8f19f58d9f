package tonbridge

// ResponseType tags a response chunk delivered by the native engine.
type ResponseType uint32

const (
	ResponseSuccess    ResponseType = 0
	ResponseError      ResponseType = 1
	ResponseNop        ResponseType = 2
	ResponseAppRequest ResponseType = 3
	ResponseAppNotify  ResponseType = 4
	// ResponseCustom and above carry function-specific stream data.
	ResponseCustom ResponseType = 100
)

// String returns the lower-case name used in logs and metric labels.
func (t ResponseType) String() string {
	switch t {
	case ResponseSuccess:
		return "success"
	case ResponseError:
		return "error"
	case ResponseNop:
		return "nop"
	case ResponseAppRequest:
		return "app_request"
	case ResponseAppNotify:
		return "app_notify"
	}
	if t >= ResponseCustom {
		return "custom"
	}
	return "unknown"
}

// Response is one chunk of the reply to an asynchronous request.
type Response struct {
	Params    string
	RequestID uint32
	Type      ResponseType
	Finished  bool
}

// ResponseHandler receives responses from the native side.
// Implementations are called from arbitrary goroutines, including threads
// the Go runtime did not create, and must not block.
type ResponseHandler interface {
	HandleResponse(Response)
}

// ResponseHandlerFunc adapts a function to ResponseHandler.
type ResponseHandlerFunc func(Response)

// HandleResponse calls f(r).
func (f ResponseHandlerFunc) HandleResponse(r Response) {
	f(r)
}

// Engine is the managed-to-native call surface of a loaded client engine.
// Context ids are the engine's own; callers above the engine layer deal in
// handle table handles instead.
type Engine interface {
	// CreateContext parses config and returns the serialized result
	// envelope holding either the new context id or an error.
	CreateContext(config string) (string, error)

	// DestroyContext releases the engine resources behind id.
	DestroyContext(id uint32)

	// Request starts an asynchronous call. Responses arrive later through
	// the engine's ResponseHandler tagged with requestID.
	Request(id uint32, function, params string, requestID uint32) error

	// RequestSync performs a call and blocks until the engine produces a
	// serialized result or error envelope.
	RequestSync(id uint32, function, params string) (string, error)

	// Close stops the engine. Outstanding requests may never resolve.
	Close() error
}
