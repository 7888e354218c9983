package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the batch job ID
	FieldJobID = "job_id"

	// FieldBatchID is the UPC batch ID
	FieldBatchID = "batch_id"

	// FieldUPC is the product identifier being looked up
	FieldUPC = "upc"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Standard metric fields, attached at the log site for aggregation.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
