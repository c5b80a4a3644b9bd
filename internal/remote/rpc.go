package remote

import (
	"encoding/json"
	"fmt"
)

// Error codes the repository uses for conditions callers act on.
const (
	CodeDocumentNotFound = 404
	CodeDocumentConflict = 409
	CodeDocumentLocked   = 423
)

// RPCError is an error reported by the repository.
type RPCError struct {
	Code    int64  `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is lets errors.Is match repository codes against the package sentinels.
func (e *RPCError) Is(target error) bool {
	switch target {
	case ErrDocumentNotFound:
		return e.Code == CodeDocumentNotFound
	case ErrDocumentConflict:
		return e.Code == CodeDocumentConflict
	case ErrDocumentLocked:
		return e.Code == CodeDocumentLocked
	}
	return false
}

// RPCRequest is an outgoing call.
type RPCRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params,omitempty"`
}

// RPCResponse is the answer to an RPCRequest with the same ID.
type RPCResponse struct {
	ID     string          `json:"id"`
	Error  *RPCError       `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}
