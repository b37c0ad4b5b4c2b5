package httpapi

// Result 统一响应包装
// - code: ResultSuccess = 2000，失败时为具体错误码
// - type: 'success' | 'error'
// - message: string
// - result: any
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1

	// 调度专用错误码（前端据此区分提示文案）
	ResultValidation        = 40001
	ResultNotFound          = 40401
	ResultConflict          = 40901
	ResultInvalidTransition = 40902
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}

// FailCode carries a specific error code and an optional payload (conflict
// responses carry the blocking assignments there).
func FailCode(code int, message string, result any) Result[any] {
	return Result[any]{Code: code, Type: "error", Message: message, Result: result}
}
