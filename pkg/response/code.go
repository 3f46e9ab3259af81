package response

// 业务状态码
const (
	CodeSuccess = 0
	CodeError   = 1

	// 鉴权错误 100xx
	ErrAuthFailed   = 10003
	ErrTokenInvalid = 10004
	ErrNoPermission = 10005

	// 支付订单错误 200xx
	ErrOrderNotFound    = 20001
	ErrRepairInProgress = 20002
	ErrGatewayRejected  = 20003
	ErrOrderInvalid     = 20004
	ErrInconsistent     = 20005

	// 分账错误 300xx
	ErrReceiverNotFound = 30001
	ErrReceiverInvalid  = 30002
	ErrReceiverExists   = 30003
	ErrReceiverBusy     = 30004
	ErrReceiverBound    = 30005
	ErrAllocNotFound    = 30006
	ErrAllocDetail      = 30007

	// 系统错误 500xx
	ErrServerInternal  = 50001
	ErrInvalidParam    = 50002
	ErrTooManyRequests = 50003
	ErrChannelConfig   = 50004
)
