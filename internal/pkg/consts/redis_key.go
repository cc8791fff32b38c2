package consts

const (
	TokenRevokedKey  = "auth:token:revoked:"
	SendRateLimitKey = "chat:send:ratelimit:"
)
