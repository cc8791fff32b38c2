package consts

// 会话类型
const (
	ConvTypeIndividual int8 = 1
	ConvTypeGroup      int8 = 2

	ConvTypeNameIndividual = "individual"
	ConvTypeNameGroup      = "group"
)

// 消息内容类型
const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
)

// 推送事件名
const (
	EventNewMessage = "new_message"
	EventUserTyping = "user_typing"
)
