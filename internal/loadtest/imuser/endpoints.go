// Package imuser implements the Fleets IM user behaviors: the standard user
// that logs in and chats, and the administrative user that pages through the
// user list.
package imuser

// Fleets API paths.
const (
	PathLogin            = "/api/user/login"
	PathLogout           = "/api/user/logout"
	PathUserInfo         = "/api/user/info"
	PathUserList         = "/api/user/list"
	PathSendMessage      = "/api/message/send"
	PathMessageHistory   = "/api/message/history"
	PathFriendList       = "/api/friend/list"
	PathFriendSearch     = "/api/friend/search"
	PathConversationList = "/api/conversation/list"
)

// Request names that are not task names.
const (
	RequestLogin     = "user login"
	RequestLogout    = "user logout"
	RequestAdminList = "admin user list"
)

// Message kinds sent by the send message task.
const (
	MessageTypeSingle = 1
	ContentTypeText   = 1
)

const (
	firstPage       = "1"
	historyPageSize = "20"
	maxMessageSeq   = 10000
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sendMessageRequest struct {
	ReceiverID  int    `json:"receiverId"`
	MessageType int    `json:"messageType"`
	ContentType int    `json:"contentType"`
	Content     string `json:"content"`
}
