// Copyright 2024-2026 Aiku AI

package onebot

import "encoding/json"

// Actions the adapter issues over the gateway connection.
const (
	ActionGetForwardMsg      = "get_forward_msg"
	ActionGetGroupInfo       = "get_group_info"
	ActionGetGroupMemberInfo = "get_group_member_info"
	ActionGetLoginInfo       = "get_login_info"
)

const StatusOK = "ok"

// APIRequest is an action call sent to the gateway. Echo correlates the
// response with the waiting caller.
type APIRequest struct {
	Action string `json:"action"`
	Params any    `json:"params,omitempty"`
	Echo   string `json:"echo"`
}

// APIResponse is the gateway's reply to an APIRequest.
type APIResponse struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Wording string          `json:"wording,omitempty"`
	Echo    string          `json:"echo"`
}

// OK reports whether the action succeeded.
func (r *APIResponse) OK() bool {
	return r.Status == StatusOK
}

type GetForwardMsgParams struct {
	MessageID string `json:"message_id"`
}

type ForwardMessages struct {
	Messages []ForwardNode `json:"messages"`
}

type GetGroupInfoParams struct {
	GroupID int64 `json:"group_id"`
}

type GroupInfo struct {
	GroupID     Int    `json:"group_id"`
	GroupName   string `json:"group_name"`
	MemberCount int    `json:"member_count,omitempty"`
}

type GetGroupMemberInfoParams struct {
	GroupID int64 `json:"group_id"`
	UserID  int64 `json:"user_id"`
	NoCache bool  `json:"no_cache,omitempty"`
}

type MemberInfo struct {
	GroupID  Int    `json:"group_id"`
	UserID   Int    `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card,omitempty"`
}

type LoginInfo struct {
	UserID   Int    `json:"user_id"`
	Nickname string `json:"nickname"`
}
