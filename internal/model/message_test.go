package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageID_Namespaces(t *testing.T) {
	local := MessageID{Origin: OriginLocal, Value: "7"}
	server := ServerMessageID("7")
	require.NotEqual(t, local, server)

	a, b := NewLocalID(), NewLocalID()
	require.NotEqual(t, a, b)
	require.Equal(t, OriginLocal, a.Origin)
	require.False(t, a.IsZero())
	require.True(t, MessageID{}.IsZero())
	require.Equal(t, "server:7", server.String())
}

func TestServerID_JSON(t *testing.T) {
	var body struct {
		A ServerID `json:"a"`
		B ServerID `json:"b"`
		C ServerID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"abc","b":17,"c":null}`), &body))
	require.Equal(t, ServerID("abc"), body.A)
	require.Equal(t, ServerID("17"), body.B)
	require.Equal(t, ServerID(""), body.C)

	require.Error(t, json.Unmarshal([]byte(`{"a":true}`), &body))
}

func TestChatRequest_NullSession(t *testing.T) {
	data, err := json.Marshal(ChatRequest{Query: "hola"})
	require.NoError(t, err)
	require.JSONEq(t, `{"query":"hola","session_id":null}`, string(data))

	data, err = json.Marshal(ChatRequest{Query: "hola", SessionID: "abc"})
	require.NoError(t, err)
	require.JSONEq(t, `{"query":"hola","session_id":"abc"}`, string(data))
}

func TestParseRole(t *testing.T) {
	require.Equal(t, RoleUser, ParseRole("user"))
	require.Equal(t, RoleAssistant, ParseRole("ai"))
	require.Equal(t, RoleAssistant, ParseRole("assistant"))
}

func TestMessageClone(t *testing.T) {
	m := Message{Steps: []string{"a"}, Status: "working"}
	c := m.Clone()
	c.Steps[0] = "b"
	require.Equal(t, "a", m.Steps[0])
	require.True(t, m.Pending())
}

func TestHistoryMessage(t *testing.T) {
	var history SessionHistory
	raw := `{"id":3,"title":"Saldo","messages":[
		{"id":10,"text":"¿Saldo?","sender":"user","timestamp":"2024-03-01T10:00:00"},
		{"id":11,"text":"Tu saldo es 420","sender":"ai","timestamp":"2024-03-01T10:00:05","steps":["Buscando"]},
		{"text":"sin id","sender":"ai"}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &history))
	require.Equal(t, ServerID("3"), history.ID)
	require.Len(t, history.Messages, 3)

	user := history.Messages[0].Message()
	require.Equal(t, ServerMessageID("10"), user.ID)
	require.Equal(t, RoleUser, user.Role)

	reply := history.Messages[1].Message()
	require.Equal(t, RoleAssistant, reply.Role)
	require.Equal(t, []string{"Buscando"}, reply.Steps)
	require.False(t, reply.Pending())

	orphan := history.Messages[2].Message()
	require.Equal(t, OriginLocal, orphan.ID.Origin)
}
