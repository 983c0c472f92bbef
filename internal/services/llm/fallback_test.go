package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallbackResponder_QuotesLastUserTurn(t *testing.T) {
	reply := FallbackResponder{}.Respond([]Turn{{Role: RoleUser, Content: "hello"}})
	assert.Contains(t, reply, "hello")
}

func TestFallbackResponder_ScansFromEnd(t *testing.T) {
	reply := FallbackResponder{}.Respond([]Turn{
		{Role: RoleUser, Content: "first"},
		{Role: RoleUser, Content: "second"},
		{Role: RoleAssistant, Content: "answer"},
	})
	assert.Contains(t, reply, "'second'")
	assert.NotContains(t, reply, "first")
}

func TestFallbackResponder_NoUserTurn(t *testing.T) {
	assert.Contains(t, FallbackResponder{}.Respond(nil), "your message")
	assert.Contains(t, FallbackResponder{}.Respond([]Turn{{Role: RoleAssistant, Content: "hi"}}), "your message")
}
