// Package mock provides test doubles for Discord interaction testing.
package mock

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Messenger records Discord REST calls for test assertions. It satisfies
// discord.Messenger. Safe for concurrent use.
type Messenger struct {
	mu sync.Mutex

	// Responses records all InteractionRespond calls.
	Responses []*discordgo.InteractionResponse

	// Edits records all InteractionResponseEdit calls.
	Edits []*discordgo.WebhookEdit

	// FollowUps records all FollowupMessageCreate calls.
	FollowUps []*discordgo.WebhookParams

	// Sent records all ChannelMessageSendComplex calls.
	Sent []*discordgo.MessageSend

	// MessageEdits records all ChannelMessageEditComplex calls.
	MessageEdits []*discordgo.MessageEdit

	// Err is returned by every method when non-nil, allowing error injection.
	Err error

	seq int
}

func (m *Messenger) message(channelID string) *discordgo.Message {
	m.seq++
	return &discordgo.Message{ID: fmt.Sprintf("mock-msg-%d", m.seq), ChannelID: channelID}
}

// InteractionRespond records the response and returns the configured error.
func (m *Messenger) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, resp)
	return m.Err
}

// InteractionResponseEdit records the edit and returns a stub message in the
// interaction's channel.
func (m *Messenger) InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Edits = append(m.Edits, edit)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.message(i.ChannelID), nil
}

// FollowupMessageCreate records the follow-up and returns a stub message.
func (m *Messenger) FollowupMessageCreate(i *discordgo.Interaction, _ bool, params *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FollowUps = append(m.FollowUps, params)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.message(i.ChannelID), nil
}

// ChannelMessageSendComplex records the message and returns a stub.
func (m *Messenger) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, data)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.message(channelID), nil
}

// ChannelMessageEditComplex records the edit and returns the edited message.
func (m *Messenger) ChannelMessageEditComplex(edit *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessageEdits = append(m.MessageEdits, edit)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: edit.ID, ChannelID: edit.Channel}, nil
}

// SetErr sets the injected error.
func (m *Messenger) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// LastResponse returns the most recently recorded response, or nil.
func (m *Messenger) LastResponse() *discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Responses) == 0 {
		return nil
	}
	return m.Responses[len(m.Responses)-1]
}

// LastEdit returns the most recently recorded deferred-reply edit, or nil.
func (m *Messenger) LastEdit() *discordgo.WebhookEdit {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Edits) == 0 {
		return nil
	}
	return m.Edits[len(m.Edits)-1]
}

// LastFollowUp returns the most recently recorded follow-up, or nil.
func (m *Messenger) LastFollowUp() *discordgo.WebhookParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.FollowUps) == 0 {
		return nil
	}
	return m.FollowUps[len(m.FollowUps)-1]
}

// LastSent returns the most recently posted channel message, or nil.
func (m *Messenger) LastSent() *discordgo.MessageSend {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	return m.Sent[len(m.Sent)-1]
}

// Counts returns how many responses, edits, follow-ups, channel messages
// and message edits were recorded, in that order.
func (m *Messenger) Counts() (responses, edits, followUps, sent, messageEdits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Responses), len(m.Edits), len(m.FollowUps), len(m.Sent), len(m.MessageEdits)
}

// Reset clears all recorded calls and errors.
func (m *Messenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = nil
	m.Edits = nil
	m.FollowUps = nil
	m.Sent = nil
	m.MessageEdits = nil
	m.Err = nil
}
