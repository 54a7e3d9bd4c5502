// Package mock provides test doubles for Discord interaction testing.
package mock

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// InteractionResponder records interaction responses for test assertions.
type InteractionResponder struct {
	mu sync.Mutex

	// Responses records all InteractionRespond calls.
	Responses []*discordgo.InteractionResponse

	// Err is returned by InteractionRespond when non-nil, allowing error
	// injection.
	Err error
}

// InteractionRespond records the response and returns the configured error.
func (m *InteractionResponder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, resp)
	return m.Err
}

// LastResponse returns the most recently recorded response, or nil.
func (m *InteractionResponder) LastResponse() *discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Responses) == 0 {
		return nil
	}
	return m.Responses[len(m.Responses)-1]
}

// LastContent returns the text content of the most recent response, or "".
func (m *InteractionResponder) LastContent() string {
	r := m.LastResponse()
	if r == nil || r.Data == nil {
		return ""
	}
	return r.Data.Content
}

// Reset clears all recorded interactions and errors.
func (m *InteractionResponder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = nil
	m.Err = nil
}

// Edit is one recorded ChannelMessageEditEmbed call.
type Edit struct {
	ChannelID string
	MessageID string
	Embed     *discordgo.MessageEmbed
}

// MessageSender records channel messages for test assertions.
type MessageSender struct {
	mu sync.Mutex

	// Sent records all ChannelMessageSendComplex payloads.
	Sent []*discordgo.MessageSend

	// Edits records all ChannelMessageEditEmbed calls.
	Edits []Edit

	// SendErr is returned by ChannelMessageSendComplex when non-nil.
	SendErr error

	// EditErr is returned by ChannelMessageEditEmbed when non-nil.
	EditErr error
}

// ChannelMessageSendComplex records data and returns a message with a
// sequential id.
func (m *MessageSender) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return nil, m.SendErr
	}
	m.Sent = append(m.Sent, data)
	return &discordgo.Message{ID: "msg-" + strconv.Itoa(len(m.Sent)), ChannelID: channelID}, nil
}

// ChannelMessageEditEmbed records the edit.
func (m *MessageSender) ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EditErr != nil {
		return nil, m.EditErr
	}
	m.Edits = append(m.Edits, Edit{ChannelID: channelID, MessageID: messageID, Embed: embed})
	return &discordgo.Message{ID: messageID, ChannelID: channelID}, nil
}

// SentCount returns the number of messages sent so far.
func (m *MessageSender) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// EditCount returns the number of edits so far.
func (m *MessageSender) EditCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Edits)
}
