package events

import (
	"sync"

	tbapi "github.com/OvyFlash/telegram-bot-api"
)

// tbAPIStub is a handwritten test double for the TbAPI interface. Calls are
// recorded, behaviors are overridable per test through the func fields.
type tbAPIStub struct {
	mu        sync.Mutex
	sent      []tbapi.Chattable
	requested []tbapi.Chattable
	nextMsgID int

	updatesCh         chan tbapi.Update
	sendFunc          func(c tbapi.Chattable) (tbapi.Message, error)
	requestFunc       func(c tbapi.Chattable) (*tbapi.APIResponse, error)
	getChatMemberFunc func(config tbapi.GetChatMemberConfig) (tbapi.ChatMember, error)
}

func newTbAPIStub() *tbAPIStub {
	return &tbAPIStub{nextMsgID: 1000, updatesCh: make(chan tbapi.Update, 10)}
}

func (s *tbAPIStub) GetUpdatesChan(tbapi.UpdateConfig) tbapi.UpdatesChannel {
	return s.updatesCh
}

func (s *tbAPIStub) Send(c tbapi.Chattable) (tbapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendFunc != nil {
		return s.sendFunc(c)
	}
	s.sent = append(s.sent, c)
	s.nextMsgID++
	return tbapi.Message{MessageID: s.nextMsgID}, nil
}

func (s *tbAPIStub) Request(c tbapi.Chattable) (*tbapi.APIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requestFunc != nil {
		return s.requestFunc(c)
	}
	s.requested = append(s.requested, c)
	return &tbapi.APIResponse{Ok: true}, nil
}

func (s *tbAPIStub) GetChat(tbapi.ChatInfoConfig) (tbapi.ChatFullInfo, error) {
	return tbapi.ChatFullInfo{}, nil
}

func (s *tbAPIStub) GetChatMember(config tbapi.GetChatMemberConfig) (tbapi.ChatMember, error) {
	if s.getChatMemberFunc != nil {
		return s.getChatMemberFunc(config)
	}
	return tbapi.ChatMember{Status: "member", User: &tbapi.User{ID: config.UserID}}, nil
}

func (s *tbAPIStub) sentMessages() []tbapi.Chattable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tbapi.Chattable{}, s.sent...)
}

func (s *tbAPIStub) requests() []tbapi.Chattable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tbapi.Chattable{}, s.requested...)
}

// sentTexts extracts the text of every sent MessageConfig
func (s *tbAPIStub) sentTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []string
	for _, c := range s.sent {
		if msg, ok := c.(tbapi.MessageConfig); ok {
			res = append(res, msg.Text)
		}
	}
	return res
}

// deletedIDs extracts message ids from every delete request
func (s *tbAPIStub) deletedIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []int
	for _, c := range s.requested {
		if del, ok := c.(tbapi.DeleteMessageConfig); ok {
			res = append(res, del.MessageID)
		}
	}
	return res
}
