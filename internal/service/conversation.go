package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/pagecraft/pagecraft/internal/domain"
	"github.com/pagecraft/pagecraft/internal/domain/conversation"
	"github.com/pagecraft/pagecraft/internal/domain/session"
	"github.com/pagecraft/pagecraft/internal/port/database"
)

// ConversationService manages the chat thread attached to a workspace. At
// most one conversation per workspace is ongoing; OpenOrContinue returns the
// existing one instead of creating a duplicate.
type ConversationService struct {
	store database.Store
}

func NewConversationService(store database.Store) *ConversationService {
	return &ConversationService{store: store}
}

// OpenOrContinue returns the workspace's ongoing conversation, creating one
// when none exists. The workspace must be conversation-ready.
func (s *ConversationService) OpenOrContinue(ctx context.Context, workspaceID, userEmail string) (*conversation.Conversation, error) {
	wsp, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	if !wsp.Status.ConversationReady() {
		return nil, fmt.Errorf("workspace %s is %s: %w", workspaceID, wsp.Status, domain.ErrWorkspaceNotReady)
	}

	conv, err := s.store.GetOngoingConversation(ctx, workspaceID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get ongoing conversation: %w", err)
	}

	created, err := s.store.CreateConversation(ctx, &conversation.Conversation{
		WorkspaceID: workspaceID,
		UserEmail:   userEmail,
		Status:      conversation.StatusOngoing,
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return created, nil
}

func (s *ConversationService) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// Messages returns the full message history of a conversation in creation
// order, all roles included.
func (s *ConversationService) Messages(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return s.store.ListMessages(ctx, conversationID)
}

// Sessions returns the edit sessions of a conversation, newest first.
func (s *ConversationService) Sessions(ctx context.Context, conversationID string) ([]session.EditSession, error) {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return s.store.ListSessions(ctx, conversationID)
}
