package database

import (
	"github.com/stretchr/testify/mock"
)

type MockRashomonRepository struct {
	mock.Mock
}

func (m *MockRashomonRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRashomonRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRashomonRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRashomonRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRashomonRepository) CreateContent(params CreateContentParams) (Content, error) {
	args := m.Called(params)
	return args.Get(0).(Content), args.Error(1)
}
func (m *MockRashomonRepository) ListContents() ([]Content, error) {
	args := m.Called()
	return args.Get(0).([]Content), args.Error(1)
}
func (m *MockRashomonRepository) GetContentByExternalId(externalId string) (Content, error) {
	args := m.Called(externalId)
	return args.Get(0).(Content), args.Error(1)
}
func (m *MockRashomonRepository) CreateHighlight(params CreateHighlightParams) (Highlight, error) {
	args := m.Called(params)
	return args.Get(0).(Highlight), args.Error(1)
}
func (m *MockRashomonRepository) ListHighlightsByContent(contentId int) ([]Highlight, error) {
	args := m.Called(contentId)
	return args.Get(0).([]Highlight), args.Error(1)
}
func (m *MockRashomonRepository) AppendChatMessage(params AppendChatMessageParams) error {
	args := m.Called(params)
	return args.Error(0)
}
func (m *MockRashomonRepository) GetChatMessages(contentId, limit int) ([]ChatMessage, error) {
	args := m.Called(contentId, limit)
	return args.Get(0).([]ChatMessage), args.Error(1)
}
