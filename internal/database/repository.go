package database

type RashomonRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	CreateContent(params CreateContentParams) (Content, error)
	ListContents() ([]Content, error)
	GetContentByExternalId(externalId string) (Content, error)
	CreateHighlight(params CreateHighlightParams) (Highlight, error)
	ListHighlightsByContent(contentId int) ([]Highlight, error)
	AppendChatMessage(params AppendChatMessageParams) error
	GetChatMessages(contentId, limit int) ([]ChatMessage, error)
}
