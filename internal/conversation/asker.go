// Package conversation holds the chat transcript, the question context
// and the ask strategy shared by the CLI and the TUI.
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"prism/internal/api"
	"prism/internal/history"
	"prism/internal/logging"
)

// QAClient is the part of api.Client used to answer questions.
type QAClient interface {
	Question(ctx context.Context, req api.QuestionRequest) (*api.Answer, error)
	ImageQuestion(ctx context.Context, question, imageID string) (*api.Answer, error)
	AudioQuestion(ctx context.Context, question, audioID string) (*api.Answer, error)
	Chat(ctx context.Context, message string) (*api.ChatResponse, error)
}

// Answer is a successful response, normalized across endpoints.
type Answer struct {
	Text           string
	Sources        []api.Source
	ContextUsed    bool
	ProcessingTime time.Duration
	// Fallback is set when the answer came from /chat.
	Fallback bool
}

// Strategy asks one kind of question.
type Strategy interface {
	Name() string
	Ask(ctx context.Context, c QAClient, question string, sel Selection) (*api.Answer, error)
}

type documentStrategy struct{}

func (documentStrategy) Name() string { return "question" }

func (documentStrategy) Ask(ctx context.Context, c QAClient, question string, sel Selection) (*api.Answer, error) {
	req := api.QuestionRequest{Question: question}
	switch sel.Scope {
	case ScopeFolder:
		req.FolderID = sel.ID
	case ScopeFile:
		req.FileID = sel.ID
	}
	return c.Question(ctx, req)
}

type imageStrategy struct{}

func (imageStrategy) Name() string { return "image-question" }

func (imageStrategy) Ask(ctx context.Context, c QAClient, question string, sel Selection) (*api.Answer, error) {
	return c.ImageQuestion(ctx, question, sel.ID)
}

type audioStrategy struct{}

func (audioStrategy) Name() string { return "audio-question" }

func (audioStrategy) Ask(ctx context.Context, c QAClient, question string, sel Selection) (*api.Answer, error) {
	return c.AudioQuestion(ctx, question, sel.ID)
}

// StrategyFor picks the endpoint for a selection: a selected image or
// audio file uses its modality endpoint, everything else /question.
func StrategyFor(sel Selection) Strategy {
	if sel.Scope == ScopeFile {
		switch sel.FileKind {
		case api.KindImage:
			return imageStrategy{}
		case api.KindAudio:
			return audioStrategy{}
		}
	}
	return documentStrategy{}
}

// Asker answers questions and records them in history.
type Asker struct {
	client  QAClient
	history history.Store
}

// NewAsker creates an asker. store may be nil.
func NewAsker(client QAClient, store history.Store) *Asker {
	return &Asker{client: client, history: store}
}

// Ask sends question under sel. When a general question finds no relevant
// documents it is retried as plain chat; if that also fails the original
// error is returned.
func (a *Asker) Ask(ctx context.Context, question string, sel Selection) (*Answer, error) {
	strategy := StrategyFor(sel)
	log := logging.Get(logging.CategoryAPI)

	resp, err := strategy.Ask(ctx, a.client, question, sel)
	if err != nil {
		if !sel.IsNone() || !noRelevantDocuments(err) {
			return nil, err
		}
		log.Infow("no relevant documents, falling back to chat", "strategy", strategy.Name())
		chat, chatErr := a.client.Chat(ctx, question)
		if chatErr != nil {
			log.Warnw("fallback chat failed", "error", chatErr)
			return nil, err
		}
		ans := &Answer{Text: chat.Response, Sources: []api.Source{}, Fallback: true}
		a.record(ctx, question, sel, ans)
		return ans, nil
	}

	resp.Normalize()
	ans := &Answer{
		Text:           resp.Answer,
		Sources:        resp.Sources,
		ContextUsed:    resp.ContextUsed,
		ProcessingTime: resp.Elapsed(),
	}
	a.record(ctx, question, sel, ans)
	return ans, nil
}

func (a *Asker) record(ctx context.Context, question string, sel Selection, ans *Answer) {
	if a.history == nil {
		return
	}
	_, err := a.history.Append(ctx, history.Record{
		Type:     sel.HistoryType(),
		Query:    question,
		Response: ans.Text,
		Sources:  ans.Sources,
		Context:  sel.Describe(),
	})
	if err != nil {
		logging.Get(logging.CategoryHistory).Warnw("failed to record history", "error", err)
	}
}

func noRelevantDocuments(err error) bool {
	var appErr *api.AppError
	return errors.As(err, &appErr) && strings.Contains(appErr.Message, "No relevant documents")
}
