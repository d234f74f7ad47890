package app

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"whatsapp-pdf-assistant/internal/config"
	"whatsapp-pdf-assistant/internal/model"
	"whatsapp-pdf-assistant/internal/pkg/phone"
	"whatsapp-pdf-assistant/internal/platform/logger"
	"whatsapp-pdf-assistant/internal/repository"
	"whatsapp-pdf-assistant/internal/storage"
)

// Attachment is a media item on an inbound message. Download fetches the
// bytes from the provider and is only called for PDFs. A non-empty filename
// returned by Download replaces Filename.
type Attachment struct {
	Filename string
	MimeType string
	MediaID  string
	Download func(ctx context.Context) (data []byte, filename string, err error)
}

func (a Attachment) IsPDF() bool {
	mime := strings.ToLower(strings.TrimSpace(a.MimeType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "application/pdf" || mime == "application/x-pdf" {
		return true
	}
	return strings.EqualFold(path.Ext(a.Filename), ".pdf")
}

// InboundMessage is a provider-neutral user message.
type InboundMessage struct {
	UserID      string
	UserName    string
	MessageID   string
	Text        string
	Attachments []Attachment
}

// UserLocker serializes message handling per user.
type UserLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type AssistantDeps struct {
	Users     *repository.UserRepository
	Documents *repository.DocumentRepository
	Feedback  *repository.FeedbackRepository
	Blobs     storage.BlobStore
	Ingestor  Ingestor
	Retriever Retriever
	Answerer  Synthesizer
	Locker    UserLocker
	// ConversationLog is optional.
	ConversationLog ConversationLog
	Logger          *logger.Logger
	TopK            int
	Timeouts        config.TimeoutConfig
}

// Assistant is the per-user session state machine behind every chat reply.
type Assistant struct {
	users     *repository.UserRepository
	docs      *repository.DocumentRepository
	feedback  *repository.FeedbackRepository
	blobs     storage.BlobStore
	ingestor  Ingestor
	retriever Retriever
	answerer  Synthesizer
	locker    UserLocker
	convLog   ConversationLog
	log       *logger.Logger
	topK      int
	timeouts  config.TimeoutConfig
}

func NewAssistant(deps AssistantDeps) *Assistant {
	topK := deps.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Assistant{
		users:     deps.Users,
		docs:      deps.Documents,
		feedback:  deps.Feedback,
		blobs:     deps.Blobs,
		ingestor:  deps.Ingestor,
		retriever: deps.Retriever,
		answerer:  deps.Answerer,
		locker:    deps.Locker,
		convLog:   deps.ConversationLog,
		log:       log.With("component", "assistant"),
		topK:      topK,
		timeouts:  deps.Timeouts,
	}
}

// HandleMessage processes one inbound message and returns the reply text.
// All state changes are committed before it returns.
func (a *Assistant) HandleMessage(ctx context.Context, in InboundMessage) (reply string) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("message handling panicked", "message_id", in.MessageID, "panic", r)
			reply = replyInternal
		}
	}()
	userKey := phone.Normalize(in.UserID)
	if userKey == "" {
		a.log.Warn("inbound message without sender", "message_id", in.MessageID)
		return replyInternal
	}

	unlock, err := a.locker.Lock(ctx, userKey)
	if err != nil {
		a.log.Error("acquire user lock failed", "phone", userKey, "error", err)
		return replyServiceDown
	}
	defer unlock()

	user, err := a.users.GetOrCreateByPhone(ctx, userKey, strings.TrimSpace(in.UserName))
	if err != nil {
		a.log.Error("load user failed", "phone", userKey, "error", err)
		return replyInternal
	}
	a.record(ctx, user.ID, model.DirectionInbound, describeInbound(in))

	reply, err = a.dispatch(ctx, user, in)
	if err != nil {
		reply = replyForError(err)
		var ve *ValidationError
		if errors.As(err, &ve) {
			a.log.Info("rejected message", "user_id", user.ID, "reason", ve.Message)
		} else {
			a.log.Error("handle message failed", "user_id", user.ID, "message_id", in.MessageID, "error", err)
		}
	}

	a.record(ctx, user.ID, model.DirectionOutbound, reply)
	a.log.Debug("message handled", "user_id", user.ID, "message_id", in.MessageID, "elapsed", time.Since(started))
	return reply
}

func (a *Assistant) dispatch(ctx context.Context, user *model.User, in InboundMessage) (string, error) {
	text := strings.TrimSpace(in.Text)

	if !user.Idle() {
		return a.completePendingFlow(ctx, user, pendingText(text, in.Attachments))
	}

	if cmd, arg, ok := parseCommand(text); ok {
		return a.runCommand(ctx, user, cmd, arg)
	}

	if len(in.Attachments) > 0 {
		return a.handleAttachments(ctx, user, in.Attachments)
	}
	return a.answerQuestion(ctx, user, text)
}

func (a *Assistant) runCommand(ctx context.Context, user *model.User, cmd, arg string) (string, error) {
	switch cmd {
	case cmdHelp:
		return replyHelp, nil
	case cmdList:
		return a.listDocuments(ctx, user)
	case cmdSelect:
		return a.selectDocument(ctx, user, arg)
	case cmdLatest:
		return a.selectLatest(ctx, user)
	case cmdDelete:
		return a.deleteDocument(ctx, user, arg)
	case cmdDeleteAll:
		return a.deleteAllDocuments(ctx, user)
	case cmdReport:
		return a.startFlow(ctx, user, model.FlowBugReport, replyReportPrompt)
	case cmdFeedback:
		return a.startFlow(ctx, user, model.FlowFeedback, replyFeedbackPrompt)
	}
	return "", fmt.Errorf("unhandled command %q", cmd)
}

func (a *Assistant) listDocuments(ctx context.Context, user *model.User) (string, error) {
	docs, err := a.docs.ListByUserID(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return replyNoDocuments, nil
	}
	return replyDocumentList(docs, user.SelectedDocumentID), nil
}

func (a *Assistant) selectDocument(ctx context.Context, user *model.User, arg string) (string, error) {
	docs, err := a.docs.ListByUserID(ctx, user.ID)
	if err != nil {
		return "", err
	}
	n, err := parseIndex(cmdSelect, arg, len(docs))
	if err != nil {
		return "", err
	}
	doc := &docs[n-1]
	if err := a.setSelection(ctx, user, &doc.ID); err != nil {
		return "", err
	}
	return replySelected(doc), nil
}

func (a *Assistant) selectLatest(ctx context.Context, user *model.User) (string, error) {
	doc, err := a.docs.GetLatestByUserID(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return replyNoDocuments, nil
	}
	if err := a.setSelection(ctx, user, &doc.ID); err != nil {
		return "", err
	}
	return replyLatestSelected(doc), nil
}

func (a *Assistant) deleteDocument(ctx context.Context, user *model.User, arg string) (string, error) {
	docs, err := a.docs.ListByUserID(ctx, user.ID)
	if err != nil {
		return "", err
	}
	n, err := parseIndex(cmdDelete, arg, len(docs))
	if err != nil {
		return "", err
	}
	target := docs[n-1]
	wasSelected := user.IsSelected(target.ID)

	deleted, err := a.docs.DeleteByIDAndUserID(ctx, target.ID, user.ID)
	if err != nil {
		return "", err
	}
	if deleted == nil {
		return "", &ValidationError{Message: replyIndexUsage(cmdDelete, len(docs))}
	}
	if wasSelected {
		user.SelectedDocumentID = nil
	}
	a.removeBlobs(ctx, *deleted)
	return replyDeleted(deleted, wasSelected), nil
}

func (a *Assistant) deleteAllDocuments(ctx context.Context, user *model.User) (string, error) {
	deleted, err := a.docs.DeleteAllByUserID(ctx, user.ID)
	if err != nil {
		return "", err
	}
	user.SelectedDocumentID = nil
	if len(deleted) == 0 {
		return replyNothingToDelete, nil
	}
	a.removeBlobs(ctx, deleted...)
	return replyDeletedAll(len(deleted)), nil
}

func (a *Assistant) startFlow(ctx context.Context, user *model.User, flow model.PendingFlow, prompt string) (string, error) {
	prevFlow, prevStep := user.PendingFlow, user.PendingStep
	user.PendingFlow, user.PendingStep = flow, 1
	if err := a.users.SaveSession(ctx, user); err != nil {
		user.PendingFlow, user.PendingStep = prevFlow, prevStep
		return "", err
	}
	return prompt, nil
}

// completePendingFlow consumes text as the answer to the open flow.
func (a *Assistant) completePendingFlow(ctx context.Context, user *model.User, text string) (string, error) {
	var reply string
	switch user.PendingFlow {
	case model.FlowBugReport:
		report := &model.BugReport{UserID: user.ID, UserName: user.Name, Content: text}
		if err := a.feedback.SubmitBugReport(ctx, report); err != nil {
			return "", err
		}
		a.log.Info("bug report received", "user_id", user.ID, "report_id", report.ID)
		reply = replyReportThanks
	case model.FlowFeedback:
		fb := &model.Feedback{UserID: user.ID, UserName: user.Name, Content: text}
		if err := a.feedback.SubmitFeedback(ctx, fb); err != nil {
			return "", err
		}
		a.log.Info("feedback received", "user_id", user.ID, "feedback_id", fb.ID)
		reply = replyFeedbackThanks
	default:
		a.log.Warn("unknown pending flow reset", "user_id", user.ID, "flow", user.PendingFlow)
		user.PendingFlow, user.PendingStep = model.FlowNone, 0
		if err := a.users.SaveSession(ctx, user); err != nil {
			return "", err
		}
		return replyHelp, nil
	}
	user.PendingFlow, user.PendingStep = model.FlowNone, 0
	return reply, nil
}

func (a *Assistant) handleAttachments(ctx context.Context, user *model.User, atts []Attachment) (string, error) {
	if len(atts) == 1 {
		return a.handleUpload(ctx, user, atts[0])
	}
	replies := make([]string, 0, len(atts))
	for _, att := range atts {
		reply, err := a.handleUpload(ctx, user, att)
		if err != nil {
			a.log.Warn("attachment failed", "user_id", user.ID, "filename", att.Filename, "error", err)
			reply = replyForError(err)
		}
		replies = append(replies, reply)
	}
	return strings.Join(replies, "\n\n"), nil
}

func (a *Assistant) handleUpload(ctx context.Context, user *model.User, att Attachment) (string, error) {
	if !att.IsPDF() {
		return "", &ValidationError{Message: replyUnsupportedAttachment(att)}
	}
	if att.Download == nil {
		return "", fmt.Errorf("download %q: %w: no media source", att.Filename, ErrIngestion)
	}

	dlCtx, cancel := context.WithTimeout(ctx, a.timeouts.Media())
	data, name, err := att.Download(dlCtx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("download media: %w: %w", ErrTimeout, err)
		}
		return "", ingestionError("download media", err)
	}

	filename := att.Filename
	if name != "" {
		filename = name
	}

	ingestCtx, cancel := context.WithTimeout(ctx, a.timeouts.Ingest())
	defer cancel()
	doc, err := a.ingestor.Ingest(ingestCtx, IngestInput{
		UserID:      user.ID,
		Filename:    filename,
		MediaID:     att.MediaID,
		ContentType: att.MimeType,
		Data:        data,
	})
	if err != nil {
		return "", err
	}
	id := doc.ID
	user.SelectedDocumentID = &id
	return replyUploaded(doc), nil
}

func (a *Assistant) answerQuestion(ctx context.Context, user *model.User, text string) (string, error) {
	if text == "" {
		return "", &ValidationError{Message: replyEmptyQuestion}
	}

	doc, err := a.resolveSelection(ctx, user)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return replyWelcome(user.Name), nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, a.timeouts.Search())
	chunks, err := a.retriever.Search(searchCtx, doc.ID, text, a.topK)
	cancel()
	if err != nil {
		return "", classifyExternal("search", err)
	}
	if len(chunks) == 0 {
		return "", ErrRetrievalEmpty
	}

	answerCtx, cancel := context.WithTimeout(ctx, a.timeouts.Answer())
	defer cancel()
	answer, err := a.answerer.Answer(answerCtx, text, chunks)
	if err != nil {
		return "", classifyExternal("answer", err)
	}
	return answer, nil
}

// resolveSelection returns the selected document, falling back to the most
// recent upload and persisting that choice. It returns nil when the user has
// no documents.
func (a *Assistant) resolveSelection(ctx context.Context, user *model.User) (*model.Document, error) {
	if user.SelectedDocumentID != nil {
		doc, err := a.docs.GetByIDAndUserID(ctx, *user.SelectedDocumentID, user.ID)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			return doc, nil
		}
	}

	latest, err := a.docs.GetLatestByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		if user.SelectedDocumentID != nil {
			if err := a.setSelection(ctx, user, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	if err := a.setSelection(ctx, user, &latest.ID); err != nil {
		return nil, err
	}
	return latest, nil
}

func (a *Assistant) setSelection(ctx context.Context, user *model.User, docID *uint) error {
	prev := user.SelectedDocumentID
	if docID != nil {
		id := *docID
		docID = &id
	}
	user.SelectedDocumentID = docID
	if err := a.users.SaveSession(ctx, user); err != nil {
		user.SelectedDocumentID = prev
		return err
	}
	return nil
}

// removeBlobs deletes stored files after their rows are gone. Failures only
// leave orphaned blobs, so they are logged.
func (a *Assistant) removeBlobs(ctx context.Context, docs ...model.Document) {
	if a.blobs == nil {
		return
	}
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeouts.Store())
	defer cancel()
	for _, d := range docs {
		if d.StorageKey == "" {
			continue
		}
		if err := a.blobs.Delete(storeCtx, d.StorageKey); err != nil {
			a.log.Warn("delete blob failed", "document_id", d.ID, "key", d.StorageKey, "error", err)
		}
	}
}

func (a *Assistant) record(ctx context.Context, userID uint, direction, content string) {
	if a.convLog == nil || strings.TrimSpace(content) == "" {
		return
	}
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeouts.Store())
	defer cancel()
	err := a.convLog.Publish(logCtx, model.Message{UserID: userID, Direction: direction, Content: content})
	if err != nil {
		a.log.Warn("record conversation failed", "user_id", userID, "direction", direction, "error", err)
	}
}

// pendingText is what a pending flow stores for a message. Attachments are
// recorded by name since their content is not read.
func pendingText(text string, atts []Attachment) string {
	parts := make([]string, 0, len(atts)+1)
	if text != "" {
		parts = append(parts, text)
	}
	for _, att := range atts {
		name := att.Filename
		if name == "" {
			name = att.MimeType
		}
		parts = append(parts, fmt.Sprintf("[attachment: %s]", name))
	}
	if len(parts) == 0 {
		return "[empty message]"
	}
	return strings.Join(parts, "\n")
}

func describeInbound(in InboundMessage) string {
	return pendingText(strings.TrimSpace(in.Text), in.Attachments)
}
