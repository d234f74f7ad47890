package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-pdf-assistant/internal/ai"
	"whatsapp-pdf-assistant/internal/model"
	"whatsapp-pdf-assistant/internal/storage"
)

const cellText = "The mitochondria is the powerhouse of the cell. It produces energy for the cell."

func TestListWithoutUploads(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, replyNoDocuments, h.send("/list"))
	assert.Equal(t, replyNoDocuments, h.send("  /LIST  "))
}

func TestHelpListsCommands(t *testing.T) {
	h := newHarness(t)
	reply := h.send("/help")
	for _, cmd := range []string{"/list", "/select", "/delete", "/delete_all", "/report", "/feedback", "/latest"} {
		assert.Contains(t, reply, cmd)
	}
}

func TestEndToEndUploadAskDelete(t *testing.T) {
	h := newHarness(t)

	reply := h.upload("doc.pdf", cellText)
	assert.Contains(t, reply, "doc.pdf")
	docs := h.documents()
	require.Len(t, docs, 1)
	assert.Equal(t, docs[0].ID, *h.user().SelectedDocumentID)
	key := docs[0].StorageKey
	_, err := h.blobs.Get(context.Background(), key)
	require.NoError(t, err)

	assert.Contains(t, h.send("/list"), "1. doc.pdf")

	answer := h.send("What is the powerhouse of the cell?")
	assert.Equal(t, "It is the powerhouse of the cell.", answer)
	require.Len(t, h.completer.last, 2)
	assert.Contains(t, h.completer.last[1].Content, "mitochondria")
	assert.Contains(t, h.completer.last[1].Content, "What is the powerhouse of the cell?")

	assert.Contains(t, h.send("/delete 1"), "Deleted doc.pdf")
	assert.Equal(t, replyNoDocuments, h.send("/list"))
	assert.Nil(t, h.user().SelectedDocumentID)

	_, err = h.blobs.Get(context.Background(), key)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSelectAndDeleteOutOfBoundsMutateNothing(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, replyNoDocuments, h.send("/select 1"))
	assert.Equal(t, replyNoDocuments, h.send("/delete 1"))

	h.upload("a.pdf", cellText)
	h.upload("b.pdf", cellText)
	before := h.user()
	require.NotNil(t, before.SelectedDocumentID)

	for _, cmd := range []string{"/select 0", "/select 3", "/select", "/select two", "/select 1 2", "/delete 0", "/delete 3", "/delete -1", "/delete"} {
		reply := h.send(cmd)
		assert.Contains(t, reply, "between 1 and 2", cmd)
	}

	after := h.user()
	assert.Equal(t, *before.SelectedDocumentID, *after.SelectedDocumentID)
	assert.Len(t, h.documents(), 2)
}

func TestSelectAndLatest(t *testing.T) {
	h := newHarness(t)
	h.upload("a.pdf", cellText)
	h.upload("b.pdf", cellText)
	docs := h.documents()

	assert.Contains(t, h.send("/select 1"), "a.pdf")
	assert.Equal(t, docs[0].ID, *h.user().SelectedDocumentID)
	assert.Contains(t, h.send("/list"), "Currently selected: 1")

	assert.Contains(t, h.send("/latest"), "b.pdf")
	assert.Equal(t, docs[1].ID, *h.user().SelectedDocumentID)
}

func TestDeleteSelectedClearsSelectionOnlyForThatDocument(t *testing.T) {
	h := newHarness(t)
	h.upload("a.pdf", cellText)
	h.upload("b.pdf", cellText)

	h.send("/delete 2")
	assert.Nil(t, h.user().SelectedDocumentID)

	h.upload("c.pdf", cellText)
	c := h.documents()[1]
	assert.Equal(t, c.ID, *h.user().SelectedDocumentID)

	h.send("/delete 1")
	require.NotNil(t, h.user().SelectedDocumentID)
	assert.Equal(t, c.ID, *h.user().SelectedDocumentID)
	docs := h.documents()
	require.Len(t, docs, 1)
	assert.Equal(t, "c.pdf", docs[0].Filename)
}

func TestDeleteAllTwice(t *testing.T) {
	h := newHarness(t)
	h.upload("a.pdf", cellText)
	h.upload("b.pdf", cellText)

	assert.Equal(t, replyDeletedAll(2), h.send("/delete_all"))
	assert.Nil(t, h.user().SelectedDocumentID)
	assert.Equal(t, replyNothingToDelete, h.send("/delete_all"))
	assert.Empty(t, h.documents())
}

func TestReportFlowConsumesNextMessage(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, replyReportPrompt, h.send("/report"))
	assert.Equal(t, model.FlowBugReport, h.user().PendingFlow)

	assert.Equal(t, replyReportThanks, h.send("/help"))
	assert.True(t, h.user().Idle())

	var reports []model.BugReport
	require.NoError(t, h.db.Find(&reports).Error)
	require.Len(t, reports, 1)
	assert.Equal(t, "/help", reports[0].Content)
	assert.Equal(t, model.BugReportOpen, reports[0].Status)
	assert.Equal(t, "Ana", reports[0].UserName)

	assert.Equal(t, replyHelp, h.send("/help"))
}

func TestFeedbackFlowRecordsAttachmentName(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, replyFeedbackPrompt, h.send("/feedback"))

	downloaded := false
	reply := h.assistant.HandleMessage(context.Background(), InboundMessage{
		UserID: testPhone,
		Attachments: []Attachment{{
			Filename: "screenshot.png",
			MimeType: "image/png",
			Download: func(context.Context) ([]byte, string, error) { downloaded = true; return nil, "", nil },
		}},
	})
	assert.Equal(t, replyFeedbackThanks, reply)
	assert.False(t, downloaded)

	var list []model.Feedback
	require.NoError(t, h.db.Find(&list).Error)
	require.Len(t, list, 1)
	assert.Equal(t, "[attachment: screenshot.png]", list[0].Content)
	assert.True(t, h.user().Idle())
}

func TestNonPDFAttachmentRejected(t *testing.T) {
	h := newHarness(t)
	downloaded := false
	reply := h.assistant.HandleMessage(context.Background(), InboundMessage{
		UserID: testPhone,
		Attachments: []Attachment{{
			Filename: "cat.jpg",
			MimeType: "image/jpeg",
			Download: func(context.Context) ([]byte, string, error) { downloaded = true; return nil, "", nil },
		}},
	})
	assert.Contains(t, reply, "only read PDF")
	assert.Contains(t, reply, "cat.jpg")
	assert.False(t, downloaded)
	assert.Empty(t, h.documents())
}

func TestPDFRecognisedByExtension(t *testing.T) {
	assert.True(t, Attachment{Filename: "x.PDF", MimeType: "application/octet-stream"}.IsPDF())
	assert.True(t, Attachment{MimeType: "application/pdf; charset=binary"}.IsPDF())
	assert.False(t, Attachment{Filename: "x.docx"}.IsPDF())
}

func TestQuestionWithoutDocumentsAsksForUpload(t *testing.T) {
	h := newHarness(t)
	reply := h.send("what is this about?")
	assert.Contains(t, reply, "Send me a PDF")
	assert.Contains(t, reply, "Ana")
	assert.Nil(t, h.completer.last)
}

func TestEmptyQuestionIsValidationError(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, replyEmptyQuestion, h.send("   "))
}

func TestQuestionDefaultsToLatestDocument(t *testing.T) {
	h := newHarness(t)
	h.upload("a.pdf", cellText)
	h.upload("b.pdf", cellText)
	u := h.user()
	u.SelectedDocumentID = nil
	require.NoError(t, h.users.SaveSession(context.Background(), u))

	assert.Equal(t, h.completer.answer, h.send("tell me about the cell"))
	latest := h.documents()[1]
	require.NotNil(t, h.user().SelectedDocumentID)
	assert.Equal(t, latest.ID, *h.user().SelectedDocumentID)
}

func TestUnknownSlashCommandIsTreatedAsQuestion(t *testing.T) {
	h := newHarness(t)
	h.upload("a.pdf", cellText)
	assert.Equal(t, h.completer.answer, h.send("/cell energy"))
	assert.Contains(t, h.completer.last[1].Content, "/cell energy")
}

func TestNothingRelevantFound(t *testing.T) {
	h := newHarness(t)
	h.upload("a.pdf", cellText)
	assert.Equal(t, replyNothingRelevant, h.send("12345"))
	assert.Nil(t, h.completer.last)
}

func TestProviderErrorsNeverReachUser(t *testing.T) {
	h := newHarness(t)
	h.upload("a.pdf", cellText)

	h.completer.err = &ai.StatusError{Op: "llm", StatusCode: 500, Body: "internal provider detail"}
	reply := h.send("what about the cell?")
	assert.Equal(t, replyServiceDown, reply)
	assert.NotContains(t, reply, "provider")

	h.completer.err = fmt.Errorf("wrapped: %w", context.DeadlineExceeded)
	assert.Equal(t, replyServiceDown, h.send("what about the cell?"))

	h.completer.err = nil
	h.embedder.err = errors.New("embedding quota exceeded")
	assert.Equal(t, replyServiceDown, h.send("what about the cell?"))
}

func TestIngestionFailureAsksForReupload(t *testing.T) {
	h := newHarness(t)
	h.pipeline.Extract = func([]byte) (string, error) { return "", errors.New("bad xref") }
	assert.Equal(t, replyIngestionFailed, h.upload("broken.pdf", "garbage"))
	assert.Empty(t, h.documents())

	h.pipeline.Extract = func(b []byte) (string, error) { return string(b), nil }
	h.assistant.HandleMessage(context.Background(), InboundMessage{
		UserID: testPhone,
		Attachments: []Attachment{{
			Filename: "a.pdf",
			MimeType: "application/pdf",
			Download: func(context.Context) ([]byte, string, error) { return nil, "", errors.New("media gone") },
		}},
	})
	assert.Empty(t, h.documents())
}

func TestConversationIsLogged(t *testing.T) {
	h := newHarness(t)
	h.send("/help")
	msgs, err := h.messages.ListByUserID(context.Background(), h.user().ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.DirectionInbound, msgs[0].Direction)
	assert.Equal(t, "/help", msgs[0].Content)
	assert.Equal(t, model.DirectionOutbound, msgs[1].Direction)
	assert.Equal(t, replyHelp, msgs[1].Content)
}

func TestConcurrentSelectAndDeleteKeepSelectionValid(t *testing.T) {
	h := newHarness(t)
	for round := 0; round < 5; round++ {
		h.upload(fmt.Sprintf("r%d.pdf", round), cellText)

		var wg sync.WaitGroup
		for _, cmd := range []string{"/select 1", "/delete 1", "/select 1"} {
			wg.Add(1)
			go func(cmd string) {
				defer wg.Done()
				h.send(cmd)
			}(cmd)
		}
		wg.Wait()

		u := h.user()
		if u.SelectedDocumentID != nil {
			doc, err := h.docs.GetByIDAndUserID(context.Background(), *u.SelectedDocumentID, u.ID)
			require.NoError(t, err)
			assert.NotNil(t, doc, "round %d: selection points at a deleted document", round)
		}
	}
}

func TestMultipleAttachmentsEachGetAReply(t *testing.T) {
	h := newHarness(t)
	reply := h.assistant.HandleMessage(context.Background(), InboundMessage{
		UserID: testPhone,
		Attachments: []Attachment{
			{Filename: "one.pdf", MimeType: "application/pdf", Download: func(context.Context) ([]byte, string, error) { return []byte(cellText), "", nil }},
			{Filename: "pic.png", MimeType: "image/png"},
		},
	})
	assert.Contains(t, reply, "one.pdf")
	assert.Contains(t, reply, "only read PDF")
	assert.Len(t, h.documents(), 1)
}

type panickingRetriever struct{}

func (panickingRetriever) Search(context.Context, uint, string, int) ([]ScoredChunk, error) {
	panic("index corrupted")
}

func TestPanicWhileAnsweringGetsGenericApology(t *testing.T) {
	h := newHarness(t)
	h.upload("a.pdf", cellText)
	h.assistant.retriever = panickingRetriever{}

	assert.Equal(t, replyInternal, h.send("what about the cell?"))
	// The user lock was released, so the next message is handled normally.
	assert.Contains(t, h.send("/list"), "a.pdf")
}
