package app

import (
	"errors"
	"fmt"
	"strings"

	"whatsapp-pdf-assistant/internal/model"
)

const (
	replyHelp = "*WhatsApp PDF Assistant*\n\n" +
		"Send me a PDF and then ask questions about it.\n\n" +
		"*Commands*\n" +
		"/list - show your uploaded PDFs\n" +
		"/select <n> - ask about PDF number n\n" +
		"/latest - select your most recent PDF\n" +
		"/delete <n> - delete PDF number n\n" +
		"/delete_all - delete all your PDFs\n" +
		"/feedback - send us feedback\n" +
		"/report - report a problem\n" +
		"/help - show this message"

	replyNoDocuments     = "You haven't uploaded any PDFs yet. Send me a PDF file to get started."
	replyNothingToDelete = "You don't have any PDFs to delete."
	replyReportPrompt    = "Sorry you ran into a problem. Please describe what happened in your next message and our team will look into it."
	replyFeedbackPrompt  = "We'd love to hear your feedback! Type your message below and it will reach our team."
	replyReportThanks    = "Thanks for reporting this issue. We'll investigate it as soon as possible."
	replyFeedbackThanks  = "Thank you for your feedback! We'll use it to improve the assistant."
	replyEmptyQuestion   = "Please type a question about your document, or send /help to see what I can do."

	replyIngestionFailed = "Sorry, I couldn't process that PDF. Please check the file and try sending it again."
	replyNothingRelevant = "I couldn't find anything relevant to that in your document. Try rephrasing your question or /select another PDF."
	replyServiceDown     = "I'm having trouble reaching my services right now. Please try again in a moment."
	replyInternal        = "Sorry, something went wrong while handling your message. Please try again."
)

// FallbackReply is sent when a message could not be handled at all.
const FallbackReply = replyInternal

func replyWelcome(name string) string {
	greeting := "Hi there!"
	if name = strings.TrimSpace(name); name != "" {
		greeting = fmt.Sprintf("Hi %s!", name)
	}
	return greeting + "\n\nI'm your PDF assistant. Send me a PDF file and I'll answer questions about what's inside.\n\nType /help to see all commands."
}

func replyDocumentList(docs []model.Document, selectedID *uint) string {
	var b strings.Builder
	b.WriteString("Your PDFs:\n\n")
	selected := 0
	for i, d := range docs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, d.Filename)
		if selectedID != nil && *selectedID == d.ID {
			selected = i + 1
		}
	}
	if selected > 0 {
		fmt.Fprintf(&b, "\nCurrently selected: %d", selected)
	}
	b.WriteString("\nSend /select <number> to choose a PDF.")
	return b.String()
}

func replySelected(doc *model.Document) string {
	return fmt.Sprintf("Selected PDF: %s\nYou can now ask questions about this document.", doc.Filename)
}

func replyLatestSelected(doc *model.Document) string {
	return fmt.Sprintf("Selected your most recent PDF: %s\nYou can now ask questions about this document.", doc.Filename)
}

func replyDeleted(doc *model.Document, wasSelected bool) string {
	msg := fmt.Sprintf("Deleted %s.", doc.Filename)
	if wasSelected {
		msg += "\nIt was your selected PDF, so questions will now use your most recent upload."
	}
	return msg
}

func replyDeletedAll(n int) string {
	if n == 1 {
		return "Deleted your only PDF."
	}
	return fmt.Sprintf("Deleted all %d of your PDFs.", n)
}

func replyUploaded(doc *model.Document) string {
	return fmt.Sprintf("I've finished processing your PDF: %s\n\n"+
		"It is now selected. Ask me anything about it, for example:\n"+
		"- What is this document about?\n"+
		"- Summarize the main points", doc.Filename)
}

func replyUnsupportedAttachment(att Attachment) string {
	name := att.Filename
	if name == "" {
		name = "That file"
	}
	kind := att.MimeType
	if kind == "" {
		kind = "an unknown type"
	}
	return fmt.Sprintf("%s is %s. I can only read PDF files, so please send your document as a PDF.", name, kind)
}

func replyIndexUsage(command string, count int) string {
	return fmt.Sprintf("Please choose a number between 1 and %d, like %s 1. Send /list to see your PDFs.", count, command)
}

// replyForError maps an error to user-facing text. Provider error text is
// never included.
func replyForError(err error) string {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Message
	case errors.Is(err, ErrIngestion):
		return replyIngestionFailed
	case errors.Is(err, ErrRetrievalEmpty):
		return replyNothingRelevant
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrExternalService):
		return replyServiceDown
	default:
		return replyInternal
	}
}
